// File: core/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Option marshalling between typed values and the engine's raw buffers.
// Exactly four strategies exist: 4-byte integer, 8-byte integer, boolean
// (4-byte integer, nonzero = true) and variable-length byte sequence with a
// fixed scratch capacity. Anything else is a usage error raised before the
// engine is touched. Little-endian, matching the native engine's layout.

package core

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-mq/api"
)

// OptionScratchSize is the scratch capacity for byte-sequence option reads;
// longer native values are truncated to this length.
const OptionScratchSize = 255

// MarshalInt32 encodes v in the engine's 4-byte integer representation.
func MarshalInt32(v int32) []byte {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, uint32(v))
	return raw
}

// MarshalInt64 encodes v in the engine's 8-byte integer representation.
func MarshalInt64(v int64) []byte {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, uint64(v))
	return raw
}

// MarshalBool encodes v as the engine's 4-byte integer, 1 for true.
func MarshalBool(v bool) []byte {
	if v {
		return MarshalInt32(1)
	}
	return MarshalInt32(0)
}

// GetOption reads a socket option as T. T must be int32, int64, bool or
// []byte; any other instantiation is a usage error and no engine call is
// made. Byte-sequence reads use a 255-byte scratch buffer and report the
// engine's length, truncated to the scratch capacity.
func GetOption[T any](s *Socket, id api.OptionID) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *int32:
		buf := make([]byte, 4)
		if _, err := s.eng.GetOpt(s.handle, id, buf); err != nil {
			return out, err
		}
		*p = int32(binary.LittleEndian.Uint32(buf))
	case *int64:
		buf := make([]byte, 8)
		if _, err := s.eng.GetOpt(s.handle, id, buf); err != nil {
			return out, err
		}
		*p = int64(binary.LittleEndian.Uint64(buf))
	case *bool:
		buf := make([]byte, 4)
		if _, err := s.eng.GetOpt(s.handle, id, buf); err != nil {
			return out, err
		}
		*p = binary.LittleEndian.Uint32(buf) != 0
	case *[]byte:
		buf := make([]byte, OptionScratchSize)
		n, err := s.eng.GetOpt(s.handle, id, buf)
		if err != nil {
			return out, err
		}
		if n > len(buf) {
			n = len(buf)
		}
		*p = buf[:n]
	default:
		return out, fmt.Errorf("%w: option type %T", api.ErrNotSupported, out)
	}
	return out, nil
}
