// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error surface of hioload-mq. Usage errors are plain sentinels raised
// synchronously and never retried; engine failures carry the native code in a
// structured EngineError. The two benign conditions (would-block on receive,
// context terminated inside a background loop) are EngineError values matched
// by code via errors.Is.

package api

import (
	"errors"
	"fmt"
)

// Usage errors raised by the lifecycle layer before any engine call.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDisposed        = errors.New("object is disposed")
	ErrNotSupported    = errors.New("operation not supported")
	ErrAlreadyStarted  = errors.New("already started")
	ErrNotStarted      = errors.New("not started")
)

// Engine error codes, modelled after the native engine's errno surface.
type ErrorCode int

const (
	CodeOK ErrorCode = iota
	CodeAgain
	CodeTerm
	CodeInvalid
	CodeNoEndpoint
	CodeAddrInUse
	CodeNotSupported
	CodeMaxSockets
	CodeInternal
)

// EngineError is the single typed failure crossing the engine boundary.
type EngineError struct {
	Code ErrorCode
	Op   string
	Msg  string
}

func (e *EngineError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("engine: %s (code %d)", e.Msg, e.Code)
	}
	return fmt.Sprintf("engine: %s: %s (code %d)", e.Op, e.Msg, e.Code)
}

// Is matches EngineErrors by code so that sentinel comparisons via errors.Is
// hold for any instance carrying the same code, regardless of Op or Msg.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && t.Code == e.Code
}

// NewEngineError builds an EngineError for op with the given code.
func NewEngineError(code ErrorCode, op, msg string) *EngineError {
	return &EngineError{Code: code, Op: op, Msg: msg}
}

// Benign conditions recognized by the lifecycle layer.
var (
	// ErrWouldBlock reports a receive timeout or a DONTWAIT send with no
	// capacity. Mapped to a nil frame by Socket.Recv, never surfaced as a
	// failure there.
	ErrWouldBlock = &EngineError{Code: CodeAgain, Msg: "resource temporarily unavailable"}

	// ErrTerminated reports that the owning context has been terminated.
	// Background relay and worker loops treat it as expected shutdown.
	ErrTerminated = &EngineError{Code: CodeTerm, Msg: "context was terminated"}
)
