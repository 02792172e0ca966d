// Package errors provides structured error handling for the pvdisplay runtime.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindProtocol indicates a protocol-client or wire subscription error.
	KindProtocol
	// KindConfig indicates a configuration error (bad PV name, bad mode).
	KindConfig
	// KindCalc indicates a calc expression compile or evaluate error.
	KindCalc
	// KindWrite indicates a failed or rejected put operation.
	KindWrite
	// KindStore indicates an audit store error.
	KindStore
	// KindDispatch indicates a cross-thread dispatch error.
	KindDispatch
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindConfig:
		return "config"
	case KindCalc:
		return "calc"
	case KindWrite:
		return "write"
	case KindStore:
		return "store"
	case KindDispatch:
		return "dispatch"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// RuntimeError represents a structured error in the pvdisplay runtime.
type RuntimeError struct {
	// Op is the operation that failed (e.g., "channels.Subscribe").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// PV is the process variable name, if applicable.
	PV string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *RuntimeError) Error() string {
	if e.PV != "" {
		return fmt.Sprintf("%s [%s] pv=%s: %v", e.Op, e.Kind, e.PV, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "runtime.evaluateState").
	Op string
	// Value is the value passed to panic().
	Value any
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorHandler receives errors reported by the runtime.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *RuntimeError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
