package oops

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
	"github.com/rs/zerolog"
)

// Error wraps a cause with a message and the call stack where it was created.
type Error struct {
	Message string
	Wrapped error
	Stack   CallStack
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

type CallStack []StackFrame

func (s CallStack) MarshalZerologArray(a *zerolog.Array) {
	for _, frame := range s {
		a.Object(frame)
	}
}

type StackFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
}

func (f StackFrame) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("file", f.File).
		Int("line", f.Line).
		Str("function", f.Function)
}

// ZerologStackMarshaler reports the stack of the outermost oops.Error in err.
var ZerologStackMarshaler = func(err error) interface{} {
	var asOops *Error
	if errors.As(err, &asOops) {
		return asOops.Stack
	}
	return nil
}

// Trace captures the caller's stack.
func Trace() CallStack {
	return trace(2)
}

// trace drops skip frames: trace itself, then its callers inside this package.
func trace(skip int) CallStack {
	calls := stack.Trace().TrimRuntime()
	if len(calls) > skip {
		calls = calls[skip:]
	}
	frames := make(CallStack, len(calls))
	for i, call := range calls {
		callFrame := call.Frame()
		frames[i] = StackFrame{
			File:     callFrame.File,
			Line:     callFrame.Line,
			Function: callFrame.Function,
		}
	}
	return frames
}

func New(wrapped error, format string, args ...interface{}) error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Wrapped: wrapped,
		Stack:   trace(2),
	}
}
