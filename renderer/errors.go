package renderer

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies renderer failures. Every kind is fatal; there is no degraded path.
type Kind int

const (
	KindInitialization Kind = iota + 1
	KindShaderCompilation
	KindCommandRecording
	KindSynchronization
)

func (k Kind) String() string {
	switch k {
	case KindInitialization:
		return "initialization error"
	case KindShaderCompilation:
		return "shader compilation error"
	case KindCommandRecording:
		return "command recording error"
	case KindSynchronization:
		return "synchronization error"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var (
	ErrClosed        = errors.New("render context is closed")
	ErrContextFailed = errors.New("render context failed on an earlier frame")
)

// Error carries the kind of a failure and the graphics call it came from. Stage and
// File are only set for shader compilation failures.
type Error struct {
	Kind  Kind
	Op    string
	Stage string
	File  string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s shader %s: %v", e.Kind, e.Stage, e.File, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Format(s fmt.State, verb rune) { errors.FormatError(e, s, verb) }

func (e *Error) FormatError(p errors.Printer) error {
	if e.Stage != "" {
		p.Printf("%s: %s shader %s", e.Kind, e.Stage, e.File)
	} else {
		p.Printf("%s: %s", e.Kind, e.Op)
	}
	return e.Err
}

// IsKind reports whether err, or anything it wraps, is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func newError(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: errors.WithStack(err)}
}

func initError(op string, err error) error {
	return newError(KindInitialization, op, err)
}

func recordingError(op string, err error) error {
	return newError(KindCommandRecording, op, err)
}

func syncError(op string, err error) error {
	return newError(KindSynchronization, op, err)
}
