package domain

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindBackend covers network failures, non-2xx responses, malformed
	// top-level responses and error payloads reported by the backend.
	KindBackend ErrorKind = iota
	// KindStreamParse is a single stream line that could not be decoded.
	KindStreamParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindBackend:
		return "backend"
	case KindStreamParse:
		return "stream_parse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// GenerationError is the single error shape produced at the boundary with a
// generation backend.
type GenerationError struct {
	Kind    ErrorKind
	Status  int
	Type    string
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Status != 0 && e.Type != "":
		return fmt.Sprintf("[%d][%s]: %s", e.Status, e.Type, msg)
	case e.Status != 0:
		return fmt.Sprintf("[%d]: %s", e.Status, msg)
	case e.Type != "":
		return fmt.Sprintf("[%s]: %s", e.Type, msg)
	default:
		return msg
	}
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// BackendError wraps err as a KindBackend failure unless it already is a
// GenerationError.
func BackendError(err error) *GenerationError {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}
	return &GenerationError{Kind: KindBackend, Err: err}
}

func IsKind(err error, kind ErrorKind) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr) && genErr.Kind == kind
}
