package object

import (
	"errors"
	"fmt"
)

// ErrCorruptData matches every *CorruptDataError via errors.Is.
var ErrCorruptData = errors.New("corrupt data")

// CorruptDataError reports a blob or tree that could not be decoded. During
// index builds it is fatal to the one record only.
type CorruptDataError struct {
	What string // "tree", "blob", "entry", ...
	Path string
	Sha  Hash
	Err  error
}

func (e *CorruptDataError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := "corrupt " + e.What
	if e.Path != "" {
		msg += fmt.Sprintf(" %q", e.Path)
	}
	if e.Sha != "" {
		msg += fmt.Sprintf(" (%s)", e.Sha.Short())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptDataError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *CorruptDataError) Is(target error) bool {
	return target == ErrCorruptData
}
