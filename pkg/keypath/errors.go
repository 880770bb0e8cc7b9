package keypath

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingKey matches *MissingKeyError.
	ErrMissingKey = errors.New("missing key")
	// ErrTypeMismatch matches *TypeMismatchError.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrIndexOutOfRange matches *IndexOutOfRangeError.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// MissingKeyError is returned when a mapping key along the keypath does not exist and
// creation of missing keys is disabled.
type MissingKeyError struct {
	// Key is the key that was not found.
	Key string
	// Keypath is the part of the keypath walked before the key was looked up.
	Keypath string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing key '%s' at keypath '%s'", e.Key, e.Keypath)
}

// Is reports whether target is ErrMissingKey.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// TypeMismatchError is returned when an existing node is not the kind of container the
// keypath requires at that position.
type TypeMismatchError struct {
	Keypath string
	// Level is the depth of index nesting at which the mismatch was found. It is zero for
	// mismatches that are not inside a sequence.
	Level    int
	Expected string
	Got      string
	// Dump is a JSON rendering of the offending node.
	Dump string
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("expected %s at keypath '%s'", e.Expected, e.Keypath)
	if e.Level > 0 {
		msg += fmt.Sprintf(" (index level %d)", e.Level)
	}
	msg += fmt.Sprintf(", got %s", e.Got)
	if e.Dump != "" {
		msg += ": " + e.Dump
	}
	return msg
}

// Is reports whether target is ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// IndexOutOfRangeError is returned when a sequence index does not address an existing
// element.
type IndexOutOfRangeError struct {
	Keypath string
	Index   int
	Length  int
	Dump    string
}

func (e *IndexOutOfRangeError) Error() string {
	msg := fmt.Sprintf("index %d out of range (length %d) at keypath '%s'", e.Index, e.Length, e.Keypath)
	if e.Dump != "" {
		msg += ": " + e.Dump
	}
	return msg
}

// Is reports whether target is ErrIndexOutOfRange.
func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// withContext re-issues a list mutation error with the document keypath and a dump of
// the container it happened in. The error type is preserved.
func withContext(err error, keypath string, container any) error {
	var tm *TypeMismatchError
	if errors.As(err, &tm) {
		annotated := *tm
		annotated.Keypath = keypath + tm.Keypath
		annotated.Dump = dump(container)
		return &annotated
	}
	var oor *IndexOutOfRangeError
	if errors.As(err, &oor) {
		annotated := *oor
		annotated.Keypath = keypath + oor.Keypath
		annotated.Dump = dump(container)
		return &annotated
	}
	return fmt.Errorf("keypath '%s': %w", keypath, err)
}

// dump renders a node as compact JSON for diagnostics.
func dump(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// kindOf names the kind of a document node.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "mapping"
	case []any:
		return "sequence"
	default:
		return fmt.Sprintf("scalar (%T)", v)
	}
}
