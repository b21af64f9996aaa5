package nparray

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfig is returned if array can't be constructed from the provided configuration.
	ErrConfig = errors.New("invalid array configuration")

	// ErrType is returned if value is of the wrong type.
	ErrType = errors.New("wrong type")

	// ErrValue is returned if value has the right type but is not acceptable.
	ErrValue = errors.New("wrong value")

	// ErrIndex is returned if index is out of bounds.
	ErrIndex = errors.New("index out of bounds")

	// ErrUnsupportedIndex is returned if index is neither an integer nor a slice.
	ErrUnsupportedIndex = errors.New("unsupported index type")
)

// ConfigError is returned when array is constructed from invalid configuration.
// It matches ErrConfig and its Kind.
type ConfigError struct {
	Kind error
	Msg  string
}

func (e *ConfigError) Error() string {
	if e.Kind == nil {
		return fmt.Sprintf("%s: %s", ErrConfig, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", ErrConfig, e.Kind, e.Msg)
}

// Is makes the error match ErrConfig and its kind.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig || (e.Kind != nil && target == e.Kind)
}

func configError(kind error, format string, args ...any) error {
	return errors.WithStack(&ConfigError{Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// IndexError reports index or slice bound outside the array.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d is out of bounds for axis 0 with size %d", e.Index, e.Len)
}

// Is makes the error match ErrIndex.
func (e *IndexError) Is(target error) bool {
	return target == ErrIndex
}

func indexError(index, n int) error {
	return errors.WithStack(&IndexError{Index: index, Len: n})
}
