package snowflake

import (
	"errors"
	"fmt"
)

// NotFoundError indicates that a warehouse object does not exist.
type NotFoundError struct {
	// Kind names the object type, e.g. "streamlit" or "stage".
	Kind string
	// Name is the qualified object name that was looked up.
	Name string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "object not found"
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IsNotFound reports whether err indicates a missing warehouse object.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
