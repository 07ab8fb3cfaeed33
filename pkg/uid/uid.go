package uid

import "github.com/google/uuid"

// New generates a new request identifier.
func New() string {
	return uuid.New().String()
}

// Sanitize returns id if it is a valid UUID, or a fresh one. Client-supplied
// request ids are echoed into logs, so arbitrary strings are not accepted.
func Sanitize(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return New()
}
