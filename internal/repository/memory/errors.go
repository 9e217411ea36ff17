package memory

import "fmt"

// DuplicateError mirrors a unique-constraint violation.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("memory: duplicate %s %s", e.Entity, e.Key)
}

func errDuplicate(entity, key string) error {
	return &DuplicateError{Entity: entity, Key: key}
}
