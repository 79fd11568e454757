package memstore

import "fmt"

// ConstraintError mirrors the unique / check violations a relational
// store would raise.
type ConstraintError struct {
	Constraint string
	Reason     string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("memstore: %s violates %s", e.Reason, e.Constraint)
}

func errDuplicate(c string) error { return &ConstraintError{Constraint: c, Reason: "duplicate key"} }
func errCheck(c string) error     { return &ConstraintError{Constraint: c, Reason: "check"} }
