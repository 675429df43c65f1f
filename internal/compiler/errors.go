package compiler

import (
	"errors"
	"fmt"
)

// Compiler errors.
var (
	ErrImport    = errors.New("import failed")
	ErrSerialize = errors.New("serialization failed")
	ErrNoSource  = errors.New("no source mesh loaded")
	ErrLimit     = errors.New("geometry exceeds descriptor limits")
)

// ContractViolation is the panic value raised when the raw mesh breaks the
// builder's ordering or index-range contract. It signals a bug upstream of
// the compiler and is never recovered.
type ContractViolation struct {
	Facet  int
	Reason string
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("raw mesh contract violated at facet %d: %s", e.Facet, e.Reason)
}

func violate(facet int, format string, args ...any) {
	panic(&ContractViolation{Facet: facet, Reason: fmt.Sprintf(format, args...)})
}
