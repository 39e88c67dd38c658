package field

import (
	"fmt"

	"github.com/roach88/formsync/internal/ir"
)

// ValueError is returned when a field rejects a value.
type ValueError struct {
	Field   ir.FieldID
	Type    ir.FieldType
	Message string
}

// Error implements the error interface.
func (e *ValueError) Error() string {
	return fmt.Sprintf("field %s (%s): %s", e.Field, e.Type, e.Message)
}
