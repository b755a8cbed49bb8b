package relation

import (
	"errors"
	"fmt"
	"strings"
)

// MissingTableError reports a named register table that was not supplied.
type MissingTableError struct {
	Table string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("table %s not found", e.Table)
}

// MissingColumnError reports a supplied table without the columns a stage needs.
type MissingColumnError struct {
	Table   string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %s missing columns: %s", e.Table, strings.Join(e.Columns, ", "))
}

func IsMissingTable(err error) bool {
	var target *MissingTableError
	return errors.As(err, &target)
}

func IsMissingColumn(err error) bool {
	var target *MissingColumnError
	return errors.As(err, &target)
}
