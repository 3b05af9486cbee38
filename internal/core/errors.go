package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrMalformedRow marks a row that is skipped while the rest of its table is processed.
	ErrMalformedRow = errors.New("malformed row")
	// ErrMissingColumn marks a table lacking a required column; the table is skipped.
	ErrMissingColumn = errors.New("missing required column")
	// ErrMissingCollaboratorData marks an expected sheet or folder that does not exist.
	ErrMissingCollaboratorData = errors.New("missing collaborator data")
	// ErrUncoveredExpense marks a quarter whose expense exceeded the available income.
	ErrUncoveredExpense = errors.New("uncovered expense")

	ErrNoSources = errors.New("no funding sources to process")
	ErrNoCatalog = errors.New("account catalog is empty")
)

// MalformedRowError describes why a row could not be read.
type MalformedRowError struct {
	Line   int
	Field  string
	Value  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	var b strings.Builder
	b.WriteString("malformed row")
	if e.Line > 0 {
		fmt.Fprintf(&b, " %d", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s", e.Field)
		if e.Value != "" {
			fmt.Fprintf(&b, "=%q", e.Value)
		}
		b.WriteString(")")
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *MalformedRowError) Unwrap() error { return ErrMalformedRow }

// MissingColumnError lists the required headers a table lacks.
type MissingColumnError struct {
	Table   string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %q: missing %s", e.Table, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// MissingDataError names a collaborator object that could not be found.
type MissingDataError struct {
	What string
	Name string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("%s %q not found", e.What, e.Name)
}

func (e *MissingDataError) Unwrap() error { return ErrMissingCollaboratorData }
