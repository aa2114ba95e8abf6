// Package labels maps model class indices to names.
package labels

import (
	"fmt"
)

// Default is the compiled-in class table.
var Default = []string{"person", "bicycle", "car"}

// Label is the result of resolving a class id.
type Label struct {
	ID    int
	Name  string
	Known bool
}

func (l Label) String() string {
	if l.Known {
		return l.Name
	}
	return fmt.Sprintf("unknown class ID %d", l.ID)
}

// Table is an immutable ordered list of class names.
type Table struct {
	names []string
}

// NewTable copies names into a new table.
func NewTable(names []string) *Table {
	return &Table{names: append([]string(nil), names...)}
}

// Len returns the number of classes.
func (t *Table) Len() int { return len(t.names) }

// Resolve returns the label for id. Ids outside [0, Len) resolve to an
// unknown label carrying the raw id.
func (t *Table) Resolve(id int) Label {
	if id < 0 || id >= len(t.names) {
		return Label{ID: id}
	}
	return Label{ID: id, Name: t.names[id], Known: true}
}
