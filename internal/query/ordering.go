package query

import (
	"cmp"
	"fmt"
	"strings"

	"rawlabel/internal/services"
	"rawlabel/internal/textutil"
)

// Ordering is a single-column sort. The zero value leaves rows unordered.
type Ordering struct {
	Column     Column
	Descending bool
	set        bool
}

func parseOrdering(registry Registry, sortKey string) (Ordering, error) {
	key := strings.TrimSpace(sortKey)
	if key == "" {
		return Ordering{}, nil
	}
	descending := strings.HasPrefix(key, "-")
	name := strings.TrimPrefix(key, "-")
	col, ok := registry.Lookup(name)
	if !ok {
		return Ordering{}, fmt.Errorf("%w: %q", services.ErrUnknownSortField, name)
	}
	return Ordering{Column: col, Descending: descending, set: true}, nil
}

// IsSet reports whether a sort column was requested.
func (o Ordering) IsSet() bool {
	return o.set
}

// SQL renders the ORDER BY term for a stored column, or "" when unset or
// computed.
func (o Ordering) SQL() string {
	if !o.set || o.Column.Computed {
		return ""
	}
	expr := o.Column.Column
	if o.Column.CaseInsensitive && o.Column.Type == String {
		expr = FoldFunc + "(" + expr + ")"
	}
	if o.Descending {
		return expr + " DESC"
	}
	return expr + " ASC"
}

// Compare orders two rows by the sort column. Missing values sort before
// present ones in ascending order. An unset ordering reports every pair equal.
func (o Ordering) Compare(a, b Row) int {
	if !o.set {
		return 0
	}
	result := compareValues(o.Column, a[o.Column.Name], b[o.Column.Name])
	if o.Descending {
		return -result
	}
	return result
}

func compareValues(col Column, a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if x, ok := numberOf(a); ok {
		if y, ok := numberOf(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}
	if x, ok := timeOf(a); ok {
		if y, ok := timeOf(b); ok {
			return x.Compare(y)
		}
	}
	x, _ := textOf(a)
	y, _ := textOf(b)
	if col.CaseInsensitive {
		x, y = textutil.Fold(x), textutil.Fold(y)
	}
	return strings.Compare(x, y)
}
