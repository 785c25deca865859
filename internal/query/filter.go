package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"rawlabel/internal/services"
	"rawlabel/internal/textutil"
)

// Row is one record evaluated in memory, keyed by column name. Missing or nil
// values never match a condition.
type Row map[string]any

// Condition is a single typed predicate.
type Condition struct {
	Column Column
	// Value holds the cast criteria value: string, int64, float64, bool or a
	// time range.
	Value any
}

// Filter is an AND of conditions in ascending field-name order.
type Filter struct {
	Conditions []Condition
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.Conditions) == 0
}

// Split separates stored conditions, which SQL can evaluate, from computed
// ones that need Match.
func (f Filter) Split() (stored, computed Filter) {
	for _, cond := range f.Conditions {
		if cond.Column.Computed {
			computed.Conditions = append(computed.Conditions, cond)
		} else {
			stored.Conditions = append(stored.Conditions, cond)
		}
	}
	return stored, computed
}

// SQL renders the stored conditions as a boolean expression joined with AND,
// plus positional arguments. Computed conditions are skipped. An empty
// expression means no restriction.
func (f Filter) SQL() (string, []any) {
	fragments := make([]string, 0, len(f.Conditions))
	args := make([]any, 0, len(f.Conditions))
	for _, cond := range f.Conditions {
		col := cond.Column
		if col.Computed {
			continue
		}
		expr := col.Column
		switch v := cond.Value.(type) {
		case string:
			if col.CaseInsensitive {
				expr = FoldFunc + "(" + expr + ")"
				v = textutil.Fold(v)
			}
			if col.Exact {
				fragments = append(fragments, expr+" = ?")
			} else {
				fragments = append(fragments, "instr("+expr+", ?) > 0")
			}
			args = append(args, v)
		case timeRange:
			fragments = append(fragments, "("+expr+" >= ? AND "+expr+" < ?)")
			args = append(args, v.start.Format(TimeLayout), v.end.Format(TimeLayout))
		default:
			fragments = append(fragments, expr+" = ?")
			args = append(args, v)
		}
	}
	return strings.Join(fragments, " AND "), args
}

// Match evaluates every condition against row.
func (f Filter) Match(row Row) bool {
	for _, cond := range f.Conditions {
		if !cond.match(row[cond.Column.Name]) {
			return false
		}
	}
	return true
}

func (c Condition) match(value any) bool {
	if value == nil {
		return false
	}
	col := c.Column
	switch want := c.Value.(type) {
	case string:
		got, ok := textOf(value)
		if !ok {
			return false
		}
		if col.CaseInsensitive {
			got, want = textutil.Fold(got), textutil.Fold(want)
		}
		if col.Exact {
			return got == want
		}
		return strings.Contains(got, want)
	case timeRange:
		t, ok := timeOf(value)
		return ok && want.contains(t)
	case int64:
		got, ok := numberOf(value)
		return ok && got == float64(want)
	case float64:
		got, ok := numberOf(value)
		return ok && got == want
	case bool:
		got, ok := value.(bool)
		return ok && got == want
	}
	return false
}

// Build validates criteria against registry and resolves sortKey. A sortKey
// of "-field" sorts descending, "field" ascending and "" leaves rows
// unordered.
func Build(registry Registry, criteria map[string]any, sortKey string) (Filter, Ordering, error) {
	names := make([]string, 0, len(criteria))
	for name := range criteria {
		names = append(names, name)
	}
	sort.Strings(names)

	var filter Filter
	for _, name := range names {
		col, ok := registry.Lookup(name)
		if !ok {
			return Filter{}, Ordering{}, fmt.Errorf("%w: %q", services.ErrUnknownField, name)
		}
		value, err := col.cast(criteria[name])
		if err != nil {
			return Filter{}, Ordering{}, err
		}
		filter.Conditions = append(filter.Conditions, Condition{Column: col, Value: value})
	}

	ordering, err := parseOrdering(registry, sortKey)
	if err != nil {
		return Filter{}, Ordering{}, err
	}
	return filter, ordering, nil
}

func textOf(value any) (string, bool) {
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(TimeLayout), true
	}
	return scalarText(value)
}

func timeOf(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(TimeLayout, v)
		return t, err == nil
	}
	return time.Time{}, false
}

func numberOf(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}
