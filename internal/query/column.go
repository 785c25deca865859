package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rawlabel/internal/services"
)

// Type is the value type of a column.
type Type int

const (
	String Type = iota
	Int
	Float
	Bool
	Time
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Time:
		return "time"
	default:
		return "unknown"
	}
}

// TimeLayout is the fixed-width UTC text form used for stored timestamps so
// lexical and chronological order agree.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FoldFunc is the SQL function applying Unicode case folding. Stores that
// render case-insensitive columns must register it on their connections.
const FoldFunc = "casefold"

// Column describes one searchable and sortable field.
type Column struct {
	// Name is the public field name used in criteria and sort keys.
	Name string
	// Column is the SQL expression for stored columns.
	Column          string
	CaseInsensitive bool
	Type            Type
	// Exact selects equality matching; otherwise substring containment.
	Exact bool
	// Computed columns are not stored and only evaluate in memory.
	Computed bool
}

// Registry is the closed set of columns a caller may search and sort by.
type Registry struct {
	columns map[string]Column
}

// NewRegistry indexes columns by name. Later duplicates replace earlier ones.
func NewRegistry(columns ...Column) Registry {
	index := make(map[string]Column, len(columns))
	for _, col := range columns {
		index[col.Name] = col
	}
	return Registry{columns: index}
}

// Lookup returns the column registered under name.
func (r Registry) Lookup(name string) (Column, bool) {
	col, ok := r.columns[name]
	return col, ok
}

// cast converts a raw criteria value into the column's Go type. Substring
// columns always match on text, so their values become strings.
func (c Column) cast(raw any) (any, error) {
	if !c.Exact {
		text, ok := scalarText(raw)
		if !ok {
			return nil, c.castError(raw)
		}
		return text, nil
	}
	switch c.Type {
	case String:
		text, ok := scalarText(raw)
		if !ok {
			return nil, c.castError(raw)
		}
		return text, nil
	case Int:
		switch v := raw.(type) {
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			// int64 conversion is undefined outside [-2^63, 2^63).
			if v != math.Trunc(v) || v >= 0x1p63 || v < -0x1p63 {
				return nil, c.castError(raw)
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, c.castError(raw)
			}
			return n, nil
		}
	case Float:
		switch v := raw.(type) {
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case float64:
			return v, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, c.castError(raw)
			}
			return f, nil
		}
	case Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return nil, c.castError(raw)
			}
			return b, nil
		}
	case Time:
		switch v := raw.(type) {
		case time.Time:
			start := v.UTC().Truncate(time.Second)
			return timeRange{start: start, end: start.Add(time.Second)}, nil
		case string:
			return parseTime(v)
		}
	}
	return nil, c.castError(raw)
}

func (c Column) castError(raw any) error {
	return fmt.Errorf("%w: field %q expects %s, got %v", services.ErrInvalidCriteriaType, c.Name, c.Type, raw)
}

// parseTime accepts RFC 3339 timestamps (matched to the second) and plain
// dates (matched to the day). Both become a half-open UTC range.
func parseTime(value string) (any, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		start := t.UTC().Truncate(time.Second)
		return timeRange{start: start, end: start.Add(time.Second)}, nil
	}
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return timeRange{start: t.UTC(), end: t.UTC().AddDate(0, 0, 1)}, nil
	}
	return nil, fmt.Errorf("%w: unparseable time %q", services.ErrInvalidCriteriaType, value)
}

type timeRange struct {
	start time.Time
	end   time.Time
}

func (r timeRange) contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.start) && t.Before(r.end)
}

func scalarText(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
