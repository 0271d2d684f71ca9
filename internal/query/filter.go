package query

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/TobiSchelling/blogagg/internal/content"
)

// Op is a comparison operator understood by the content store.
type Op string

const (
	Eq    Op = "eq"
	Match Op = "match"
	Lt    Op = "lt"
	Lte   Op = "lte"
	Gt    Op = "gt"
	Gte   Op = "gte"
)

// TimeLayout matches the ISO form the store emits and accepts for timestamps.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Condition is a single predicate on one field.
type Condition struct {
	Field string
	Op    Op
	Value string
}

// Filter is a conjunction of conditions plus an optional disjunction group.
// The zero value matches everything.
type Filter struct {
	conds []Condition
	anyOf []Condition
}

// Conditions returns the AND-ed conditions in insertion order.
func (f Filter) Conditions() []Condition {
	return append([]Condition(nil), f.conds...)
}

// AnyOf returns the OR group, empty when unset.
func (f Filter) AnyOf() []Condition {
	return append([]Condition(nil), f.anyOf...)
}

// IsEmpty reports whether the filter has no predicates.
func (f Filter) IsEmpty() bool {
	return len(f.conds) == 0 && len(f.anyOf) == 0
}

// Where returns a copy of f where every condition on field is replaced by
// conds. Passing no conditions removes the field.
func (f Filter) Where(field string, conds ...Condition) Filter {
	out := Filter{anyOf: append([]Condition(nil), f.anyOf...)}
	for _, c := range f.conds {
		if c.Field != field {
			out.conds = append(out.conds, c)
		}
	}
	for _, c := range conds {
		c.Field = field
		out.conds = append(out.conds, c)
	}
	return out
}

// Equal is shorthand for Where(field, eq value).
func (f Filter) Equal(field, value string) Filter {
	return f.Where(field, Condition{Op: Eq, Value: value})
}

// Or returns a copy of f whose OR group is replaced by conds.
func (f Filter) Or(conds ...Condition) Filter {
	return Filter{
		conds: append([]Condition(nil), f.conds...),
		anyOf: append([]Condition(nil), conds...),
	}
}

// CreatedBefore filters records created strictly before t.
func (f Filter) CreatedBefore(t time.Time) Filter {
	return f.Where(content.FieldCreatedAt, Condition{Op: Lt, Value: FormatTime(t)})
}

// CreatedAfter filters records created strictly after t.
func (f Filter) CreatedAfter(t time.Time) Filter {
	return f.Where(content.FieldCreatedAt, Condition{Op: Gt, Value: FormatTime(t)})
}

// InYear filters records created in [year-01-01, (year+1)-01-01) UTC.
func (f Filter) InYear(year int) Filter {
	start, end := YearRange(year)
	return f.Where(content.FieldCreatedAt,
		Condition{Op: Gte, Value: FormatTime(start)},
		Condition{Op: Lt, Value: FormatTime(end)},
	)
}

// YearRange returns the half-open UTC interval covering year.
func YearRange(year int) (start, end time.Time) {
	start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}

// MarshalJSON renders the filter in the store's object notation, e.g.
// {"tags":"id","_sys.createdAt":{"gte":"..."},"or":[...]}.
func (f Filter) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any)
	for _, c := range f.conds {
		if c.Op == Eq {
			obj[c.Field] = c.Value
			continue
		}
		ops, ok := obj[c.Field].(map[string]string)
		if !ok {
			ops = make(map[string]string)
			obj[c.Field] = ops
		}
		ops[string(c.Op)] = c.Value
	}
	if len(f.anyOf) > 0 {
		obj["or"] = orObjects(f.anyOf)
	}
	return json.Marshal(obj)
}

func orObjects(conds []Condition) []map[string]any {
	out := make([]map[string]any, 0, len(conds))
	for _, c := range conds {
		if c.Op == Eq {
			out = append(out, map[string]any{c.Field: c.Value})
			continue
		}
		out = append(out, map[string]any{c.Field: map[string]string{string(c.Op): c.Value}})
	}
	return out
}

// String is a compact human-readable form used in logs.
func (f Filter) String() string {
	var parts []string
	for _, c := range f.conds {
		parts = append(parts, c.Field+" "+string(c.Op)+" "+c.Value)
	}
	if len(f.anyOf) > 0 {
		var alts []string
		for _, c := range f.anyOf {
			alts = append(alts, c.Field+" "+string(c.Op)+" "+c.Value)
		}
		parts = append(parts, "("+strings.Join(alts, " or ")+")")
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " and ")
}
