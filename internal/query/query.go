package query

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// Query is the full request shape sent to the content store.
type Query struct {
	// Depth controls reference expansion: 0 returns ids, >= 1 inlines records.
	Depth int
	// Limit of 0 leaves the store default in place.
	Limit  int
	Skip   int
	Select []string
	// Order lists field names; a leading "-" sorts descending.
	Order  []string
	Filter Filter
}

// Result is the store response for one query.
type Result struct {
	Items []json.RawMessage `json:"items"`
	Total int               `json:"total"`
}

// Values encodes q as URL query parameters for the HTTP store.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("depth", strconv.Itoa(q.Depth))
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if len(q.Select) > 0 {
		v.Set("select", strings.Join(q.Select, ","))
	}
	if len(q.Order) > 0 {
		v.Set("order", strings.Join(q.Order, ","))
	}
	for _, c := range q.Filter.conds {
		if c.Op == Eq {
			v.Add(c.Field, c.Value)
			continue
		}
		v.Add(c.Field+"["+string(c.Op)+"]", c.Value)
	}
	if len(q.Filter.anyOf) > 0 {
		data, err := json.Marshal(orObjects(q.Filter.anyOf))
		if err == nil {
			v.Set("or", string(data))
		}
	}
	return v
}

// Descending returns the order key sorting field in descending order.
func Descending(field string) string {
	return "-" + field
}

// ParseOrder splits an order key into its field and direction.
func ParseOrder(key string) (field string, desc bool) {
	if strings.HasPrefix(key, "-") {
		return key[1:], true
	}
	return key, false
}
