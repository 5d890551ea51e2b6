package devserver

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Op is a comparison operator in a row filter.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpIn    Op = "in"
	OpILike Op = "ilike"
)

var knownOps = map[Op]bool{OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true, OpIn: true, OpILike: true}

// Cond is one column condition. Values is used by OpIn.
type Cond struct {
	Column string
	Op     Op
	Value  string
	Values []string
}

// OrderBy is one sort key.
type OrderBy struct {
	Column string
	Desc   bool
}

// Filter selects, sorts and pages rows. All conditions must hold.
type Filter struct {
	Conds  []Cond
	Order  []OrderBy
	Limit  int // 0 = unlimited
	Offset int
}

// Where returns a filter with a single condition.
func Where(column string, op Op, value any) Filter {
	return Filter{}.And(column, op, value)
}

// And returns f with one more condition.
func (f Filter) And(column string, op Op, value any) Filter {
	c := Cond{Column: column, Op: op}
	if vs, ok := value.([]string); ok {
		c.Values = vs
	} else {
		c.Value = stringify(value)
	}
	f.Conds = append(append([]Cond(nil), f.Conds...), c)
	return f
}

// SortBy returns f ordered by column.
func (f Filter) SortBy(column string, desc bool) Filter {
	f.Order = append(append([]OrderBy(nil), f.Order...), OrderBy{Column: column, Desc: desc})
	return f
}

// Take returns f limited to n rows.
func (f Filter) Take(n int) Filter {
	f.Limit = n
	return f
}

var reservedParams = map[string]bool{"select": true, "order": true, "limit": true, "offset": true, "on_conflict": true, "columns": true}

// ParseFilter builds a Filter from query parameters such as
// "user_id=eq.42&order=created_at.desc&limit=50".
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter

	columns := make([]string, 0, len(q))
	for k := range q {
		if !reservedParams[k] {
			columns = append(columns, k)
		}
	}
	sort.Strings(columns)

	for _, col := range columns {
		for _, raw := range q[col] {
			op, val, ok := strings.Cut(raw, ".")
			if !ok || !knownOps[Op(op)] {
				return Filter{}, fmt.Errorf("unsupported filter %s=%s", col, raw)
			}
			c := Cond{Column: col, Op: Op(op), Value: val}
			if c.Op == OpIn {
				vals, err := parseList(val)
				if err != nil {
					return Filter{}, fmt.Errorf("filter %s: %w", col, err)
				}
				c.Values = vals
				c.Value = ""
			}
			f.Conds = append(f.Conds, c)
		}
	}

	if order := q.Get("order"); order != "" {
		for _, part := range strings.Split(order, ",") {
			col, dir, _ := strings.Cut(part, ".")
			switch dir {
			case "", "asc":
				f.Order = append(f.Order, OrderBy{Column: col})
			case "desc":
				f.Order = append(f.Order, OrderBy{Column: col, Desc: true})
			default:
				return Filter{}, fmt.Errorf("unsupported order direction %q", dir)
			}
		}
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Filter{}, fmt.Errorf("invalid limit %q", s)
		}
		f.Limit = n
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Filter{}, fmt.Errorf("invalid offset %q", s)
		}
		f.Offset = n
	}
	return f, nil
}

// parseList parses "(a,b,"c,d")".
func parseList(s string) ([]string, error) {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("list %q must be parenthesized", s)
	}
	body := s[1 : len(s)-1]
	var out []string
	for body != "" {
		if body[0] == '"' {
			end := 1
			for end < len(body) && (body[end] != '"' || body[end-1] == '\\') {
				end++
			}
			if end >= len(body) {
				return nil, fmt.Errorf("unterminated quote in %q", s)
			}
			v, err := strconv.Unquote(body[:end+1])
			if err != nil {
				return nil, fmt.Errorf("bad quoted value in %q: %w", s, err)
			}
			out = append(out, v)
			body = strings.TrimPrefix(body[end+1:], ",")
			continue
		}
		v, rest, _ := strings.Cut(body, ",")
		out = append(out, v)
		body = rest
	}
	return out, nil
}

// IsEmpty reports whether f has no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.Conds) == 0
}

// Match reports whether row satisfies every condition.
func (f Filter) Match(row Row) bool {
	for _, c := range f.Conds {
		if !c.match(row) {
			return false
		}
	}
	return true
}

// Apply returns the matching rows, sorted and paged.
func (f Filter) Apply(rows []Row) []Row {
	var out []Row
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}

	if len(f.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range f.Order {
				a, b := out[i][o.Column], out[j][o.Column]
				if a == nil || b == nil {
					if (a == nil) == (b == nil) {
						continue
					}
					return b == nil // nulls last
				}
				cmp := compare(stringify(a), stringify(b))
				if cmp == 0 {
					continue
				}
				if o.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (c Cond) match(row Row) bool {
	v, present := row[c.Column]
	if !present || v == nil {
		switch c.Op {
		case OpEq:
			return c.Value == "null"
		case OpNeq:
			return c.Value != "null"
		default:
			return false
		}
	}
	s := stringify(v)

	switch c.Op {
	case OpEq:
		return compare(s, c.Value) == 0
	case OpNeq:
		return compare(s, c.Value) != 0
	case OpGt:
		return compare(s, c.Value) > 0
	case OpGte:
		return compare(s, c.Value) >= 0
	case OpLt:
		return compare(s, c.Value) < 0
	case OpLte:
		return compare(s, c.Value) <= 0
	case OpIn:
		for _, want := range c.Values {
			if compare(s, want) == 0 {
				return true
			}
		}
		return false
	case OpILike:
		return likeMatch(c.Value, s)
	default:
		return false
	}
}

// compare orders two column values: numerically when both are numbers,
// chronologically when both are timestamps, otherwise as strings.
func compare(a, b string) int {
	if da, err := decimal.NewFromString(a); err == nil {
		if db, err := decimal.NewFromString(b); err == nil {
			return da.Cmp(db)
		}
	}
	if ta, err := time.Parse(time.RFC3339Nano, a); err == nil {
		if tb, err := time.Parse(time.RFC3339Nano, b); err == nil {
			return ta.Compare(tb)
		}
	}
	return strings.Compare(a, b)
}

// likeMatch matches s against a case-insensitive pattern where "*" and "%"
// match any run of characters.
func likeMatch(pattern, s string) bool {
	var b strings.Builder
	b.WriteString("(?is)^")
	for _, r := range pattern {
		if r == '*' || r == '%' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
