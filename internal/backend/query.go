package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Query is a table query under construction. Filter methods mutate and
// return the same Query so calls can be chained.
type Query struct {
	client *Client
	table  string
	params url.Values
	order  []string
	single bool
}

// Select limits the returned columns ("*" by default).
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq filters rows where column equals value.
func (q *Query) Eq(column string, value any) *Query { return q.filter(column, "eq", value) }

// Neq filters rows where column differs from value.
func (q *Query) Neq(column string, value any) *Query { return q.filter(column, "neq", value) }

// Gt filters rows where column is greater than value.
func (q *Query) Gt(column string, value any) *Query { return q.filter(column, "gt", value) }

// Gte filters rows where column is greater than or equal to value.
func (q *Query) Gte(column string, value any) *Query { return q.filter(column, "gte", value) }

// Lt filters rows where column is less than value.
func (q *Query) Lt(column string, value any) *Query { return q.filter(column, "lt", value) }

// Lte filters rows where column is less than or equal to value.
func (q *Query) Lte(column string, value any) *Query { return q.filter(column, "lte", value) }

// ILike filters rows where column matches a case-insensitive pattern; "*"
// matches any run of characters.
func (q *Query) ILike(column, pattern string) *Query { return q.filter(column, "ilike", pattern) }

// In filters rows where column is one of values.
func (q *Query) In(column string, values []string) *Query {
	quoted := make([]string, len(values))
	for i, v := range values {
		if strings.ContainsAny(v, ",()\"") {
			v = strconv.Quote(v)
		}
		quoted[i] = v
	}
	q.params.Add(column, "in.("+strings.Join(quoted, ",")+")")
	return q
}

// Order sorts by column; multiple calls add secondary keys.
func (q *Query) Order(column string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.order = append(q.order, column+"."+dir)
	return q
}

// Limit caps the number of rows returned.
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.params.Set("offset", strconv.Itoa(n))
	return q
}

// Single expects exactly one row and decodes it as an object. Zero or many
// rows produce an *Error with Code PGRST116.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) filter(column, op string, value any) *Query {
	q.params.Add(column, op+"."+formatValue(value))
	return q
}

// hasFilters reports whether any row filter is set. Select, Limit and Offset
// shape the result but do not narrow which rows an update touches.
func (q *Query) hasFilters() bool {
	for k := range q.params {
		switch k {
		case "select", "limit", "offset", "order":
		default:
			return true
		}
	}
	return false
}

func (q *Query) values() url.Values {
	v := url.Values{}
	for k, vs := range q.params {
		v[k] = append([]string(nil), vs...)
	}
	if len(q.order) > 0 {
		v.Set("order", strings.Join(q.order, ","))
	}
	return v
}

// Get runs the query and decodes the rows (or the single row) into out.
func (q *Query) Get(ctx context.Context, out any) error {
	req, err := q.client.newRequest(ctx, http.MethodGet, restPath+q.table, q.values(), nil)
	if err != nil {
		return err
	}
	if q.single {
		req.Header.Set("Accept", mediaObject)
	}
	if _, err := q.client.do(req, out); err != nil {
		return fmt.Errorf("querying %s: %w", q.table, err)
	}
	return nil
}

// Count returns the exact number of rows matching the filters.
func (q *Query) Count(ctx context.Context) (int, error) {
	req, err := q.client.newRequest(ctx, http.MethodHead, restPath+q.table, q.values(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "count=exact")

	resp, err := q.client.do(req, nil)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", q.table, err)
	}
	n, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", q.table, err)
	}
	return n, nil
}

// Insert adds row to the table and decodes the stored representation into
// out. With Single the response is one object instead of an array.
func (q *Query) Insert(ctx context.Context, row any, out any) error {
	return q.write(ctx, http.MethodPost, row, out, "inserting into")
}

// Update applies patch to every row matching the filters and decodes the
// updated rows into out.
func (q *Query) Update(ctx context.Context, patch any, out any) error {
	if !q.hasFilters() {
		return fmt.Errorf("updating %s: refusing update without filters", q.table)
	}
	return q.write(ctx, http.MethodPatch, patch, out, "updating")
}

func (q *Query) write(ctx context.Context, method string, payload any, out any, verb string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s %s: encoding: %w", verb, q.table, err)
	}
	req, err := q.client.newRequest(ctx, method, restPath+q.table, q.values(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mediaJSON)
	req.Header.Set("Prefer", "return=representation")
	if q.single {
		req.Header.Set("Accept", mediaObject)
	}
	if _, err := q.client.do(req, out); err != nil {
		return fmt.Errorf("%s %s: %w", verb, q.table, err)
	}
	return nil
}

// formatValue renders a filter operand the way the query string expects.
func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "null"
	default:
		return fmt.Sprint(x)
	}
}

// parseContentRange extracts the total from "0-24/3573" or "*/0".
func parseContentRange(h string) (int, error) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 {
		return 0, fmt.Errorf("missing total in Content-Range %q", h)
	}
	n, err := strconv.Atoi(h[i+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid total in Content-Range %q: %w", h, err)
	}
	return n, nil
}
