package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   string
}

func newTestServer(t *testing.T, status int, body string, headers map[string]string) (*Client, *capturedRequest) {
	t.Helper()
	got := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		*got = capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   string(data),
		}
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "anon", WithAccessToken("user-token"))
	require.NoError(t, err)
	return c, got
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "key")
	assert.Error(t, err)

	_, err = New("http://localhost", "")
	assert.Error(t, err)

	_, err = New("ftp://localhost", "key")
	assert.ErrorContains(t, err, "must be http or https")
}

func TestRPC(t *testing.T) {
	c, got := newTestServer(t, http.StatusOK, `[{"success":true,"message":"ok"}]`, nil)

	var out []struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	err := c.RPC(context.Background(), "process_simple_transfer", map[string]any{"p_amount": 500}, &out)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/rest/v1/rpc/process_simple_transfer", got.Path)
	assert.Equal(t, "anon", got.Header.Get("apikey"))
	assert.Equal(t, "dinar-wallet/dev", got.Header.Get("User-Agent"))
	assert.Equal(t, "Bearer user-token", got.Header.Get("Authorization"))
	assert.JSONEq(t, `{"p_amount":500}`, got.Body)
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, "ok", out[0].Message)
}

func TestRPC_ErrorIsVerbatim(t *testing.T) {
	c, _ := newTestServer(t, http.StatusBadRequest, `{"code":"P0001","message":"Recipient not found"}`, nil)

	err := c.RPC(context.Background(), "process_simple_transfer", nil, nil)
	require.Error(t, err)

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.Equal(t, "P0001", be.Code)
	assert.Equal(t, "Recipient not found", be.Error())
	assert.Equal(t, "Recipient not found", be.UserMessage())
}

func TestRPC_PlainTextError(t *testing.T) {
	c, _ := newTestServer(t, http.StatusBadGateway, "upstream down", nil)

	err := c.RPC(context.Background(), "anything", nil, nil)
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "upstream down", be.Message)
}

func TestQuery_Get(t *testing.T) {
	c, got := newTestServer(t, http.StatusOK, `[{"id":"t1"},{"id":"t2"}]`, nil)

	var rows []struct {
		ID string `json:"id"`
	}
	err := c.From("transactions").
		Select("*").
		Eq("user_id", "u1").
		Gte("created_at", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)).
		Order("created_at", false).
		Order("id", true).
		Limit(50).
		Get(context.Background(), &rows)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/rest/v1/transactions", got.Path)
	assert.Equal(t, []string{"*"}, got.Query["select"])
	assert.Equal(t, []string{"eq.u1"}, got.Query["user_id"])
	assert.Equal(t, []string{"gte.2025-01-01T00:00:00Z"}, got.Query["created_at"])
	assert.Equal(t, []string{"created_at.desc,id.asc"}, got.Query["order"])
	assert.Equal(t, []string{"50"}, got.Query["limit"])
	assert.Len(t, rows, 2)
}

func TestQuery_SingleNotFound(t *testing.T) {
	c, got := newTestServer(t, http.StatusNotAcceptable,
		`{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`, nil)

	var row map[string]any
	err := c.From("transfer_limits").Eq("user_id", "u1").Single().Get(context.Background(), &row)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, mediaObject, got.Header.Get("Accept"))
}

func TestQuery_In(t *testing.T) {
	c, got := newTestServer(t, http.StatusOK, `[]`, nil)

	err := c.From("users").In("id", []string{"a", "b,c"}).Get(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`in.(a,"b,c")`}, got.Query["id"])
}

func TestQuery_Count(t *testing.T) {
	c, got := newTestServer(t, http.StatusOK, "", map[string]string{"Content-Range": "*/7"})

	n, err := c.From("referrals").Eq("referrer_id", "u1").Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, http.MethodHead, got.Method)
	assert.Equal(t, "count=exact", got.Header.Get("Prefer"))
}

func TestQuery_Insert(t *testing.T) {
	c, got := newTestServer(t, http.StatusCreated, `{"id":"n1","title":"hi"}`, nil)

	var out struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	err := c.From("notifications").Single().Insert(context.Background(), map[string]any{"title": "hi"}, &out)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "return=representation", got.Header.Get("Prefer"))
	assert.Equal(t, "n1", out.ID)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Body), &sent))
	assert.Equal(t, "hi", sent["title"])
}

func TestQuery_UpdateRequiresFilter(t *testing.T) {
	c, _ := newTestServer(t, http.StatusOK, `[]`, nil)

	err := c.From("cards").Update(context.Background(), map[string]any{"is_frozen": true}, nil)
	assert.ErrorContains(t, err, "refusing update without filters")

	err = c.From("cards").Select("*").Limit(1).Offset(2).Order("created_at", false).Update(context.Background(), map[string]any{"is_frozen": true}, nil)
	assert.ErrorContains(t, err, "refusing update without filters", "select, limit, offset and order are not filters")

	err = c.From("cards").Select("*").Eq("id", "c1").Update(context.Background(), map[string]any{"is_frozen": true}, nil)
	assert.NoError(t, err)
}

func TestParseContentRange(t *testing.T) {
	n, err := parseContentRange("0-24/3573")
	require.NoError(t, err)
	assert.Equal(t, 3573, n)

	_, err = parseContentRange("")
	assert.Error(t, err)

	_, err = parseContentRange("0-1/*")
	assert.Error(t, err)
}

func TestSubjectFromToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-42"})
	signed, err := token.SignedString([]byte("whatever"))
	require.NoError(t, err)

	sub, err := SubjectFromToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)

	_, err = SubjectFromToken("not-a-jwt")
	assert.Error(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("x"))
	require.NoError(t, err)
	_, err = SubjectFromToken(noSub)
	assert.ErrorContains(t, err, "no subject")
}
