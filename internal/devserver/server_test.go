package devserver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinarwallet/wallet/internal/backend"
)

const (
	testAnonKey = "test-anon-key"
	testSecret  = "test-secret"
)

func newTestServer(t *testing.T) (*httptest.Server, *fixture) {
	t.Helper()
	f := newFixture(t)
	srv := NewServer(f.store, Options{
		AnonKey:   testAnonKey,
		JWTSecret: testSecret,
		Now:       func() time.Time { return testNow },
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, f
}

func newTestClient(t *testing.T, url string, opts ...backend.Option) *backend.Client {
	t.Helper()
	c, err := backend.New(url, testAnonKey, opts...)
	require.NoError(t, err)
	return c
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RejectsBadAPIKey(t *testing.T) {
	ts, _ := newTestServer(t)
	c, err := backend.New(ts.URL, "wrong")
	require.NoError(t, err)

	var rows []map[string]any
	err = c.From(TableUsers).Get(context.Background(), &rows)
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusUnauthorized, be.Status)
	assert.Equal(t, "Invalid API key", be.Message)
}

func TestServer_RejectsBadToken(t *testing.T) {
	ts, _ := newTestServer(t)
	forged, err := IssueToken("other-secret", "someone", "", time.Hour)
	require.NoError(t, err)

	c := newTestClient(t, ts.URL, backend.WithAccessToken(forged))
	err = c.From(TableUsers).Get(context.Background(), &[]map[string]any{})
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "PGRST301", be.Code)
}

func TestServer_TableQueries(t *testing.T) {
	ts, f := newTestServer(t)
	c := newTestClient(t, ts.URL)
	ctx := context.Background()
	amina := f.users["amina@example.dz"]

	var bal struct {
		UserID string          `json:"user_id"`
		DZD    decimal.Decimal `json:"dzd"`
	}
	require.NoError(t, c.From(TableBalances).Select("user_id,dzd").Eq("user_id", amina.ID).Single().Get(ctx, &bal))
	assert.Equal(t, amina.ID, bal.UserID)
	assert.True(t, bal.DZD.Equal(decimal.NewFromInt(15000)))

	err := c.From(TableBalances).Eq("user_id", "missing").Single().Get(ctx, &bal)
	assert.True(t, backend.IsNotFound(err))

	n, err := c.From(TableUsers).ILike("email", "*@example.dz").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var tx []map[string]any
	require.NoError(t, c.From(TableTransactions).Insert(ctx, map[string]any{
		"user_id": amina.ID, "type": "recharge", "amount": "250.00", "currency": "dzd",
	}, &tx))
	require.Len(t, tx, 1)
	assert.NotEmpty(t, tx[0]["id"])

	var updated []map[string]any
	require.NoError(t, c.From(TableTransactions).Eq("id", tx[0]["id"]).Update(ctx, map[string]any{"status": "failed"}, &updated))
	require.Len(t, updated, 1)
	assert.Equal(t, "failed", updated[0]["status"])

	var users []map[string]any
	require.NoError(t, c.From(TableUsers).Select("email").Order("full_name", false).Limit(2).Get(ctx, &users))
	require.Len(t, users, 2)
	assert.Equal(t, map[string]any{"email": "yacine@example.dz"}, users[0])
}

func TestServer_TableWritesAreScopedToTokenSubject(t *testing.T) {
	ts, f := newTestServer(t)
	ctx := context.Background()
	amina, sara := f.users["amina@example.dz"], f.users["sara@example.dz"]
	token, err := IssueToken(testSecret, amina.ID, amina.Email, time.Hour)
	require.NoError(t, err)
	c := newTestClient(t, ts.URL, backend.WithAccessToken(token))

	var be *backend.Error
	err = c.From(TableNotifications).Insert(ctx, map[string]any{"user_id": sara.ID, "title": "hi"}, &[]map[string]any{})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusForbidden, be.Status)
	assert.Equal(t, "42501", be.Code)

	var own []map[string]any
	require.NoError(t, c.From(TableNotifications).Insert(ctx, map[string]any{"user_id": amina.ID, "title": "hi"}, &own))
	require.Len(t, own, 1)

	// Another user's balance is out of reach: the update matches nothing.
	var updated []map[string]any
	require.NoError(t, c.From(TableBalances).Eq("user_id", sara.ID).Update(ctx, map[string]any{"dzd": 0}, &updated))
	assert.Empty(t, updated)
	var bal map[string]any
	require.NoError(t, c.From(TableBalances).Eq("user_id", sara.ID).Single().Get(ctx, &bal))
	assert.NotEqual(t, "0", fmt.Sprint(bal["dzd"]))

	err = c.From(TableNotifications).Eq("id", own[0]["id"]).Update(ctx, map[string]any{"user_id": sara.ID}, &updated)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "42501", be.Code)

	require.NoError(t, c.From(TableNotifications).Eq("id", own[0]["id"]).Update(ctx, map[string]any{"is_read": true}, &updated))
	require.Len(t, updated, 1)
	assert.Equal(t, true, updated[0]["is_read"])
}

func TestServer_UnknownTableAndFunction(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newTestClient(t, ts.URL)
	ctx := context.Background()

	err := c.From("secrets").Get(ctx, &[]map[string]any{})
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "PGRST205", be.Code)

	err = c.RPC(ctx, "drop_everything", nil, nil)
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "PGRST202", be.Code)
	assert.Equal(t, http.StatusNotFound, be.Status)
}

func TestServer_UpdateRequiresFilter(t *testing.T) {
	ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodPatch, ts.URL+"/rest/v1/balances", strings.NewReader(`{"dzd":0}`))
	require.NoError(t, err)
	req.Header.Set("apikey", testAnonKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_TransferRPC(t *testing.T) {
	ts, f := newTestServer(t)
	amina := f.users["amina@example.dz"]
	token, err := IssueToken(testSecret, amina.ID, amina.Email, time.Hour)
	require.NoError(t, err)
	c := newTestClient(t, ts.URL, backend.WithAccessToken(token))
	ctx := context.Background()

	var out []struct {
		Success          bool            `json:"success"`
		Message          string          `json:"message"`
		ReferenceNumber  string          `json:"reference_number"`
		SenderNewBalance decimal.Decimal `json:"sender_new_balance"`
	}
	require.NoError(t, c.RPC(ctx, "process_simple_transfer", map[string]any{
		"p_sender_email":         amina.Email,
		"p_recipient_identifier": "sara@example.dz",
		"p_amount":               1000,
		"p_description":          "rent",
	}, &out))
	require.Len(t, out, 1)
	assert.True(t, out[0].Success)
	assert.Equal(t, "TRF-20250115-000001", out[0].ReferenceNumber)
	assert.True(t, out[0].SenderNewBalance.Equal(decimal.NewFromInt(14000)))

	// A token for one user cannot spend another user's balance.
	err = c.RPC(ctx, "process_simple_transfer", map[string]any{
		"p_sender_email":         "yacine@example.dz",
		"p_recipient_identifier": amina.Email,
		"p_amount":               1000,
	}, &out)
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusForbidden, be.Status)
	assert.Equal(t, "sender does not match the authenticated user", be.Message)
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "*/0", contentRange(0, 0, 0))
	assert.Equal(t, "0-2/3", contentRange(0, 3, 3))
	assert.Equal(t, "10-14/*", contentRange(10, 5, -1))
}

func TestProject(t *testing.T) {
	rows := []Row{{"a": 1, "b": 2}}
	assert.Equal(t, []Row{{"a": 1}}, project(rows, "a, referred:users(full_name)"))
	assert.Equal(t, rows, project(rows, "*"))
}

func TestIssueAndVerifyToken(t *testing.T) {
	tok, err := IssueToken(testSecret, "user-1", "a@example.dz", time.Minute)
	require.NoError(t, err)
	claims, err := verifyToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@example.dz", claims.Email)

	sub, err := backend.SubjectFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", sub)

	expired, err := IssueToken(testSecret, "user-1", "", -time.Minute)
	require.NoError(t, err)
	_, err = verifyToken(testSecret, expired)
	assert.Error(t, err)

	_, err = IssueToken("", "user-1", "", time.Minute)
	assert.Error(t, err)
}
