package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Call is one invocation of a remote procedure.
type Call struct {
	Params  map[string]any
	Tables  Tables
	Subject string // authenticated user id, "" for anonymous calls
	Now     time.Time
}

// String returns a trimmed string parameter ("" when missing or null).
func (c *Call) String(name string) string {
	return strings.TrimSpace(stringify(c.Params[name]))
}

// Decimal returns a required numeric parameter.
func (c *Call) Decimal(name string) (decimal.Decimal, error) {
	v, ok := c.Params[name]
	if !ok || v == nil {
		return decimal.Zero, &ProcError{Code: "22004", Message: fmt.Sprintf("parameter %s is required", name)}
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, &ProcError{Code: "22P02", Message: fmt.Sprintf("parameter %s is not a number", name)}
	}
	return d, nil
}

// OptionalDecimal returns a numeric parameter, or nil when it is missing or null.
func (c *Call) OptionalDecimal(name string) (*decimal.Decimal, error) {
	if v, ok := c.Params[name]; !ok || v == nil {
		return nil, nil
	}
	d, err := c.Decimal(name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ProcError is a procedure failure reported to the caller as a 4xx response.
type ProcError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProcError) Error() string {
	return e.Message
}

func (e *ProcError) status() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}
	return e.Status
}

// ProcedureFunc implements a remote procedure. The result is encoded as JSON.
type ProcedureFunc func(ctx context.Context, call *Call) (any, error)

// Procedure is a named remote procedure.
type Procedure struct {
	Name     string
	ReadOnly bool
	Fn       ProcedureFunc
}

// Registry holds named procedures.
type Registry struct {
	procs map[string]Procedure
}

// NewRegistry creates an empty procedure registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Procedure)}
}

// Register adds a procedure. Panics on duplicate names.
func (r *Registry) Register(p Procedure) {
	if _, ok := r.procs[p.Name]; ok {
		panic("duplicate procedure: " + p.Name)
	}
	r.procs[p.Name] = p
}

// Get returns the named procedure.
func (r *Registry) Get(name string) (Procedure, bool) {
	p, ok := r.procs[name]
	return p, ok
}

// Names returns the registered procedure names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.procs))
	for n := range r.procs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Limits are the server-side instant transfer rules.
type Limits struct {
	Min     decimal.Decimal
	Max     decimal.Decimal
	Daily   decimal.Decimal
	Monthly decimal.Decimal
}

// DefaultLimits returns the stock transfer limits (DZD).
func DefaultLimits() Limits {
	return Limits{
		Min:     decimal.NewFromInt(100),
		Max:     decimal.NewFromInt(100000),
		Daily:   decimal.NewFromInt(500000),
		Monthly: decimal.NewFromInt(2000000),
	}
}

// Procedures implements the wallet's remote procedures.
type Procedures struct {
	Limits Limits
}

// Register adds every wallet procedure to r.
func (p *Procedures) Register(r *Registry) {
	r.Register(Procedure{Name: "process_simple_transfer", Fn: p.processSimpleTransfer})
	r.Register(Procedure{Name: "find_user_simple", ReadOnly: true, Fn: p.findUserSimple})
	r.Register(Procedure{Name: "get_transfer_history_simple", ReadOnly: true, Fn: p.transferHistory})
	r.Register(Procedure{Name: "get_instant_transfer_stats", ReadOnly: true, Fn: p.transferStats})
	r.Register(Procedure{Name: "check_instant_transfer_limits", ReadOnly: true, Fn: p.checkLimits})
	r.Register(Procedure{Name: "update_user_balance", Fn: p.updateUserBalance})
	r.Register(Procedure{Name: "process_investment", Fn: p.processInvestment})
	r.Register(Procedure{Name: "get_user_balance_simple", ReadOnly: true, Fn: p.userBalanceSimple})
	r.Register(Procedure{Name: "update_user_balance_simple", Fn: p.updateUserBalanceSimple})
}

// DefaultRegistry returns a registry with all wallet procedures using limits.
func DefaultRegistry(limits Limits) *Registry {
	r := NewRegistry()
	(&Procedures{Limits: limits}).Register(r)
	return r
}

// userByEmail finds a user by case-insensitive email.
func userByEmail(t Tables, email string) (Row, error) {
	if email == "" {
		return nil, nil
	}
	rows, err := t.Select(TableUsers, Where("email", OpILike, escapeLike(email)))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// userByIdentifier finds a user by email or account number.
func userByIdentifier(t Tables, ident string) (Row, error) {
	if u, err := userByEmail(t, ident); u != nil || err != nil {
		return u, err
	}
	rows, err := t.Select(TableUsers, Where("account_number", OpEq, ident))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func balanceOf(t Tables, userID string) (Row, error) {
	rows, err := t.Select(TableBalances, Where("user_id", OpEq, userID))
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// escapeLike strips wildcard characters so s matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer("*", "", "%", "").Replace(s)
}
