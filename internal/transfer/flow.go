package transfer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dinarwallet/wallet/internal/clock"
	"github.com/dinarwallet/wallet/internal/model"
)

// DefaultResetAfter is how long the success screen stays before the flow
// returns to an empty form.
const DefaultResetAfter = 5 * time.Second

var (
	ErrTransferInProgress = errors.New("a transfer is already being processed")
	ErrWrongStep          = errors.New("action not available at this step")
	ErrNoUser             = errors.New("user id is not available")
	ErrNoResult           = errors.New("no transfer data was returned")
)

// Executor runs the transfer and reports the balance the form is checked
// against. *wallet.Session satisfies it.
type Executor interface {
	UserID() string
	AvailableDZD() *decimal.Decimal
	ProcessTransfer(ctx context.Context, amount decimal.Decimal, recipient, description string) (model.TransferResult, error)
}

// Flow is the Form → Confirm → Processing → Success machine around one
// instant transfer. A failure in Processing sends the flow back to Form with
// a message for the error dialog.
type Flow struct {
	exec       Executor
	resolver   *Resolver
	limits     Limits
	clock      clock.Clock
	resetAfter time.Duration
	onTransfer func(amount decimal.Decimal, recipient string)
	log        *slog.Logger

	mu         sync.Mutex
	step       Step
	form       Form
	selected   *model.UserMatch
	result     *model.TransferResult
	errMsg     string
	processing bool
	gen        uint64
	reset      clock.Timer
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithLimits replaces DefaultLimits.
func WithLimits(l Limits) FlowOption {
	return func(f *Flow) { f.limits = l }
}

// WithClock replaces the wall clock used for the automatic reset.
func WithClock(c clock.Clock) FlowOption {
	return func(f *Flow) { f.clock = c }
}

// WithResetAfter sets how long Success lasts. Zero disables the automatic
// reset.
func WithResetAfter(d time.Duration) FlowOption {
	return func(f *Flow) { f.resetAfter = d }
}

// WithResolver feeds recipient edits to r and clears it on reset.
func WithResolver(r *Resolver) FlowOption {
	return func(f *Flow) { f.resolver = r }
}

// OnTransfer registers a callback run after each successful transfer.
func OnTransfer(fn func(amount decimal.Decimal, recipient string)) FlowOption {
	return func(f *Flow) { f.onTransfer = fn }
}

// WithLogger sets the flow logger.
func WithLogger(l *slog.Logger) FlowOption {
	return func(f *Flow) { f.log = l }
}

// NewFlow returns a flow on the empty form.
func NewFlow(exec Executor, opts ...FlowOption) *Flow {
	f := &Flow{
		exec:       exec,
		limits:     DefaultLimits(),
		clock:      clock.Real{},
		resetAfter: DefaultResetAfter,
		log:        slog.New(slog.DiscardHandler),
		step:       StepForm,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Step returns the current step.
func (f *Flow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.step
}

// Form returns the current input.
func (f *Flow) Form() Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Selected returns the recipient picked from the search results, if any.
func (f *Flow) Selected() (model.UserMatch, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selected == nil {
		return model.UserMatch{}, false
	}
	return *f.selected, true
}

// Result returns the outcome shown on the success screen.
func (f *Flow) Result() (model.TransferResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.result == nil {
		return model.TransferResult{}, false
	}
	return *f.result, true
}

// ErrorMessage returns the message of the error dialog, or "" when closed.
func (f *Flow) ErrorMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errMsg
}

// DismissError closes the error dialog.
func (f *Flow) DismissError() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errMsg = ""
}

// SetAmount replaces the amount text.
func (f *Flow) SetAmount(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Amount = s
}

// SetDescription replaces the optional description.
func (f *Flow) SetDescription(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Description = s
}

// SetRecipient replaces the recipient text. Editing away from the selected
// recipient's email drops the selection.
func (f *Flow) SetRecipient(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Recipient = s
	if f.selected != nil && s != f.selected.Email {
		f.selected = nil
	}
	if f.resolver != nil {
		f.resolver.Update(s)
	}
}

// SelectRecipient fills the recipient from a search match.
func (f *Flow) SelectRecipient(m model.UserMatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Recipient = m.Email
	f.selected = &m
	if f.resolver != nil {
		f.resolver.Select(m)
	}
}

// CanProceed reports whether Next would succeed right now.
func (f *Flow) CanProceed() bool {
	f.mu.Lock()
	form := f.form
	step := f.step
	f.mu.Unlock()
	return step == StepForm && CanProceed(form, f.exec.AvailableDZD(), f.limits)
}

// Next validates the form and moves to Confirm. On failure the flow stays on
// the form and the error dialog shows the reason.
func (f *Flow) Next() error {
	balance := f.exec.AvailableDZD()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepForm {
		return ErrWrongStep
	}
	if _, err := Validate(f.form, balance, f.limits); err != nil {
		f.errMsg = UserMessage(err)
		return err
	}
	f.errMsg = ""
	f.step = StepConfirm
	return nil
}

// Back returns from Confirm to the form with the input kept.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepConfirm {
		return ErrWrongStep
	}
	f.step = StepForm
	return nil
}

// Confirm executes the transfer. Only one Confirm runs at a time; a second
// call while one is in flight fails with ErrTransferInProgress. On success
// the flow shows the result and resets itself after the configured delay.
func (f *Flow) Confirm(ctx context.Context) (model.TransferResult, error) {
	f.mu.Lock()
	if f.processing {
		f.mu.Unlock()
		return model.TransferResult{}, ErrTransferInProgress
	}
	if f.step != StepConfirm {
		f.mu.Unlock()
		return model.TransferResult{}, ErrWrongStep
	}
	f.processing = true
	f.step = StepProcessing
	form := f.form
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.processing = false
		f.mu.Unlock()
	}()

	if f.exec.UserID() == "" {
		return model.TransferResult{}, f.fail(ErrNoUser)
	}
	amount, err := ParseAmount(form.Amount)
	if err != nil {
		return model.TransferResult{}, f.fail(err)
	}
	// The balance may have changed while the confirmation was open.
	if bal := f.exec.AvailableDZD(); bal == nil || amount.GreaterThan(*bal) {
		return model.TransferResult{}, f.fail(ErrInsufficientBalance)
	}

	recipient := strings.TrimSpace(form.Recipient)
	f.log.Info("starting instant transfer", "amount", amount.String(), "recipient", recipient)
	res, err := f.exec.ProcessTransfer(ctx, amount, recipient, strings.TrimSpace(form.Description))
	if err != nil {
		return model.TransferResult{}, f.fail(err)
	}
	if !res.Success {
		return model.TransferResult{}, f.fail(ErrNoResult)
	}

	f.mu.Lock()
	f.step = StepSuccess
	f.result = &res
	f.errMsg = ""
	f.gen++
	f.scheduleResetLocked(f.gen)
	cb := f.onTransfer
	f.mu.Unlock()

	if cb != nil {
		cb(amount, recipient)
	}
	return res, nil
}

func (f *Flow) fail(err error) error {
	f.log.Warn("instant transfer failed", "error", err)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step = StepForm
	f.errMsg = UserMessage(err)
	return err
}

func (f *Flow) scheduleResetLocked(gen uint64) {
	if f.reset != nil {
		f.reset.Stop()
		f.reset = nil
	}
	if f.resetAfter <= 0 {
		return
	}
	f.reset = f.clock.AfterFunc(f.resetAfter, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		// A manual reset or a newer transfer already moved on.
		if f.gen != gen || f.step != StepSuccess {
			return
		}
		f.reset = nil
		f.clearLocked()
	})
}

// NewTransfer returns to an empty form, cancelling the pending automatic
// reset. Calling it on an already empty form is harmless.
func (f *Flow) NewTransfer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processing {
		return ErrTransferInProgress
	}
	f.gen++
	if f.reset != nil {
		f.reset.Stop()
		f.reset = nil
	}
	f.clearLocked()
	return nil
}

func (f *Flow) clearLocked() {
	f.step = StepForm
	f.form = Form{}
	f.selected = nil
	f.result = nil
	if f.resolver != nil {
		f.resolver.Clear()
	}
}

// Close stops the automatic reset and the resolver.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	if f.reset != nil {
		f.reset.Stop()
		f.reset = nil
	}
	if f.resolver != nil {
		f.resolver.Close()
	}
}
