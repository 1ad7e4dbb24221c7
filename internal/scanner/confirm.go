package scanner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DateLayout = "2006-01-02"

var ErrValidation = errors.New("validation failed")

// ValidationError carries the message shown to the user. It matches ErrValidation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type ConfirmState int

const (
	StateIdle ConfirmState = iota
	StateAwaitingInput
	StateSubmitting
	StateCancelled
)

func (s ConfirmState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateSubmitting:
		return "submitting"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Entry is the validated form of the optional confirmation fields.
type Entry struct {
	Price            *float64
	BestBeforeInDays *int
}

// ValidateEntry checks the raw price and date inputs against today's date.
// Blank inputs are accepted and omitted.
func ValidateEntry(price, date string, now time.Time) (Entry, error) {
	var entry Entry

	price = strings.TrimSpace(price)
	if price != "" {
		v, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return Entry{}, &ValidationError{Message: "Price must be a number"}
		}
		if v <= 0 {
			return Entry{}, &ValidationError{Message: "Price must be greater than 0"}
		}
		entry.Price = &v
	}

	date = strings.TrimSpace(date)
	if date != "" {
		chosen, err := time.Parse(DateLayout, date)
		if err != nil {
			return Entry{}, &ValidationError{Message: "Date must be in YYYY-MM-DD format"}
		}
		days := DaysFromToday(chosen, now)
		if days < 0 {
			return Entry{}, &ValidationError{Message: "Date must be today or in the future"}
		}
		entry.BestBeforeInDays = &days
	}

	return entry, nil
}

const secondsPerDay = 24 * 60 * 60

// DaysFromToday counts whole calendar days from the day of now to the day of
// date. Time of day is ignored on both sides.
func DaysFromToday(date, now time.Time) int {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = date.Date()
	chosen := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	// Unix seconds, since time.Duration saturates after about 292 years
	return int((chosen.Unix() - today.Unix()) / secondsPerDay)
}

// Confirmation is a pending scan waiting for the user to add details.
type Confirmation struct {
	Barcode string

	mu     sync.Mutex
	state  ConfirmState
	report func(ctx context.Context, scan Scan) error
	now    func() time.Time
	done   chan struct{}
}

func newConfirmation(barcode string, report func(ctx context.Context, scan Scan) error, now func() time.Time) *Confirmation {
	if now == nil {
		now = time.Now
	}
	return &Confirmation{
		Barcode: barcode,
		state:   StateAwaitingInput,
		report:  report,
		now:     now,
		done:    make(chan struct{}),
	}
}

func (c *Confirmation) State() ConfirmState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the confirmation is submitted or cancelled.
func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

// Submit validates the inputs and reports the scan. Validation failures
// leave the confirmation open and return an error matching ErrValidation.
// Any other error comes from the reporter; the confirmation is closed either way.
func (c *Confirmation) Submit(ctx context.Context, price, date string) error {
	c.mu.Lock()
	if c.state != StateAwaitingInput {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("confirmation for %s is %s", c.Barcode, state)
	}

	entry, err := ValidateEntry(price, date, c.now())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = StateSubmitting
	c.mu.Unlock()

	err = c.report(ctx, Scan{
		Barcode:          c.Barcode,
		Price:            entry.Price,
		BestBeforeInDays: entry.BestBeforeInDays,
	})
	c.finish()
	return err
}

// Cancel discards the pending scan. Calling it after the confirmation has
// finished is a no-op.
func (c *Confirmation) Cancel() {
	c.mu.Lock()
	if c.state != StateAwaitingInput {
		c.mu.Unlock()
		return
	}
	c.state = StateCancelled
	c.mu.Unlock()
	c.finish()
}

func (c *Confirmation) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	close(c.done)
}
