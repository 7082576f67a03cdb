package framework

import (
	"context"
	"fmt"
	"time"
)

// Waiter polls conditions with a timeout and interval.
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a Waiter with the given timeout and polling
// interval.
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{timeout: timeout, interval: interval}
}

// DefaultWaiter returns a waiter tuned for local servers (10s timeout,
// 100ms interval).
func DefaultWaiter() *Waiter {
	return NewWaiter(10*time.Second, 100*time.Millisecond)
}

// WaitFor polls condition until it returns true or the timeout expires.
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	deadline := time.Now().Add(w.timeout)
	for {
		if condition() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("gave up waiting for %s after %v", description, w.timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}
}

// WaitForNotes waits until the space holds at least count notes.
func (w *Waiter) WaitForNotes(ctx context.Context, client *Client, spaceID string, count int) error {
	return w.WaitFor(ctx, func() bool {
		return client.NoteTotal(ctx, spaceID) >= count
	}, fmt.Sprintf("%d notes in space %s", count, spaceID))
}

// WaitForNotesDrained waits until the space holds no notes, as after a
// consolidation or GC run.
func (w *Waiter) WaitForNotesDrained(ctx context.Context, client *Client, spaceID string) error {
	return w.WaitFor(ctx, func() bool {
		return client.NoteTotal(ctx, spaceID) == 0
	}, fmt.Sprintf("space %s drained", spaceID))
}

// WaitForBankFile waits until the named bank file exists.
func (w *Waiter) WaitForBankFile(ctx context.Context, client *Client, spaceID, filename string) error {
	return w.WaitFor(ctx, func() bool {
		for _, name := range client.BankFilenames(ctx, spaceID) {
			if name == filename {
				return true
			}
		}
		return false
	}, fmt.Sprintf("bank file %s in space %s", filename, spaceID))
}

// WaitForBackups waits until the space has exactly count backups.
func (w *Waiter) WaitForBackups(ctx context.Context, client *Client, spaceID string, count int) error {
	return w.WaitFor(ctx, func() bool {
		return client.BackupTotal(ctx, spaceID) == count
	}, fmt.Sprintf("%d backups of space %s", count, spaceID))
}

// WaitForSpaceGone waits until space_info stops answering ok.
func (w *Waiter) WaitForSpaceGone(ctx context.Context, client *Client, spaceID string) error {
	return w.WaitFor(ctx, func() bool {
		return !client.SpaceExists(ctx, spaceID)
	}, fmt.Sprintf("space %s deleted", spaceID))
}

// Retry runs operation up to attempts times with exponential backoff,
// returning the last error.
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, operation func() error) error {
	delay := initialDelay
	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if attempt == attempts {
			return fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
}
