package framework

import (
	"strings"
	"time"

	"github.com/chrlesur/live-memory/pkg/types"
)

// Assertions provides test assertions with readable output.
type Assertions struct {
	t TestingT
}

// NewAssertions creates an Assertions instance for the test.
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// StatusOK asserts that a result envelope reports ok.
func (a *Assertions) StatusOK(env types.Envelope, msg string) {
	a.t.Helper()

	if env.Status != types.StatusOK {
		a.t.Fatalf("%s: status %s (%s)", msg, env.Status, env.Message)
	}
}

// Status asserts a specific envelope status.
func (a *Assertions) Status(expected types.Status, env types.Envelope, msg string) {
	a.t.Helper()

	if env.Status != expected {
		a.t.Fatalf("%s: expected status %s, got %s (%s)", msg, expected, env.Status, env.Message)
	}
}

// Unauthorized asserts that a call failed at the protocol layer with an
// authorization error.
func (a *Assertions) Unauthorized(err error, msg string) {
	a.t.Helper()

	if err == nil {
		a.t.Fatalf("%s: expected an authorization error, got none", msg)
	}
}

// NoError asserts that the error is nil.
func (a *Assertions) NoError(err error, msg string) {
	a.t.Helper()

	if err != nil {
		a.t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// Error asserts that the error is not nil.
func (a *Assertions) Error(err error, msg string) {
	a.t.Helper()

	if err == nil {
		a.t.Fatalf("%s: want error, got nil", msg)
	}
}

// Equal asserts that two values are equal.
func (a *Assertions) Equal(expected, actual any, msg string) {
	a.t.Helper()

	if expected != actual {
		a.t.Fatalf("%s: got %v, want %v", msg, actual, expected)
	}
}

// True asserts that a condition holds.
func (a *Assertions) True(condition bool, msg string) {
	a.t.Helper()

	if !condition {
		a.t.Fatalf("%s: condition does not hold", msg)
	}
}

// False asserts that a condition does not hold.
func (a *Assertions) False(condition bool, msg string) {
	a.t.Helper()

	if condition {
		a.t.Fatalf("%s: condition unexpectedly holds", msg)
	}
}

// Contains asserts that a string contains a substring.
func (a *Assertions) Contains(haystack, needle, msg string) {
	a.t.Helper()

	if !strings.Contains(haystack, needle) {
		a.t.Fatalf("%s: %q does not contain %q", msg, haystack, needle)
	}
}

// Eventually polls a condition until it returns true or the timeout
// expires.
func (a *Assertions) Eventually(condition func() bool, timeout, interval time.Duration, msg string) {
	a.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			a.t.Fatalf("%s: condition not met within %v", msg, timeout)
		}
		time.Sleep(interval)
	}
}

// Step logs a test step for visibility in test output.
func (a *Assertions) Step(step string) {
	a.t.Helper()
	a.t.Logf("\n==> %s", step)
}

// Success logs a success message.
func (a *Assertions) Success(msg string) {
	a.t.Helper()
	a.t.Logf("✓ %s", msg)
}

// Info logs an informational message.
func (a *Assertions) Info(msg string) {
	a.t.Helper()
	a.t.Logf("ℹ %s", msg)
}

// Warning logs a warning message.
func (a *Assertions) Warning(msg string) {
	a.t.Helper()
	a.t.Logf("⚠ %s", msg)
}

// Logf logs a formatted message without failing.
func (a *Assertions) Logf(format string, args ...any) {
	a.t.Helper()
	a.t.Logf(format, args...)
}
