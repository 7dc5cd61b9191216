package retry

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPolicyClampsAndDefaults(t *testing.T) {
	p := NewPolicy(BackoffFixed, 5*time.Second, 2*time.Second, 5)
	require.Equal(t, 2*time.Second, p.Initial)
	require.Equal(t, BackoffFixed, p.Mode)
	require.Equal(t, 5, p.MaxRetries)

	d := NewPolicy("bogus", 0, 0, -1)
	require.Equal(t, DefaultPolicy(), d)
}

func TestDelayModes(t *testing.T) {
	cases := []struct {
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{NewPolicy(BackoffFixed, 100*time.Millisecond, time.Second, 3), 3, 100 * time.Millisecond},
		{NewPolicy(BackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5), 2, 200 * time.Millisecond},
		{NewPolicy(BackoffLinear, 100*time.Millisecond, 250*time.Millisecond, 5), 3, 250 * time.Millisecond},
		{NewPolicy(BackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5), 2, 100 * time.Millisecond},
		{NewPolicy(BackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5), 3, 160 * time.Millisecond},
		{NewPolicy(BackoffExponential, 50*time.Millisecond, 160*time.Millisecond, 5), 64, 160 * time.Millisecond},
		{DefaultPolicy(), 0, 0},
		{DefaultPolicy(), -1, 0},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.policy.Delay(c.attempt), "%s attempt %d", c.policy.Mode, c.attempt)
	}
}

var errBusy = stdErrors.New("database is locked")

func TestDoRetriesTransientErrors(t *testing.T) {
	p := NewPolicy(BackoffFixed, time.Millisecond, time.Millisecond, 3)
	calls := 0
	err := p.Do(t.Context(), func(err error) bool { return stdErrors.Is(err, errBusy) }, func() error {
		calls++
		if calls < 3 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentErrorOrExhaustion(t *testing.T) {
	p := NewPolicy(BackoffFixed, time.Millisecond, time.Millisecond, 2)
	permanent := stdErrors.New("constraint failed")
	calls := 0
	err := p.Do(t.Context(), func(err error) bool { return err == errBusy }, func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, calls)

	calls = 0
	err = p.Do(t.Context(), func(error) bool { return true }, func() error {
		calls++
		return errBusy
	})
	require.ErrorIs(t, err, errBusy)
	require.Equal(t, 3, calls)
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	p := NewPolicy(BackoffFixed, time.Hour, time.Hour, 5)
	err := p.Do(ctx, func(error) bool { return true }, func() error { return errBusy })
	require.ErrorIs(t, err, errBusy)
	require.ErrorIs(t, err, context.Canceled)
}
