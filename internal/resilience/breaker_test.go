package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errUpstream = NewTransientError(errors.New("overloaded"), 529)
	errBadInput = errors.New("invalid request")
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *clock) {
	c := &clock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	b := NewBreaker("test", Config{Threshold: threshold, Cooldown: time.Minute})
	b.now = c.now
	return b, c
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker("llm", Config{})
	assert.Equal(t, 5, b.cfg.Threshold)
	assert.Equal(t, 30*time.Second, b.cfg.Cooldown)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Do(ctx, fail(errUpstream))
		assert.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, Open, b.State())

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	assert.True(t, eris.Is(err, ErrOpen))
	assert.False(t, called)

	st := b.Stats()
	assert.Equal(t, "open", st.State)
	assert.Equal(t, int64(1), st.Rejected)
	assert.Equal(t, 3, st.Failures)
	assert.False(t, st.OpenedAt.IsZero())
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	b, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = b.Do(ctx, fail(errUpstream))
	require.NoError(t, b.Do(ctx, fail(nil)))
	_ = b.Do(ctx, fail(errUpstream))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_IgnoresNonTransient(t *testing.T) {
	b, _ := newTestBreaker(1)
	ctx := context.Background()

	_ = b.Do(ctx, fail(errBadInput))
	_ = b.Do(ctx, fail(context.Canceled))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Stats().Failures)
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, c := newTestBreaker(1)
	ctx := context.Background()

	_ = b.Do(ctx, fail(errUpstream))
	require.Equal(t, Open, b.State())

	c.advance(time.Minute)
	assert.Equal(t, HalfOpen, b.State())

	// Failed probe reopens for another cooldown.
	_ = b.Do(ctx, fail(errUpstream))
	assert.Equal(t, Open, b.State())
	assert.True(t, eris.Is(b.Do(ctx, fail(nil)), ErrOpen))

	c.advance(time.Minute)
	require.NoError(t, b.Do(ctx, fail(nil)))
	assert.Equal(t, Closed, b.State())
	assert.Equal(t, 0, b.Stats().Failures)
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	b, c := newTestBreaker(1)
	ctx := context.Background()

	_ = b.Do(ctx, fail(errUpstream))
	c.advance(time.Minute)

	var inner error
	err := b.Do(ctx, func(ctx context.Context) error {
		inner = b.Do(ctx, fail(nil))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, eris.Is(inner, ErrOpen))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_ProbeClientErrorCloses(t *testing.T) {
	b, c := newTestBreaker(1)
	ctx := context.Background()

	_ = b.Do(ctx, fail(errUpstream))
	c.advance(time.Minute)
	_ = b.Do(ctx, fail(errBadInput))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1)
	_ = b.Do(context.Background(), fail(errUpstream))
	require.Equal(t, Open, b.State())

	b.Reset()
	assert.Equal(t, Closed, b.State())
	assert.True(t, b.Stats().OpenedAt.IsZero())
}

func TestCall_ReturnsValue(t *testing.T) {
	b, _ := newTestBreaker(1)
	v, err := Call(context.Background(), b, func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	_ = b.Do(context.Background(), fail(errUpstream))
	v, err = Call(context.Background(), b, func(context.Context) (string, error) {
		return "unreachable", nil
	})
	assert.Empty(t, v)
	assert.True(t, eris.Is(err, ErrOpen))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "half-open", HalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
