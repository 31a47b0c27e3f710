package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) *Policy {
	return &Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestExecuteSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Execute(context.Background(), func(attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		if attempt < 3 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteExhausts(t *testing.T) {
	sentinel := errors.New("rejected")
	var retries []int
	p := fastPolicy(3)
	p.OnRetry = func(attempt int, _ time.Duration, err error) {
		retries = append(retries, attempt)
		assert.ErrorIs(t, err, sentinel)
	}

	err := p.Execute(context.Background(), func(int) error { return sentinel })
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
	assert.Equal(t, []int{1, 2}, retries)
}

func TestExecuteWithConditionStopsEarly(t *testing.T) {
	calls := 0
	err := fastPolicy(5).ExecuteWithCondition(context.Background(), func(int) error {
		calls++
		return errors.New("permanent")
	}, func(error) bool { return false })
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Policy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 2}

	calls := 0
	err := p.Execute(ctx, func(int) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Equal(t, 1, calls)
}

func TestDelayBounds(t *testing.T) {
	p := Default()
	for retry := 0; retry < 10; retry++ {
		d := p.Delay(retry)
		assert.LessOrEqual(t, d, time.Duration(float64(p.MaxDelay)*1.25))
		assert.GreaterOrEqual(t, d, time.Duration(float64(p.InitialDelay)*0.75))
	}

	noJitter := Default()
	noJitter.RandomizeFactor = 0
	assert.Equal(t, time.Second, noJitter.Delay(0))
	assert.Equal(t, 4*time.Second, noJitter.Delay(2))
	assert.Equal(t, 30*time.Second, noJitter.Delay(8))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default().Validate())
	require.NoError(t, None().Validate())

	bad := Default()
	bad.MaxAttempts = 0
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.RandomizeFactor = 2
	assert.Error(t, bad.Validate())
}
