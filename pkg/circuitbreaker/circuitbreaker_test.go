package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errDown = errors.New("database is down")

func newTestBreaker(maxFailures int) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreakerWithWindow(maxFailures, 10*time.Second, time.Minute)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestOpensAfterTooManyFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errDown }), errDown)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestHalfOpenRecovers(t *testing.T) {
	cb, now := newTestBreaker(0)

	_ = cb.Execute(func() error { return errDown })
	assert.Equal(t, StateOpen, cb.GetState())

	*now = now.Add(11 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(0)

	_ = cb.Execute(func() error { return errDown })
	*now = now.Add(11 * time.Second)
	_ = cb.Execute(func() error { return errDown })

	assert.Equal(t, StateOpen, cb.GetState())
}

func TestUncountedErrorsDoNotTrip(t *testing.T) {
	errBusiness := errors.New("book not available")
	cb, _ := newTestBreaker(0)
	cb.CountOnly(func(err error) bool { return errors.Is(err, errDown) })

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return errBusiness }), errBusiness)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOldFailuresExpire(t *testing.T) {
	cb, now := newTestBreaker(1)

	_ = cb.Execute(func() error { return errDown })
	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errDown })

	assert.Equal(t, StateClosed, cb.GetState())
}
