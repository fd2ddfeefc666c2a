package circuitbreaker

import (
	"errors"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New[struct{}]("test", nil)
	boom := errors.New("boom")

	for i := 0; i < consecutiveFailures; i++ {
		_, err := cb.Execute(func() (struct{}, error) { return struct{}{}, boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	_, err := cb.Execute(func() (struct{}, error) { return struct{}{}, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := New[int]("test", nil)

	got, err := cb.Execute(func() (int, error) { return 7, nil })

	assert.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
