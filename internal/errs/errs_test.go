package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("episode", "e1")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))

	wrapped := fmt.Errorf("outer: %w", E(KindTooLarge, "big"))
	assert.Equal(t, KindTooLarge, KindOf(wrapped))
}

func TestMessageOfHidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", MessageOf(errors.New("sql: db closed")))
	assert.Equal(t, `episode "e1" not found`, MessageOf(NotFound("episode", "e1")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("io failure")
	err := Wrap(KindFetchFailed, cause, "could not fetch %q", "u")
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindFetchFailed))
}
