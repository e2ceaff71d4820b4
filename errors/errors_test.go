package errors

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestWrapf_KeepsStack(t *testing.T) {
	err := Wrapf(sql.ErrNoRows, "load job %s", "J1")

	assert.Equal(t, "load job J1: sql: no rows in result set", err.Error())
	assert.True(t, Is(err, sql.ErrNoRows))
	assert.NotNil(t, GetStack(err), "wrapped errors should carry a stack trace")
}

func TestSentinels(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		err := NewNotFoundError("job %s", "J1")
		assert.True(t, IsNotFound(err))
		assert.False(t, IsMissingPrerequisite(err))
		assert.Contains(t, err.Error(), "job J1")
	})

	t.Run("missing prerequisite", func(t *testing.T) {
		err := Wrap(NewMissingPrerequisite("no logs for %s", "E1"), "resolve rca")
		assert.True(t, IsMissingPrerequisite(err))
		assert.True(t, Is(err, ErrMissingPrerequisite))
		assert.Contains(t, err.Error(), "no logs for E1")
	})

	t.Run("nil is never a sentinel", func(t *testing.T) {
		assert.False(t, IsNotFound(nil))
		assert.False(t, IsMissingPrerequisite(nil))
	})

	t.Run("invalid request", func(t *testing.T) {
		err := NewInvalidRequestError("bad status %q", "Bogus")
		assert.True(t, Is(err, ErrInvalidRequest))
	})
}

func TestWithDetail(t *testing.T) {
	err := WithDetail(New("send failed"), "token: ab12")

	details := GetAllDetails(err)
	require.Len(t, details, 1)
	assert.Equal(t, "token: ab12", details[0])
}

func TestJoin(t *testing.T) {
	a := New("a")
	b := New("b")
	joined := Join(a, b)

	assert.True(t, Is(joined, a))
	assert.True(t, Is(joined, b))
}
