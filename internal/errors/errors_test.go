package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTypes(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		code  int
	}{
		{"user", User("branch %q exists", "x"), IsUser, 1},
		{"precondition", Precondition("uncommitted changes"), IsPrecondition, 2},
		{"integrity", Integrity(stderrors.New("eof"), "blob missing"), IsIntegrity, 3},
		{"internal", Internal(nil, "resolver gave no answer"), IsInternal, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("switching: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.Equal(t, tt.code, ExitCode(wrapped))
		})
	}
}

func TestIntegrityUnwrap(t *testing.T) {
	cause := stderrors.New("no such file")
	err := Integrity(cause, "blob %s missing", "abc")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "blob abc missing: no such file", err.Error())
	assert.False(t, IsUser(err))
	assert.Equal(t, 1, ExitCode(stderrors.New("plain")))
	assert.Equal(t, 0, ExitCode(nil))
}
