package validation

import (
	"testing"

	"ovc/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestBranchName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty is allowed", "", false},
		{"plain name", "feature", false},
		{"slash", "a/b", true},
		{"numeric", "12", true},
		{"padded", " x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := BranchName(tt.input)
			if tt.wantErr {
				assert.True(t, errors.IsUser(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPattern(t *testing.T) {
	assert.NoError(t, Pattern("src/*.go"))
	assert.NoError(t, Pattern("*.md"))
	assert.Error(t, Pattern(""))
	assert.Error(t, Pattern("/etc/*"))
	assert.Error(t, Pattern("../*.go"))
	assert.Error(t, Pattern("src/[.go"))
}
