package merge

import (
	"bytes"
	"strings"
	"testing"

	"ovc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptResolver(t *testing.T) {
	var out bytes.Buffer
	r := NewPromptResolver(strings.NewReader("what\nm\nt\n"), &out)

	c := Conflict{Path: "f.txt", Mine: []string{"bar"}, Theirs: []string{"baz"}, Line: 2}

	policy, err := r.Resolve(c)
	require.NoError(t, err)
	assert.Equal(t, Mine, policy)
	assert.Contains(t, out.String(), "Conflict in f.txt at line 2")
	assert.Contains(t, out.String(), "mine   | bar")
	assert.Equal(t, 2, strings.Count(out.String(), "(m)ine"))

	policy, err = r.Resolve(Conflict{Path: "img.png", Binary: true})
	require.NoError(t, err)
	assert.Equal(t, Theirs, policy)
	assert.Contains(t, out.String(), "Binary file img.png differs.")

	_, err = r.Resolve(c)
	assert.Error(t, err)
}

func TestChoose(t *testing.T) {
	p, err := Choose(Mine, nil, Conflict{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Mine, p)

	answer := func(p Policy) Resolver {
		return ResolverFunc(func(Conflict) (Policy, error) { return p, nil })
	}

	p, err = Choose(Ask, answer(Theirs), Conflict{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Theirs, p)

	_, err = Choose(Ask, answer(Ask), Conflict{}, nil)
	assert.True(t, errors.IsInternal(err))

	_, err = Choose(Ask, nil, Conflict{}, nil)
	assert.True(t, errors.IsInternal(err))

	p, err = Choose(Next, nil, Conflict{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Theirs, p)
}

func TestClassifier(t *testing.T) {
	c := Classifier{TextGlobs: []string{"*.dat"}, BinaryGlobs: []string{"*.blob"}}

	assert.False(t, c.IsBinary("x.dat", []byte{0, 1, 2}))
	assert.True(t, c.IsBinary("x.blob", []byte("plain")))
	assert.True(t, c.IsBinary("img.png", []byte("whatever")))
	assert.False(t, c.IsBinary("page.html", nil))
	assert.False(t, c.IsBinary("Makefile", []byte("all:\n\tgo build\n")))
	assert.True(t, c.IsBinary("blob", []byte{0x00, 0x01, 0xff}))
}
