package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	dlsite := NewDLsite(&stubClient{}, testLogger())
	hanime := NewHanime(&stubClient{}, &stubClient{}, testLogger())
	reg := NewRegistry(dlsite, hanime)

	assert.Equal(t, []string{"dlsite", "hanime"}, reg.Names())

	p, ok := reg.Get("dlsite")
	require.True(t, ok)
	assert.Equal(t, "dlsite", p.Name())

	p, ok = reg.Get("HANIME")
	require.True(t, ok, "lookup must be case-insensitive")
	assert.Equal(t, "hanime", p.Name())

	_, ok = reg.Get("nosuch")
	assert.False(t, ok)
}

func TestRegistry_DuplicateNameKeepsFirst(t *testing.T) {
	first := NewDLsite(&stubClient{}, testLogger())
	second := NewDLsite(&stubClient{err: assert.AnError}, testLogger())
	reg := NewRegistry(first, second)

	assert.Equal(t, []string{"dlsite"}, reg.Names())
	p, _ := reg.Get("dlsite")
	assert.Same(t, first, p)
}
