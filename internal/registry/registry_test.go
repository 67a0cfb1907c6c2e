package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

func addr(t *testing.T, hex40 string) valuemodel.Address {
	t.Helper()
	a, err := valuemodel.ParseAddress(hex40)
	if err != nil {
		t.Fatalf("invalid test address %q: %v", hex40, err)
	}
	return a
}

func TestRegistry_AddIdempotent(t *testing.T) {
	r := New()
	curve := addr(t, "0x0000000000000000000000000000000000000001")
	token := addr(t, "0x0000000000000000000000000000000000000002")

	var calls int
	r.Subscribe(func(c, tok valuemodel.Address) {
		calls++
		assert.True(t, c.Equal(curve))
		assert.True(t, tok.Equal(token))
	})

	assert.True(t, r.Add(curve, token))
	assert.False(t, r.Add(curve, token))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ContainsAndTokenFor(t *testing.T) {
	r := New()
	curve := addr(t, "0x000000000000000000000000000000000000aaaa")
	token := addr(t, "0x000000000000000000000000000000000000bbbb")

	assert.False(t, r.Contains(curve))

	r.Add(curve, token)

	assert.True(t, r.Contains(curve))
	got, ok := r.TokenFor(curve)
	assert.True(t, ok)
	assert.True(t, got.Equal(token))
}

func TestRegistry_Snapshot(t *testing.T) {
	r := New()
	c1 := addr(t, "0x000000000000000000000000000000000000aaaa")
	c2 := addr(t, "0x000000000000000000000000000000000000bbbb")
	tok := addr(t, "0x000000000000000000000000000000000000cccc")

	r.Add(c1, tok)
	r.Add(c2, tok)

	snap := r.Snapshot()
	assert.Len(t, snap, 2)
}

func TestRegistry_NotSubscribedRetroactively(t *testing.T) {
	r := New()
	curve := addr(t, "0x000000000000000000000000000000000000dddd")
	token := addr(t, "0x000000000000000000000000000000000000eeee")
	r.Add(curve, token)

	var calls int
	r.Subscribe(func(valuemodel.Address, valuemodel.Address) { calls++ })

	assert.Equal(t, 0, calls)
}
