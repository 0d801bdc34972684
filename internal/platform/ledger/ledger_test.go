package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rec struct {
	prev, hash string
	body       string
}

func (r rec) ChainPrev() string { return r.prev }
func (r rec) ChainHash() string { return r.hash }
func (r rec) ChainPayload() any { return map[string]string{"body": r.body} }

func build(t *testing.T, bodies ...string) []rec {
	t.Helper()
	out := make([]rec, 0, len(bodies))
	prev := ""
	for _, b := range bodies {
		r := rec{prev: prev, body: b}
		h, err := Seal(prev, r.ChainPayload())
		require.NoError(t, err)
		r.hash = h
		out = append(out, r)
		prev = h
	}
	return out
}

func TestSeal_DeterministicAndChained(t *testing.T) {
	a, err := Seal("", map[string]string{"body": "x"})
	require.NoError(t, err)
	b, err := Seal("", map[string]string{"body": "x"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Seal(a, map[string]string{"body": "x"})
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "prev hash must influence the digest")
}

func TestVerify(t *testing.T) {
	chain := build(t, "pending", "active", "expired")
	require.NoError(t, Verify(chain))

	t.Run("tampered payload", func(t *testing.T) {
		bad := append([]rec(nil), chain...)
		bad[1].body = "revoked"
		assert.True(t, errors.Is(Verify(bad), ErrBrokenChain))
	})

	t.Run("dropped record", func(t *testing.T) {
		bad := []rec{chain[0], chain[2]}
		assert.True(t, errors.Is(Verify(bad), ErrBrokenChain))
	})

	t.Run("reordered", func(t *testing.T) {
		bad := []rec{chain[1], chain[0], chain[2]}
		assert.True(t, errors.Is(Verify(bad), ErrBrokenChain))
	})

	t.Run("empty is valid", func(t *testing.T) {
		assert.NoError(t, Verify([]rec{}))
	})
}
