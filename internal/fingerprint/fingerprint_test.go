package fingerprint

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUniqueID(t *testing.T) {
	t.Run("concatenates batch token and sequence", func(t *testing.T) {
		id, err := GenerateUniqueID("BATCH01", 1)
		require.NoError(t, err)
		assert.Equal(t, "BATCH01-1", id)
	})

	t.Run("rejects sequence below one", func(t *testing.T) {
		_, err := GenerateUniqueID("BATCH01", 0)
		require.Error(t, err)

		_, err = GenerateUniqueID("BATCH01", -3)
		require.Error(t, err)
	})

	t.Run("rejects tokens outside the issued envelope", func(t *testing.T) {
		for _, token := range []string{"", "  ", "abc", "has space", "tok:en"} {
			_, err := GenerateUniqueID(token, 1)
			require.Error(t, err, "token %q", token)
		}
	})
}

func TestNewBatchToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewBatchToken()
		require.Len(t, token, 8)
		_, err := hex.DecodeString(token)
		require.NoError(t, err, "token should be hex characters")
		assert.False(t, seen[token], "token collision within 100 draws")
		seen[token] = true
	}
}

func TestCompute(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		a := Compute("MediTrace", "Paracetamol", "BATCH01-1", "2024-12-01")
		b := Compute("MediTrace", "Paracetamol", "BATCH01-1", "2024-12-01")
		assert.Equal(t, a, b)
	})

	t.Run("is a 256-bit hex digest", func(t *testing.T) {
		h := Compute("MediTrace", "Paracetamol", "BATCH01-1", "2024-12-01")
		require.Len(t, h, 64)
		_, err := hex.DecodeString(h)
		require.NoError(t, err)
	})

	t.Run("any single field change yields a different hash", func(t *testing.T) {
		base := Compute("MediTrace", "Paracetamol", "BATCH01-1", "2024-12-01")

		assert.NotEqual(t, base, Compute("Other", "Paracetamol", "BATCH01-1", "2024-12-01"))
		assert.NotEqual(t, base, Compute("MediTrace", "Ibuprofen", "BATCH01-1", "2024-12-01"))
		assert.NotEqual(t, base, Compute("MediTrace", "Paracetamol", "BATCH01-2", "2024-12-01"))
		assert.NotEqual(t, base, Compute("MediTrace", "Paracetamol", "BATCH01-1", "2024-12-02"))
	})
}

func TestDigest(t *testing.T) {
	// The delimiter keeps adjacent fields from collapsing into the same
	// pre-image; changing it would silently invalidate every stored hash.
	assert.NotEqual(t, Digest("a", "b"), Digest("ab"))
	assert.NotEqual(t, Digest("a", "b"), Digest("a", "b", ""))
	assert.Equal(t, Digest("a", "b"), Digest("a", "b"))
}
