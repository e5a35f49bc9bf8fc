package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"club-ledger/internal/config"
)

func testHasher() *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8192,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHashAndVerifyPassword(t *testing.T) {
	h := testHasher()

	encoded, err := h.HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))
	assert.NotContains(t, encoded, "hunter22")

	ok, err := h.VerifyPassword("hunter22", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h := testHasher()

	a, err := h.HashPassword("same password")
	require.NoError(t, err)
	b, err := h.HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	h := testHasher()

	_, err := h.VerifyPassword("x", "plaintext-from-the-old-system")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = h.VerifyPassword("x", "$argon2id$v=19$garbage")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestVerifyPassword_ParamsFromStoredHash(t *testing.T) {
	// A hash produced under old cost settings still verifies after the
	// configured costs change.
	old := NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  16384,
			Argon2TimeCost:    2,
			Argon2Parallelism: 2,
		},
	})
	encoded, err := old.HashPassword("hunter22")
	require.NoError(t, err)

	ok, err := testHasher().VerifyPassword("hunter22", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}
