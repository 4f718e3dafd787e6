package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScryptHasher_HashAndVerify(t *testing.T) {
	h := NewScryptHasher()

	hash, salt, err := h.Hash("1234")
	require.NoError(t, err)
	assert.Len(t, hash, 128)
	assert.Len(t, salt, 64)

	assert.True(t, h.Verify("1234", hash, salt))
	assert.False(t, h.Verify("4321", hash, salt))
	assert.False(t, h.Verify("1234", hash, "not-hex"))

	// Соль уникальна для каждого хеша
	hash2, salt2, err := h.Hash("1234")
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2)
	assert.NotEqual(t, hash, hash2)
}

func TestCardNumberDigest_Deterministic(t *testing.T) {
	a := CardNumberDigest("4532123456789012", "key")
	b := CardNumberDigest("4532123456789012", "key")
	c := CardNumberDigest("4532123456789012", "other-key")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestMaskCardNumber(t *testing.T) {
	assert.Equal(t, "****9012", MaskCardNumber("4532123456789012"))
	assert.Equal(t, "****", MaskCardNumber("12"))
}
