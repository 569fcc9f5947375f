package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("old")
	require.NoError(t, err)
	assert.NotEqual(t, "old", hash)

	assert.True(t, h.Verify(hash, "old"))
	assert.False(t, h.Verify(hash, "new"))
	assert.False(t, h.Verify("", "old"))
}

func TestBcryptHasher_SaltsEachHash(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBcryptHasher_RejectsEmpty(t *testing.T) {
	_, err := BcryptHasher{}.Hash("")
	require.Error(t, err)
}
