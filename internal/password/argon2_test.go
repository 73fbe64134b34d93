package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hasher := NewHasher()

	encoded, err := hasher.Hash("secret1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := hasher.Verify("secret1", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("wrongpass", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	hasher := NewHasher()

	first, err := hasher.Hash("secret1")
	require.NoError(t, err)
	second, err := hasher.Hash("secret1")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	hasher := NewHasher()

	cases := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=1,p=2$c2FsdA$aGFzaA"},
		{"missing sections", "$argon2id$v=19$m=65536,t=1,p=2"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=1,p=2$!!!$aGFzaA=="},
		{"bad params", "$argon2id$v=19$m=65536,x=1,p=2$c2FsdHNhbHRzYWx0c2FsdA==$aGFzaA=="},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := hasher.Verify("secret1", tc.encoded)
			assert.Error(t, err)
		})
	}
}
