package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("SandstoneAgendaTricycle")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := Verify("SandstoneAgendaTricycle", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("WrongPassword", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHash_TooLong(t *testing.T) {
	_, err := Hash(strings.Repeat("a", MaxLength+1))
	require.Error(t, err)
}

func TestVerify_KnownHash(t *testing.T) {
	// Hash produced with m=65536,t=2,p=1; Verify must honor the
	// parameters embedded in the string, not the package defaults.
	hash := "$argon2id$v=19$m=65536,t=2,p=1$ew5lqHA5z38za+257DmnTA$0LWVrI2r7XCqdcCYkJLok65qussSyhN5TTZP+OTgzEI"

	ok, err := Verify("SandstoneAgendaTricycle", hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerify_MalformedHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong field count", "$argon2id$v=19$m=65536"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=2,p=1$c2FsdA$ZGlnZXN0"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=2,p=1$!!!$ZGlnZXN0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify("password", tt.hash)
			assert.Error(t, err)
		})
	}
}
