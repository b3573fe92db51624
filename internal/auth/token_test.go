package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	authority := NewTokenAuthority("test-secret")

	now := time.Now().UTC()
	for _, id := range []int64{1, 42, 987654321} {
		token := authority.Sign(id, now)
		assert.Len(t, token, 64, "hex-encoded HMAC-SHA256")
		assert.True(t, authority.Verify(id, now, token))
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	authority := NewTokenAuthority("test-secret")
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)

	token := authority.Sign(7, createdAt)
	require.True(t, authority.Verify(7, createdAt, token))

	// Flipping any single character must fail verification.
	for i := 0; i < len(token); i++ {
		altered := []byte(token)
		if altered[i] == '0' {
			altered[i] = '1'
		} else {
			altered[i] = '0'
		}
		assert.False(t, authority.Verify(7, createdAt, string(altered)), "altered position %d", i)
	}
}

func TestVerifyBindsIdentityAndCreationTime(t *testing.T) {
	authority := NewTokenAuthority("test-secret")
	createdAt := time.Now().UTC()

	token := authority.Sign(7, createdAt)
	assert.False(t, authority.Verify(8, createdAt, token))
	assert.False(t, authority.Verify(7, createdAt.Add(time.Nanosecond), token))
}

func TestDifferentSecretsProduceDifferentTokens(t *testing.T) {
	createdAt := time.Now().UTC()
	a := NewTokenAuthority("secret-a")
	b := NewTokenAuthority("secret-b")

	token := a.Sign(1, createdAt)
	assert.NotEqual(t, token, b.Sign(1, createdAt))
	assert.False(t, b.Verify(1, createdAt, token))
}

func TestSignSurvivesStorageRoundTrip(t *testing.T) {
	authority := NewTokenAuthority("test-secret")
	createdAt := time.Now().UTC()

	token := authority.Sign(3, createdAt)

	// Persist as the canonical string, parse back, verify the same token.
	stored := createdAt.Format(TimeFormat)
	parsed, err := time.Parse(TimeFormat, stored)
	require.NoError(t, err)
	assert.True(t, authority.Verify(3, parsed, token))
}
