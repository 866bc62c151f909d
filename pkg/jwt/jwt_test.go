package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewService("test-secret", "travyy", time.Hour)
	userID := uuid.New()

	token, err := svc.GenerateAccessToken(userID, "0912345678", []string{"customer"})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "0912345678", claims.Phone)
	assert.Equal(t, []string{"customer"}, claims.Roles)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestValidateAccessToken_Failures(t *testing.T) {
	svc := NewService("test-secret", "travyy", time.Hour)
	userID := uuid.New()

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService("other-secret", "travyy", time.Hour)
		token, err := other.GenerateAccessToken(userID, "", nil)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		require.Error(t, err)
		assert.False(t, IsTokenExpired(err))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewService("test-secret", "someone-else", time.Hour)
		token, err := other.GenerateAccessToken(userID, "", nil)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewService("test-secret", "travyy", -time.Minute)
		token, err := expired.GenerateAccessToken(userID, "", nil)
		require.NoError(t, err)

		_, err = svc.ValidateAccessToken(token)
		require.Error(t, err)
		assert.True(t, IsTokenExpired(err))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not.a.token")
		assert.Error(t, err)
	})
}
