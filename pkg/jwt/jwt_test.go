package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidateToken_RoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "Dr. Sarah Chen", "clinician")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "Dr. Sarah Chen", claims.DisplayName)
	assert.Equal(t, "clinician", claims.Role)
	assert.True(t, claims.HasAudience(Audience))
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", 1*time.Nanosecond)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "Dr. Sarah Chen", "clinician")
	assert.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	claims, err := manager.ValidateToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateToken_Garbage(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)

	claims, err := manager.ValidateToken("invalid.token.here")

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuing := NewJWTManager("secret-1", 15*time.Minute)
	userID := uuid.New()
	token, err := issuing.GenerateAccessToken(userID, "Dr. Sarah Chen", "clinician")
	assert.NoError(t, err)

	validating := NewJWTManager("secret-2", 15*time.Minute)
	claims, err := validating.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestTokenClaims(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "Alex Rivera", "administrator")
	assert.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	assert.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "Alex Rivera", claims.DisplayName)
	assert.Equal(t, "administrator", claims.Role)
	assert.NotZero(t, claims.IssuedAt)
	assert.NotZero(t, claims.ExpiresAt)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
	assert.Equal(t, Issuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	// Revocation keys on the jti claim, so it must be present
	assert.NotEmpty(t, claims.ID)
}

func TestHasAudience(t *testing.T) {
	manager := NewJWTManager("test-secret", 15*time.Minute)
	token, err := manager.GenerateAccessToken(uuid.New(), "Dr. Sarah Chen", "clinician")
	assert.NoError(t, err)

	claims, err := manager.ValidateToken(token)
	assert.NoError(t, err)

	assert.True(t, claims.HasAudience(Audience))
	assert.False(t, claims.HasAudience("some-other-service"))
}
