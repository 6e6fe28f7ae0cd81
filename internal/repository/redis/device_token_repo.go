package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medconnect-backend/internal/database"
	"medconnect-backend/pkg/constants"
	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/push"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DeviceTokenRepository stores push notification tokens in Redis.
// Tokens are indexed three ways: by token value, by token id, and as a
// per-user set, so lookup, revocation and fan-out all stay O(1).
type DeviceTokenRepository struct {
	client *database.RedisClient
}

// NewDeviceTokenRepository creates a new device token repository
func NewDeviceTokenRepository(client *database.RedisClient) *DeviceTokenRepository {
	return &DeviceTokenRepository{client: client}
}

func tokenKey(tokenStr string) string {
	return fmt.Sprintf("push:token:%s", tokenStr)
}

func tokenIDKey(id uuid.UUID) string {
	return fmt.Sprintf("push:token_id:%s", id)
}

func userTokensKey(userID uuid.UUID) string {
	return fmt.Sprintf("push:user:%s:tokens", userID)
}

// Store stores a push notification token
func (r *DeviceTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	now := time.Now().Unix()
	if token.CreatedAt == 0 {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := r.client.SafeSet(ctx, tokenKey(token.Token), data, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	// Secondary index so revocation by id avoids scanning the keyspace
	if err := r.client.SafeSet(ctx, tokenIDKey(token.ID), token.Token, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to index token by id: %w", err)
	}

	if err := r.client.SafeSAdd(ctx, userTokensKey(token.UserID), token.Token).Err(); err != nil {
		return fmt.Errorf("failed to add token to user set: %w", err)
	}

	if err := r.client.SafeExpire(ctx, userTokensKey(token.UserID), constants.PushTokenExpiry).Err(); err != nil {
		logger.Warn("Failed to set expiration on user tokens set",
			zap.String("user_id", token.UserID.String()),
			zap.Error(err))
	}

	logger.Debug("Push token stored",
		zap.String("token_id", token.ID.String()),
		zap.String("user_id", token.UserID.String()),
		zap.String("token_type", string(token.Type)))

	return nil
}

// GetByToken retrieves a token by its value
func (r *DeviceTokenRepository) GetByToken(ctx context.Context, tokenStr string) (*push.Token, error) {
	data, err := r.client.SafeGet(ctx, tokenKey(tokenStr)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Token not found
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var token push.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

// GetByUserID retrieves all tokens for a user
func (r *DeviceTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	tokens, err := r.client.SafeSMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	var result []*push.Token
	for _, tokenStr := range tokens {
		token, err := r.GetByToken(ctx, tokenStr)
		if err != nil {
			logger.Warn("Failed to get token",
				zap.String("user_id", userID.String()),
				zap.Error(err))
			continue
		}
		if token == nil {
			// Token value expired out from under the set; drop the member
			r.client.SafeSRem(ctx, userTokensKey(userID), tokenStr)
			continue
		}
		result = append(result, token)
	}

	return result, nil
}

// Update updates an existing token
func (r *DeviceTokenRepository) Update(ctx context.Context, token *push.Token) error {
	token.UpdatedAt = time.Now().Unix()

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := r.client.SafeSet(ctx, tokenKey(token.Token), data, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	return nil
}

// Delete removes a token by id
func (r *DeviceTokenRepository) Delete(ctx context.Context, tokenID uuid.UUID) error {
	tokenStr, err := r.client.SafeGet(ctx, tokenIDKey(tokenID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil // Already gone
		}
		return fmt.Errorf("failed to resolve token id: %w", err)
	}

	token, err := r.GetByToken(ctx, tokenStr)
	if err != nil {
		return err
	}
	if token != nil {
		r.client.SafeSRem(ctx, userTokensKey(token.UserID), token.Token)
	}

	if err := r.client.SafeDel(ctx, tokenKey(tokenStr), tokenIDKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	logger.Debug("Push token deleted", zap.String("token_id", tokenID.String()))

	return nil
}

// DeleteByUserID removes all tokens for a user
func (r *DeviceTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	tokens, err := r.client.SafeSMembers(ctx, userTokensKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}

	for _, tokenStr := range tokens {
		token, err := r.GetByToken(ctx, tokenStr)
		if err != nil {
			continue
		}
		keys := []string{tokenKey(tokenStr)}
		if token != nil {
			keys = append(keys, tokenIDKey(token.ID))
		}
		if err := r.client.SafeDel(ctx, keys...).Err(); err != nil {
			logger.Warn("Failed to delete token",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	if err := r.client.SafeDel(ctx, userTokensKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete user token set: %w", err)
	}

	return nil
}

// MarkInactive flags a token so sends skip it without deleting history
func (r *DeviceTokenRepository) MarkInactive(ctx context.Context, tokenID uuid.UUID) error {
	tokenStr, err := r.client.SafeGet(ctx, tokenIDKey(tokenID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return fmt.Errorf("failed to resolve token id: %w", err)
	}

	token, err := r.GetByToken(ctx, tokenStr)
	if err != nil || token == nil {
		return err
	}

	token.Active = false
	return r.Update(ctx, token)
}
