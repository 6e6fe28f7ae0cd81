package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medconnect-backend/pkg/logger"
	"medconnect-backend/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Provider delivers one notification to a set of device tokens. Token
// resolution is the Service's job; providers only speak to their platform.
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	Priority    string            `json:"priority,omitempty"` // high, normal, low
	Sound       string            `json:"sound,omitempty"`
	Badge       *int              `json:"badge,omitempty"`
	Category    string            `json:"category,omitempty"`
	ClickAction string            `json:"click_action,omitempty"`
}

// CallAlertData carries the caller identity for an incoming-call alert
type CallAlertData struct {
	CallerID   uuid.UUID `json:"caller_id"`
	CallerName string    `json:"caller_name"`
	CallerRole string    `json:"caller_role"`
	Timestamp  int64     `json:"timestamp"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
	TokenTypeWeb  TokenType = "web"  // Web Push
)

// Token represents a push notification token for a user
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	DeviceID  string    `json:"device_id,omitempty"`
	Platform  string    `json:"platform,omitempty"` // ios, android, web
	Active    bool      `json:"active"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// TokenRepository defines interface for storing and retrieving push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	GetByToken(ctx context.Context, token string) (*Token, error)
	Update(ctx context.Context, token *Token) error
	Delete(ctx context.Context, tokenID uuid.UUID) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
	MarkInactive(ctx context.Context, tokenID uuid.UUID) error
}

// Service handles push notification operations
type Service struct {
	provider Provider
	repo     TokenRepository
	metrics  *metrics.Metrics
}

// NewService creates a new push notification service
func NewService(provider Provider, repo TokenRepository, m *metrics.Metrics) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
		metrics:  m,
	}
}

// RegisterToken registers a new push notification token for a user
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	// Check if token already exists
	existing, err := s.repo.GetByToken(ctx, token.Token)
	if err == nil && existing != nil {
		// Update existing token
		existing.Active = true
		existing.UpdatedAt = token.UpdatedAt
		existing.DeviceID = token.DeviceID
		existing.Platform = token.Platform
		return s.repo.Update(ctx, existing)
	}

	// Store new token
	return s.repo.Store(ctx, token)
}

// UnregisterToken removes a push notification token
func (s *Service) UnregisterToken(ctx context.Context, tokenID uuid.UUID) error {
	return s.repo.Delete(ctx, tokenID)
}

// UnregisterAllTokens removes all tokens for a user
func (s *Service) UnregisterAllTokens(ctx context.Context, userID uuid.UUID) error {
	return s.repo.DeleteByUserID(ctx, userID)
}

// SendIncomingCallAlert pushes an incoming-call alert to a callee whose
// signaling socket is not connected
func (s *Service) SendIncomingCallAlert(ctx context.Context, calleeID uuid.UUID, data *CallAlertData) error {
	notification := &Notification{
		Title:    "Incoming Call",
		Body:     fmt.Sprintf("%s is calling you", data.CallerName),
		Priority: "high",
		Sound:    "default",
		Category: "INCOMING_CALL",
		Data: map[string]string{
			"type":        "incoming_call",
			"caller_id":   data.CallerID.String(),
			"caller_name": data.CallerName,
			"caller_role": data.CallerRole,
			"timestamp":   fmt.Sprintf("%d", data.Timestamp),
		},
	}

	return s.send(ctx, "incoming_call", notification, calleeID)
}

// SendMissedCallAlert notifies a callee about a call they did not answer
func (s *Service) SendMissedCallAlert(ctx context.Context, calleeID uuid.UUID, callerID uuid.UUID, callerName string) error {
	notification := &Notification{
		Title:    "Missed Call",
		Body:     fmt.Sprintf("You missed a call from %s", callerName),
		Priority: "normal",
		Sound:    "default",
		Data: map[string]string{
			"type":        "missed_call",
			"caller_id":   callerID.String(),
			"caller_name": callerName,
		},
	}

	return s.send(ctx, "missed_call", notification, calleeID)
}

// SendAppointmentNotification pushes an appointment scheduling event
// (scheduled, reminder, cancelled, rescheduled) to a participant
func (s *Service) SendAppointmentNotification(ctx context.Context, userID uuid.UUID, notifType string, notificationID uuid.UUID, title, body string) error {
	notification := &Notification{
		Title:    title,
		Body:     body,
		Priority: "high",
		Sound:    "default",
		Data: map[string]string{
			"type":            notifType,
			"notification_id": notificationID.String(),
			"timestamp":       fmt.Sprintf("%d", time.Now().Unix()),
		},
	}

	return s.send(ctx, notifType, notification, userID)
}

// send resolves the user's active tokens and dispatches through the provider
func (s *Service) send(ctx context.Context, notifType string, notification *Notification, userID uuid.UUID) error {
	tokens, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get push tokens: %w", err)
	}

	var active []string
	platform := "unknown"
	for _, token := range tokens {
		if token.Active {
			active = append(active, token.Token)
			if token.Platform != "" {
				platform = token.Platform
			}
		}
	}

	if len(active) == 0 {
		logger.Info("No active push tokens for user",
			zap.String("user_id", userID.String()),
			zap.String("type", notifType))
		return nil
	}

	result, err := s.provider.Send(ctx, notification, active)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordPushNotificationFailure(notifType, platform, "provider_error")
		}
		logger.Error("Failed to send push notification",
			zap.String("user_id", userID.String()),
			zap.String("type", notifType),
			zap.Int("token_count", len(active)),
			zap.Error(err))
		return fmt.Errorf("failed to send push notification: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPushNotification(notifType, platform)
	}

	logger.Info("Push notification sent",
		zap.String("user_id", userID.String()),
		zap.String("type", notifType),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)))

	if len(result.InvalidTokens) > 0 {
		s.handleInvalidTokens(ctx, result.InvalidTokens)
	}

	return nil
}

// handleInvalidTokens marks invalid tokens as inactive
func (s *Service) handleInvalidTokens(ctx context.Context, invalidTokens []string) {
	for _, tokenStr := range invalidTokens {
		token, err := s.repo.GetByToken(ctx, tokenStr)
		if err == nil && token != nil {
			if err := s.repo.MarkInactive(ctx, token.ID); err != nil {
				logger.Warn("Failed to mark token as inactive",
					zap.String("token_id", token.ID.String()),
					zap.Error(err))
			}
		}
	}
}

// GetTokenByValue retrieves a token by its value
func (s *Service) GetTokenByValue(ctx context.Context, tokenStr string) (*Token, error) {
	return s.repo.GetByToken(ctx, tokenStr)
}

// GetTokensByUserID retrieves all tokens for a user
func (s *Service) GetTokensByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// MockProvider is a mock implementation for development/testing
type MockProvider struct {
	// For testing purposes
	NotificationsSent int
}

// Send implements Provider interface
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.NotificationsSent++

	logger.Debug("MockProvider: Sending notification",
		zap.String("title", notification.Title),
		zap.String("body", notification.Body),
		zap.Int("token_count", len(tokens)))

	// Return success for all tokens
	return &SendResult{
		SuccessCount:  len(tokens),
		FailureCount:  0,
		InvalidTokens: nil,
		Errors:        nil,
	}, nil
}

// ToJSON converts notification to JSON
func (n *Notification) ToJSON() ([]byte, error) {
	return json.Marshal(n)
}

// FromJSON creates notification from JSON
func FromJSON(data []byte) (*Notification, error) {
	var notification Notification
	err := json.Unmarshal(data, &notification)
	return &notification, err
}
