package push

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"go.uber.org/zap"

	"medconnect-backend/pkg/logger"
)

// APNsConfig configures the Apple Push Notification Service provider.
// Token-based auth (KeyPath/KeyID/TeamID) is preferred; certificate-based
// auth is kept for deployments still on .p12 certificates.
type APNsConfig struct {
	BundleID   string
	Production bool

	KeyPath string
	KeyID   string
	TeamID  string

	CertificatePath     string
	CertificatePassword string
}

// APNsProvider delivers call and appointment alerts to iOS clients.
type APNsProvider struct {
	client     *apns2.Client
	bundleID   string
	production bool
}

// NewAPNsProvider creates an APNs client from config.
func NewAPNsProvider(config *APNsConfig) (*APNsProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("APNs config is required")
	}
	if config.BundleID == "" {
		return nil, fmt.Errorf("BundleID is required")
	}

	var client *apns2.Client
	switch {
	case config.KeyPath != "" && config.KeyID != "" && config.TeamID != "":
		authKey, err := token.AuthKeyFromFile(config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs key: %w", err)
		}
		client = apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   config.KeyID,
			TeamID:  config.TeamID,
		})
		logger.Info("APNs provider initialized with token authentication",
			zap.String("bundle_id", config.BundleID),
			zap.Bool("production", config.Production))

	case config.CertificatePath != "":
		cert, err := certificate.FromP12File(config.CertificatePath, config.CertificatePassword)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		client = apns2.NewClient(cert)
		logger.Info("APNs provider initialized with certificate authentication",
			zap.String("bundle_id", config.BundleID),
			zap.Bool("production", config.Production))

	default:
		return nil, fmt.Errorf("either token-based (KeyPath, KeyID, TeamID) or certificate-based (CertificatePath) authentication must be provided")
	}

	if config.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNsProvider{
		client:     client,
		bundleID:   config.BundleID,
		production: config.Production,
	}, nil
}

// Send pushes the notification to each device token in turn. APNs has no
// multicast API, so tokens are sent sequentially and failures are
// collected per token.
func (a *APNsProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if len(tokens) == 0 {
		return &SendResult{}, nil
	}

	result := &SendResult{}

	for _, deviceToken := range tokens {
		msg := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       a.bundleID,
			Payload:     a.buildPayload(notification),
		}
		if notification.Priority == "high" {
			msg.Priority = apns2.PriorityHigh
		} else {
			msg.Priority = apns2.PriorityLow
		}

		resp, err := a.client.PushWithContext(ctx, msg)
		if err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, err)
			logger.Warn("Failed to push APNs alert",
				zap.String("token_prefix", maskPushToken(deviceToken)),
				zap.Error(err))
			continue
		}

		if resp.StatusCode == 200 {
			result.SuccessCount++
			continue
		}

		result.FailureCount++
		result.Errors = append(result.Errors, fmt.Errorf("APNs error: %s", resp.Reason))
		switch resp.Reason {
		case apns2.ReasonUnregistered, apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic:
			result.InvalidTokens = append(result.InvalidTokens, deviceToken)
		}
		logger.Warn("APNs rejected alert",
			zap.Int("status_code", resp.StatusCode),
			zap.String("reason", resp.Reason),
			zap.String("token_prefix", maskPushToken(deviceToken)))
	}

	logger.Info("APNs alert dispatched",
		zap.String("title", notification.Title),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)))

	return result, nil
}

func (a *APNsProvider) buildPayload(notification *Notification) *payload.Payload {
	p := payload.NewPayload().
		AlertTitle(notification.Title).
		AlertBody(notification.Body)

	if notification.Sound != "" {
		p.Sound(notification.Sound)
	}
	if notification.Badge != nil {
		p.Badge(*notification.Badge)
	}
	if notification.Category != "" {
		// The INCOMING_CALL category maps to the app's answer/decline
		// notification actions.
		p.Category(notification.Category)
	}
	for key, value := range notification.Data {
		p.Custom(key, value)
	}
	return p
}
