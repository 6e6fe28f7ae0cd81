package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"medconnect-backend/pkg/logger"
)

// FCMConfig configures the Firebase Cloud Messaging provider. Exactly one
// of CredentialsJSON or CredentialsPath must be set.
type FCMConfig struct {
	ProjectID       string
	CredentialsPath string
	CredentialsJSON []byte
}

// FCMProvider delivers call and appointment alerts to Android and web
// clients through Firebase Cloud Messaging.
type FCMProvider struct {
	app       *firebase.App
	projectID string
}

// NewFCMProvider initializes the Firebase Admin SDK from config.
func NewFCMProvider(config *FCMConfig) (*FCMProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("FCM config is required")
	}

	var opts []option.ClientOption
	switch {
	case len(config.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(config.CredentialsJSON))
	case config.CredentialsPath != "":
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	default:
		return nil, fmt.Errorf("either CredentialsPath or CredentialsJSON must be provided")
	}

	app, err := firebase.NewApp(context.Background(), &firebase.Config{ProjectID: config.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	logger.Info("FCM provider initialized", zap.String("project_id", config.ProjectID))
	return &FCMProvider{app: app, projectID: config.ProjectID}, nil
}

// Send delivers the notification to every token, reporting per-token
// outcomes so the caller can retire tokens FCM rejects as unregistered.
func (f *FCMProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if len(tokens) == 0 {
		return &SendResult{}, nil
	}

	client, err := f.app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	msg := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Tokens: tokens,
		Data:   notification.Data,
	}

	android := &messaging.AndroidNotification{}
	androidSet := false
	if notification.Sound != "" {
		android.Sound = notification.Sound
		androidSet = true
	}
	if notification.Badge != nil {
		android.NotificationCount = notification.Badge
		androidSet = true
	}
	if notification.Category != "" {
		// Incoming-call alerts ride the dedicated call channel so the app
		// can ring instead of chiming.
		android.ChannelID = notification.Category
		androidSet = true
	}
	if androidSet || notification.Priority == "high" {
		msg.Android = &messaging.AndroidConfig{}
		if androidSet {
			msg.Android.Notification = android
		}
		if notification.Priority == "high" {
			msg.Android.Priority = "high"
		}
	}

	response, err := client.SendMulticast(ctx, msg)
	if err != nil {
		logger.Error("Failed to send FCM multicast",
			zap.String("project_id", f.projectID),
			zap.Int("token_count", len(tokens)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to send FCM message: %w", err)
	}

	result := &SendResult{
		SuccessCount: response.SuccessCount,
		FailureCount: response.FailureCount,
	}
	for i, resp := range response.Responses {
		if resp.Success || resp.Error == nil {
			continue
		}
		result.Errors = append(result.Errors, resp.Error)
		logger.Warn("FCM rejected token",
			zap.String("token_prefix", maskPushToken(tokens[i])),
			zap.Error(resp.Error))
		if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
			result.InvalidTokens = append(result.InvalidTokens, tokens[i])
		}
	}

	logger.Info("FCM alert dispatched",
		zap.String("title", notification.Title),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failure_count", result.FailureCount),
		zap.Int("invalid_tokens", len(result.InvalidTokens)))

	return result, nil
}

// maskPushToken keeps device tokens out of the logs; only the edges are
// shown for correlation.
func maskPushToken(token string) string {
	if len(token) <= 16 {
		return "********"
	}
	return token[:8] + "..." + token[len(token)-8:]
}
