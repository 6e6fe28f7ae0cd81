package push

import (
	"fmt"

	"go.uber.org/zap"

	"medconnect-backend/pkg/env"
	"medconnect-backend/pkg/logger"
)

// NewProvider builds the push provider selected by PUSH_PROVIDER
// (fcm, apns, or mock). Each deployment serves one platform; the
// portal's iOS and Android apps run against separate instances.
func NewProvider() (Provider, error) {
	providerType := env.GetString("PUSH_PROVIDER", "mock")

	logger.Info("Initializing push notification provider",
		zap.String("provider_type", providerType))

	switch providerType {
	case "fcm":
		return newFCMProvider()
	case "apns":
		return newAPNsProvider()
	case "mock":
		return &MockProvider{}, nil
	default:
		logger.Warn("Unknown push provider type, falling back to mock",
			zap.String("provider_type", providerType))
		return &MockProvider{}, nil
	}
}

func newFCMProvider() (Provider, error) {
	projectID := env.GetString("FCM_PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("FCM_PROJECT_ID environment variable is required for FCM provider")
	}

	return NewFCMProvider(&FCMConfig{
		ProjectID: projectID,
		// Credentials may arrive inline (secret mount) or as a path
		CredentialsJSON: []byte(env.GetStringFromFile("FCM_CREDENTIALS_JSON", "")),
		CredentialsPath: env.GetString("FCM_CREDENTIALS_PATH", ""),
	})
}

func newAPNsProvider() (Provider, error) {
	bundleID := env.GetString("APNS_BUNDLE_ID", "")
	if bundleID == "" {
		return nil, fmt.Errorf("APNS_BUNDLE_ID environment variable is required for APNs provider")
	}

	production := env.GetBool("APNS_PRODUCTION", false)

	// Token-based authentication is preferred; keys do not expire the
	// way certificates do.
	keyPath := env.GetString("APNS_KEY_PATH", "")
	keyID := env.GetString("APNS_KEY_ID", "")
	teamID := env.GetString("APNS_TEAM_ID", "")
	if keyPath != "" && keyID != "" && teamID != "" {
		return NewAPNsProvider(&APNsConfig{
			BundleID:   bundleID,
			KeyPath:    keyPath,
			KeyID:      keyID,
			TeamID:     teamID,
			Production: production,
		})
	}

	if certPath := env.GetString("APNS_CERT_PATH", ""); certPath != "" {
		return NewAPNsProvider(&APNsConfig{
			BundleID:            bundleID,
			CertificatePath:     certPath,
			CertificatePassword: env.GetStringFromFile("APNS_CERT_PASSWORD", ""),
			Production:          production,
		})
	}

	return nil, fmt.Errorf("either token-based (APNS_KEY_PATH, APNS_KEY_ID, APNS_TEAM_ID) or certificate-based (APNS_CERT_PATH) authentication must be configured for APNs")
}
