package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/TourMarket/internal/pkg/env"
)

// Config holds S3 archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnvBool("ARCHIVE_ENABLED", false),
	}

	// Validate required fields if archiving is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// CancellationKey is cancellations/YYYY/MM/<booking>-<uuid>.json
func CancellationKey(bookingID uint, at time.Time, id string) string {
	at = at.UTC()
	return fmt.Sprintf("cancellations/%04d/%02d/%d-%s.json", at.Year(), int(at.Month()), bookingID, id)
}

// WebhookKey is webhooks/YYYY/MM/<type>-<external id>-<uuid>.json
func WebhookKey(eventType, externalID string, at time.Time, id string) string {
	at = at.UTC()
	return fmt.Sprintf("webhooks/%04d/%02d/%s-%s-%s.json", at.Year(), int(at.Month()), eventType, externalID, id)
}
