/**
 * @description
 * Configuration management for the buyer-service. Uses viper to load
 * settings from environment variables, providing a centralized and
 * consistent way to manage application settings.
 */
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	AuthJWKSURL string `mapstructure:"AUTH_JWKS_URL"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`

	// Comma-separated allow-lists granting the superadmin capability.
	SuperadminUIDs   string `mapstructure:"SUPERADMIN_UIDS"`
	SuperadminEmails string `mapstructure:"SUPERADMIN_EMAILS"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	PurchaseRateLimit         int `mapstructure:"PURCHASE_RATE_LIMIT"`
	PurchaseRateWindowSeconds int `mapstructure:"PURCHASE_RATE_WINDOW_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("PURCHASE_RATE_LIMIT", 30)
	viper.SetDefault("PURCHASE_RATE_WINDOW_SECONDS", 60)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("AUTH_JWKS_URL")
	_ = viper.BindEnv("JWT_AUDIENCE")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("SUPERADMIN_UIDS")
	_ = viper.BindEnv("SUPERADMIN_EMAILS")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PURCHASE_RATE_LIMIT")
	_ = viper.BindEnv("PURCHASE_RATE_WINDOW_SECONDS")

	if err = viper.Unmarshal(&config); err != nil {
		return
	}
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}
	if config.DatabaseURL == "" {
		err = errors.New("DATABASE_URL is required")
	}
	return
}

// SuperadminUIDList returns the parsed uid allow-list.
func (c Config) SuperadminUIDList() []string {
	return splitList(c.SuperadminUIDs)
}

// SuperadminEmailList returns the parsed email allow-list.
func (c Config) SuperadminEmailList() []string {
	return splitList(c.SuperadminEmails)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
