package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig mirrors Config with pointer fields so that only variables
// actually present in the environment override earlier layers.
type envConfig struct {
	EndpointAddrHTTP      *string        `env:"IDENTKIT_ADDRESS"`
	DatabaseDSN           *string        `env:"IDENTKIT_DATABASE_DSN"`
	PrivateKeyPath        *string        `env:"IDENTKIT_PRIVATE_KEY_PATH"`
	AccessTokenValidity   *time.Duration `env:"IDENTKIT_ACCESS_TOKEN_VALIDITY"`
	SessionValidity       *time.Duration `env:"IDENTKIT_SESSION_VALIDITY"`
	RecoveryTokenValidity *time.Duration `env:"IDENTKIT_RECOVERY_TOKEN_VALIDITY"`
	CookieDomain          *string        `env:"IDENTKIT_COOKIE_DOMAIN"`
	PublicBaseURL         *string        `env:"IDENTKIT_PUBLIC_BASE_URL"`
	EmailSender           *string        `env:"IDENTKIT_EMAIL_SENDER"`
	SendGridAPIKey        *string        `env:"SENDGRID_API_KEY"`
	BcryptCost            *int           `env:"IDENTKIT_BCRYPT_COST"`
}

// parseEnv overlays environment variables onto the config.
func parseEnv(config *Config) {
	c := &envConfig{}
	if err := env.Parse(c); err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != nil {
		config.EndpointAddrHTTP = *c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.PrivateKeyPath != nil {
		config.PrivateKeyPath = *c.PrivateKeyPath
	}
	if c.AccessTokenValidity != nil {
		config.AccessTokenValidity = *c.AccessTokenValidity
	}
	if c.SessionValidity != nil {
		config.SessionValidity = *c.SessionValidity
	}
	if c.RecoveryTokenValidity != nil {
		config.RecoveryTokenValidity = *c.RecoveryTokenValidity
	}
	if c.CookieDomain != nil {
		config.CookieDomain = *c.CookieDomain
	}
	if c.PublicBaseURL != nil {
		config.PublicBaseURL = *c.PublicBaseURL
	}
	if c.EmailSender != nil {
		config.EmailSender = *c.EmailSender
	}
	if c.SendGridAPIKey != nil {
		config.SendGridAPIKey = *c.SendGridAPIKey
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
}
