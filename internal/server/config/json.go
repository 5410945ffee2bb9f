package config

import (
	"encoding/json"
	"os"

	"github.com/identkit/identkit/internal/flagx"
	"github.com/identkit/identkit/internal/timex"
)

// JsonConfig is the intermediate DTO used only for reading JSON configuration
// files. Interval fields use timex.Duration, which parses both string values
// such as "15m" and integer nanoseconds. After unmarshalling, its fields are
// copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http"`
	DatabaseDSN           *string         `json:"database_dsn"`
	PrivateKeyPath        *string         `json:"private_key_path"`
	AccessTokenValidity   *timex.Duration `json:"access_token_validity"`
	SessionValidity       *timex.Duration `json:"session_validity"`
	RecoveryTokenValidity *timex.Duration `json:"recovery_token_validity"`
	CookieDomain          *string         `json:"cookie_domain"`
	PublicBaseURL         *string         `json:"public_base_url"`
	EmailSender           *string         `json:"email_sender"`
	SendGridAPIKey        *string         `json:"sendgrid_api_key"`
	BcryptCost            *int            `json:"bcrypt_cost"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config. The file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. Absent JSON keys leave the current
// value untouched. An unreadable or invalid file panics: a server started
// with a broken config file must not come up on silent defaults.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyJson(config, c)
}

func applyJson(config *Config, c *JsonConfig) {
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
		config.AccessTokenValidity = c.AccessTokenValidity.Duration
	}
	if c.SessionValidity != nil {
		config.SessionValidity = c.SessionValidity.Duration
	}
	if c.RecoveryTokenValidity != nil {
		config.RecoveryTokenValidity = c.RecoveryTokenValidity.Duration
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
