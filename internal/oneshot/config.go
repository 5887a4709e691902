package oneshot

import (
	"errors"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public 1Shot API root.
	DefaultBaseURL = "https://api.1shotapi.com/v0"
	// SepoliaChainID is the testnet the demo endpoints live on.
	SepoliaChainID int64 = 11155111
	// DefaultDeployerName names the pre-registered token deployer endpoint.
	DefaultDeployerName = "1Shot Demo Sepolia Token Deployer"
)

// Config holds gateway credentials and the business-scoped defaults.
type Config struct {
	BaseURL    string `yaml:"base_url" envconfig:"ONESHOT_BASE_URL"`
	APIKey     string `yaml:"api_key" envconfig:"ONESHOT_API_KEY"`
	APISecret  string `yaml:"api_secret" envconfig:"ONESHOT_API_SECRET"`
	BusinessID string `yaml:"business_id" envconfig:"ONESHOT_BUSINESS_ID"`
	ChainID    int64  `yaml:"chain_id" envconfig:"ONESHOT_CHAIN_ID"`
	// DeployerName is matched against endpoint names when deploying tokens.
	DeployerName string `yaml:"deployer_name" envconfig:"ONESHOT_DEPLOYER_NAME"`
	// DeployerContract, when set, lets the bot create the deployer endpoint
	// if the business does not have one yet.
	DeployerContract string `yaml:"deployer_contract" envconfig:"ONESHOT_DEPLOYER_CONTRACT"`
	// CallbackURL is registered on endpoints created by the bot. Defaults to
	// the public webhook base plus /1shot.
	CallbackURL      string        `yaml:"callback_url" envconfig:"ONESHOT_CALLBACK_URL"`
	VerifySignatures *bool         `yaml:"verify_signatures" envconfig:"ONESHOT_VERIFY_SIGNATURES"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"ONESHOT_TIMEOUT"`
}

// Enabled reports whether credentials are present.
func (c Config) Enabled() bool {
	return c.APIKey != "" && c.APISecret != "" && c.BusinessID != ""
}

// Verify reports whether callback signatures must be checked. On by default.
func (c Config) Verify() bool {
	return c.VerifySignatures == nil || *c.VerifySignatures
}

// Normalize fills defaults. publicBase is the bot's externally reachable URL.
func (c *Config) Normalize(publicBase string) error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ChainID == 0 {
		c.ChainID = SepoliaChainID
	}
	if strings.TrimSpace(c.DeployerName) == "" {
		c.DeployerName = DefaultDeployerName
	}
	if c.CallbackURL == "" && publicBase != "" {
		c.CallbackURL = strings.TrimRight(publicBase, "/") + "/1shot"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if (c.APIKey == "") != (c.APISecret == "") {
		return errors.New("oneshot: api_key and api_secret must be set together")
	}
	return nil
}
