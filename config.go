package octocert

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/go-acme/lego/v4/lego"
)

const (
	DNSProviderRoute53    = "route53"
	DNSProviderCloudflare = "cloudflare"

	// Issuer common names the deployment server reports for certificates
	// issued by Let's Encrypt production and staging.
	DefaultProductionIssuer = "Let's Encrypt Authority X3"
	DefaultStagingIssuer    = "Fake LE Intermediate X1"

	DefaultExpiryThresholdDays = 30
)

type Route53Provider struct {
	AccessKeyID     string `toml:"access_key_id" comment:"AWS access key ID (or set AWS_ACCESS_KEY_ID)"`
	SecretAccessKey string `toml:"secret_access_key" comment:"AWS secret access key (or set AWS_SECRET_ACCESS_KEY)"`
	Region          string `toml:"region" comment:"AWS region of the hosted zone"`
}

type CloudflareProvider struct {
	APIToken string `toml:"api_token" comment:"Cloudflare API token (or set CLOUDFLARE_API_TOKEN)"`
}

type Config struct {
	Domain              string             `toml:"domain" comment:"Domain the certificate is issued for"`
	Email               string             `toml:"email" comment:"ACME account contact email"`
	ServerURI           string             `toml:"server_uri" comment:"Deployment server base URI, e.g. https://deploy.example.com"`
	Space               string             `toml:"space" comment:"Deployment server space identifier"`
	APIKey              string             `toml:"api_key" comment:"Deployment server API key (or set OCTOCERT_API_KEY)"`
	Staging             bool               `toml:"staging" comment:"Use the staging authority and its fake issuer name"`
	ExpiryThresholdDays int                `toml:"expiry_threshold_days" comment:"Renew when the stored certificate expires within this many days"`
	PfxPassword         string             `toml:"pfx_password" comment:"Password protecting the issued PKCS#12 bundle (or set OCTOCERT_PFX_PASSWORD)"`
	PfxOutputPath       string             `toml:"pfx_output_path" comment:"Optional path to also write the issued PKCS#12 file to"`
	HistoryDBPath       string             `toml:"history_db_path" comment:"Optional SQLite file recording issuance history"`
	ProductionIssuer    string             `toml:"production_issuer" comment:"Issuer common name matched against production records"`
	StagingIssuer       string             `toml:"staging_issuer" comment:"Issuer common name matched against staging records"`
	DNSProvider         string             `toml:"dns_provider" comment:"DNS provider for challenges ('route53' or 'cloudflare')"`
	Route53             Route53Provider    `toml:"route53"`
	Cloudflare          CloudflareProvider `toml:"cloudflare"`
}

// LoadConfig reads the TOML file at path, applies defaults and pulls secrets
// from the environment when the file leaves them empty.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	cfg := &Config{
		ExpiryThresholdDays: DefaultExpiryThresholdDays,
		ProductionIssuer:    DefaultProductionIssuer,
		StagingIssuer:       DefaultStagingIssuer,
		DNSProvider:         DNSProviderRoute53,
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OCTOCERT_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OCTOCERT_PFX_PASSWORD"); v != "" {
		c.PfxPassword = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		c.Route53.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		c.Route53.SecretAccessKey = v
	}
	if v := os.Getenv("CLOUDFLARE_API_TOKEN"); v != "" {
		c.Cloudflare.APIToken = v
	}
}

func (c *Config) Validate() error {
	if c.Domain == "" {
		return errors.New("config: domain cannot be empty")
	}
	if c.Email == "" {
		return errors.New("config: email cannot be empty")
	}
	if c.ServerURI == "" {
		return errors.New("config: server_uri cannot be empty")
	}
	if c.Space == "" {
		return errors.New("config: space cannot be empty")
	}
	if c.APIKey == "" {
		return errors.New("config: api_key cannot be empty")
	}
	if c.PfxPassword == "" {
		return errors.New("config: pfx_password cannot be empty")
	}
	if c.ExpiryThresholdDays <= 0 {
		return errors.New("config: expiry_threshold_days must be positive")
	}
	switch c.DNSProvider {
	case DNSProviderRoute53:
		if c.Route53.AccessKeyID == "" || c.Route53.SecretAccessKey == "" {
			return fmt.Errorf("config: access_key_id and secret_access_key cannot be empty for dns_provider '%s'", c.DNSProvider)
		}
		if c.Route53.Region == "" {
			return fmt.Errorf("config: region cannot be empty for dns_provider '%s'", c.DNSProvider)
		}
	case DNSProviderCloudflare:
		if c.Cloudflare.APIToken == "" {
			return fmt.Errorf("config: api_token cannot be empty for dns_provider '%s'", c.DNSProvider)
		}
	default:
		return fmt.Errorf("config: unsupported dns_provider: %q", c.DNSProvider)
	}
	return nil
}

// IssuerName returns the issuer common name existing records are matched
// against. Staging and production must never mix within a run, so this and
// CADirectoryURL both key off the same flag.
func (c *Config) IssuerName() string {
	if c.Staging {
		return c.StagingIssuer
	}
	return c.ProductionIssuer
}

// CADirectoryURL returns the ACME directory endpoint for the run.
func (c *Config) CADirectoryURL() string {
	if c.Staging {
		return lego.LEDirectoryStaging
	}
	return lego.LEDirectoryProduction
}
