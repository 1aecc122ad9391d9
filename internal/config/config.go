// Package config loads and validates configuration for the onboarding run.
// Values come from an optional YAML file with environment variables (and an
// optional .env file) taking precedence. Required values are validated up
// front so a misconfigured run aborts before any side effect.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the onboarding automation.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	HubSpot  HubSpotConfig  `yaml:"hubspot"`
	Google   GoogleConfig   `yaml:"google"`
	Chat     ChatConfig     `yaml:"chat"`
	Source   SourceConfig   `yaml:"source"`
	Run      RunConfig      `yaml:"run"`
}

// PlatformConfig holds learning-platform API settings.
type PlatformConfig struct {
	Endpoint       string `yaml:"endpoint"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	RateDelayMS    int    `yaml:"rate_delay_ms"`
}

// HubSpotConfig holds CRM credentials. Either AccessToken (private app) or
// the ClientID/ClientSecret pair (OAuth client credentials) must be set.
type HubSpotConfig struct {
	AccessToken     string `yaml:"access_token"`
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	TrackerProperty string `yaml:"tracker_property"`
}

// GoogleConfig holds service-account credentials and spreadsheet ids.
type GoogleConfig struct {
	CredentialsJSON      string `yaml:"credentials_json"`
	MappingSpreadsheetID string `yaml:"mapping_spreadsheet_id"`
	TrackersFolderID     string `yaml:"trackers_folder_id"`
}

// ChatConfig holds the Google Chat webhook settings.
type ChatConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	ThreadKey  string `yaml:"thread_key"`
}

// SourceConfig holds the S3 location of the lead and account exports.
type SourceConfig struct {
	Bucket      string `yaml:"bucket"`
	LeadsKey    string `yaml:"leads_key"`
	AccountsKey string `yaml:"accounts_key"`
	Region      string `yaml:"region"`
	AWSProfile  string `yaml:"aws_profile"`
}

// RunConfig holds batch behavior knobs.
type RunConfig struct {
	LeadMaxAgeDays int  `yaml:"lead_max_age_days"`
	Simulate       bool `yaml:"simulate"`
}

// RateDelay returns the fixed delay applied between platform calls.
func (p PlatformConfig) RateDelay() time.Duration {
	return time.Duration(p.RateDelayMS) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout for platform calls.
func (p PlatformConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MissingEnvError reports required configuration values that are absent.
// It is a distinct type so callers can tell configuration failures apart
// from runtime failures.
type MissingEnvError struct {
	Missing []string
}

func (e *MissingEnvError) Error() string {
	return "missing required configuration:\n  - " + strings.Join(e.Missing, "\n  - ")
}

// Load reads configuration from a YAML file and applies defaults.
// A missing file is not an error; env-only deployments pass an empty path.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// Defaults
	if cfg.Platform.TimeoutSeconds == 0 {
		cfg.Platform.TimeoutSeconds = 30
	}
	if cfg.Platform.RateDelayMS == 0 {
		cfg.Platform.RateDelayMS = 500
	}
	if cfg.HubSpot.TrackerProperty == "" {
		cfg.HubSpot.TrackerProperty = "program_tracker_link"
	}
	if cfg.Source.Bucket == "" {
		cfg.Source.Bucket = "lwaiexpdata"
	}
	if cfg.Source.LeadsKey == "" {
		cfg.Source.LeadsKey = "hubspot/hubspot_contacts.csv"
	}
	if cfg.Source.AccountsKey == "" {
		cfg.Source.AccountsKey = "timeback/timeback_main_export.csv"
	}
	if cfg.Source.Region == "" {
		cfg.Source.Region = "us-east-1"
	}
	if cfg.Run.LeadMaxAgeDays == 0 {
		cfg.Run.LeadMaxAgeDays = 14
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from the YAML file at path (optional),
// then overrides with environment variables. A .env file is loaded first
// if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("TIMEBACK_PLATFORM_REST_ENDPOINT"); v != "" {
		cfg.Platform.Endpoint = v
	}
	if v := os.Getenv("TIMEBACK_PLATFORM_CLIENT_ID"); v != "" {
		cfg.Platform.ClientID = v
	}
	if v := os.Getenv("TIMEBACK_PLATFORM_CLIENT_SECRET"); v != "" {
		cfg.Platform.ClientSecret = v
	}
	if v := os.Getenv("HUBSPOT_ACCESS_TOKEN"); v != "" {
		cfg.HubSpot.AccessToken = v
	}
	if v := os.Getenv("HUBSPOT_API_KEY"); v != "" && cfg.HubSpot.AccessToken == "" {
		cfg.HubSpot.AccessToken = v
	}
	if v := os.Getenv("HUBSPOT_CLIENT"); v != "" {
		cfg.HubSpot.ClientID = v
	}
	if v := os.Getenv("HUBSPOT_SECRET"); v != "" {
		cfg.HubSpot.ClientSecret = v
	}
	if v := os.Getenv("HUBSPOT_TRACKER_PROPERTY"); v != "" {
		cfg.HubSpot.TrackerProperty = v
	}
	if v := os.Getenv("GCP_CRED"); v != "" {
		cfg.Google.CredentialsJSON = v
	}
	if v := os.Getenv("MAPPING_SPREADSHEET_ID"); v != "" {
		cfg.Google.MappingSpreadsheetID = v
	}
	if v := os.Getenv("TRACKERS_FOLDER_ID"); v != "" {
		cfg.Google.TrackersFolderID = v
	}
	if v := os.Getenv("GOOGLE_CHAT_WEBHOOK_URL"); v != "" {
		cfg.Chat.WebhookURL = v
	}
	if v := os.Getenv("LEADS_BUCKET"); v != "" {
		cfg.Source.Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Source.Region = v
	}
	if v := os.Getenv("AWS_PROFILE"); v != "" {
		cfg.Source.AWSProfile = v
	}

	return cfg, nil
}

// Validate checks that every required value is present. It returns a
// *MissingEnvError naming each absent value.
func (c *Config) Validate() error {
	var missing []string

	if c.Platform.Endpoint == "" {
		missing = append(missing, "TIMEBACK_PLATFORM_REST_ENDPOINT (platform API endpoint)")
	}
	if c.Platform.ClientID == "" {
		missing = append(missing, "TIMEBACK_PLATFORM_CLIENT_ID (platform OAuth client id)")
	}
	if c.Platform.ClientSecret == "" {
		missing = append(missing, "TIMEBACK_PLATFORM_CLIENT_SECRET (platform OAuth client secret)")
	}
	if c.Google.CredentialsJSON == "" {
		missing = append(missing, "GCP_CRED (Google service-account credentials JSON)")
	}
	if c.Google.MappingSpreadsheetID == "" {
		missing = append(missing, "MAPPING_SPREADSHEET_ID (mapping spreadsheet id)")
	}
	if c.Chat.WebhookURL == "" {
		missing = append(missing, "GOOGLE_CHAT_WEBHOOK_URL (chat webhook)")
	}
	if c.HubSpot.AccessToken == "" && (c.HubSpot.ClientID == "" || c.HubSpot.ClientSecret == "") {
		missing = append(missing, "HUBSPOT_ACCESS_TOKEN or HUBSPOT_CLIENT + HUBSPOT_SECRET (CRM auth)")
	}

	if len(missing) > 0 {
		return &MissingEnvError{Missing: missing}
	}
	return nil
}
