package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the application configuration
type Config struct {
	DatabaseDriver string `json:"database_driver"` // sqlite or postgres
	DatabaseDSN    string `json:"database_dsn"`
	APIPort        string `json:"api_port"`
	LogLevel       string `json:"log_level"`
	Environment    string `json:"environment"` // development or production
	DataDir        string `json:"data_dir"`    // attachment blob storage root
	CORSOrigins    string `json:"cors_origins"`
	Timezone       string `json:"timezone"` // fixed timezone for local dates

	// Unique reply addresses: "{token}@domain".
	UniqueEmailTemplate string `json:"unique_email_template"`

	// Site sender used for reminders and applicant notifications.
	SiteSenderName string `json:"site_sender_name"`
	SiteSenderMail string `json:"site_sender_mail"`

	// Scheduler slots and thresholds.
	ReminderSlots               []string       `json:"reminder_slots"`    // HH:MM local
	MaintenanceSlots            []string       `json:"maintenance_slots"` // HH:MM local
	MailPumpInterval            int            `json:"mail_pump_interval"` // seconds
	ClosureThresholdDays        int            `json:"closure_threshold_days"`
	ExpirationHalfThresholdDays int            `json:"expiration_half_threshold_days"`
	InboundBatchSize            int            `json:"inbound_batch_size"`
	OutboundBatchSize           int            `json:"outbound_batch_size"`
	DefaultDeadlines            map[string]int `json:"default_deadlines"` // per-type overrides
	MaxBranchDepth              int            `json:"max_branch_depth"`

	// HolidaysPath points at the YAML holiday list.
	HolidaysPath string `json:"holidays_path"`

	// SelfService lets applicants decide their own undecided emails.
	SelfService bool `json:"self_service"`

	// RedisURL enables the optional inbound dedup filter when set.
	RedisURL string `json:"redis_url"`

	// Inbound transport: "imap" polls a mailbox, "smtp" runs a receiving
	// SMTP server.
	InboundTransport string `json:"inbound_transport"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`
	IMAPUseSSL   bool   `json:"imap_use_ssl"`

	SMTPListenPort int `json:"smtp_listen_port"` // inbound SMTP server

	SMTPHost     string `json:"smtp_host"` // outbound submission
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`
}

// Default configuration values
const (
	DefaultDatabaseDriver      = "sqlite"
	DefaultDatabaseDSN         = "data/chcemvediet.db"
	DefaultAPIPort             = "8080"
	DefaultLogLevel            = "INFO"
	DefaultEnvironment         = "development"
	DefaultDataDir             = "data"
	DefaultCORSOrigins         = "*"
	DefaultTimezone            = "Europe/Bratislava"
	DefaultUniqueEmailTemplate = "{token}@mail.chcemvediet.sk"
	DefaultSiteSenderName      = "Chcem vediet"
	DefaultSiteSenderMail      = "info@chcemvediet.sk"
	DefaultMailPumpInterval    = 60
	DefaultClosureThreshold    = 100
	DefaultExpirationHalf      = 30
	DefaultInboundBatchSize    = 10
	DefaultOutboundBatchSize   = 10
	DefaultMaxBranchDepth      = 10
	DefaultHolidaysPath        = "data/holidays.yaml"
	DefaultInboundTransport    = "imap"
)

// Load loads configuration from environment variables and config file
// Priority: Environment variables > Config file > Default values
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDriver:              DefaultDatabaseDriver,
		DatabaseDSN:                 DefaultDatabaseDSN,
		APIPort:                     DefaultAPIPort,
		LogLevel:                    DefaultLogLevel,
		Environment:                 DefaultEnvironment,
		DataDir:                     DefaultDataDir,
		CORSOrigins:                 DefaultCORSOrigins,
		Timezone:                    DefaultTimezone,
		UniqueEmailTemplate:         DefaultUniqueEmailTemplate,
		SiteSenderName:              DefaultSiteSenderName,
		SiteSenderMail:              DefaultSiteSenderMail,
		ReminderSlots:               []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00"},
		MaintenanceSlots:            []string{"02:00", "03:00", "04:00", "05:00"},
		MailPumpInterval:            DefaultMailPumpInterval,
		ClosureThresholdDays:        DefaultClosureThreshold,
		ExpirationHalfThresholdDays: DefaultExpirationHalf,
		InboundBatchSize:            DefaultInboundBatchSize,
		OutboundBatchSize:           DefaultOutboundBatchSize,
		MaxBranchDepth:              DefaultMaxBranchDepth,
		HolidaysPath:                DefaultHolidaysPath,
		InboundTransport:            DefaultInboundTransport,
		IMAPPort:                    993,
		IMAPUseSSL:                  true,
		SMTPListenPort:              2525,
		SMTPPort:                    587,
	}

	// Try to load from config file; the file is optional.
	if err := cfg.loadFromFile(); err != nil {
		return nil, err
	}

	// Override with environment variables
	cfg.loadFromEnv()

	return cfg, nil
}

// loadFromFile loads configuration from config.json file
func (c *Config) loadFromFile() error {
	configPaths := []string{
		"config.json",
		filepath.Join(c.DataDir, "config.json"),
	}
	if path := os.Getenv("CHV_CONFIG_PATH"); path != "" {
		configPaths = []string{path}
	}

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		return json.Unmarshal(data, c)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if val := os.Getenv("CHV_DATABASE_DRIVER"); val != "" {
		c.DatabaseDriver = val
	}
	if val := os.Getenv("CHV_DATABASE_DSN"); val != "" {
		c.DatabaseDSN = val
	}
	if val := os.Getenv("CHV_API_PORT"); val != "" {
		c.APIPort = val
	}
	if val := os.Getenv("CHV_LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
	if val := os.Getenv("CHV_ENVIRONMENT"); val != "" {
		c.Environment = val
	}
	if val := os.Getenv("CHV_DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("CHV_TIMEZONE"); val != "" {
		c.Timezone = val
	}
	if val := os.Getenv("CHV_UNIQUE_EMAIL_TEMPLATE"); val != "" {
		c.UniqueEmailTemplate = val
	}
	if val := os.Getenv("CHV_REDIS_URL"); val != "" {
		c.RedisURL = val
	}
	if val := os.Getenv("CHV_HOLIDAYS_PATH"); val != "" {
		c.HolidaysPath = val
	}
	if val := os.Getenv("CHV_REMINDER_SLOTS"); val != "" {
		c.ReminderSlots = strings.Split(val, ",")
	}
	if val := os.Getenv("CHV_MAINTENANCE_SLOTS"); val != "" {
		c.MaintenanceSlots = strings.Split(val, ",")
	}
	if val := os.Getenv("CHV_MAIL_PUMP_INTERVAL"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MailPumpInterval = n
		}
	}
	if val := os.Getenv("CHV_SELF_SERVICE"); val != "" {
		c.SelfService = val == "1" || strings.EqualFold(val, "true")
	}
	if val := os.Getenv("CHV_INBOUND_TRANSPORT"); val != "" {
		c.InboundTransport = val
	}
	if val := os.Getenv("CHV_IMAP_HOST"); val != "" {
		c.IMAPHost = val
	}
	if val := os.Getenv("CHV_IMAP_USERNAME"); val != "" {
		c.IMAPUsername = val
	}
	if val := os.Getenv("CHV_IMAP_PASSWORD"); val != "" {
		c.IMAPPassword = val
	}
	if val := os.Getenv("CHV_SMTP_HOST"); val != "" {
		c.SMTPHost = val
	}
	if val := os.Getenv("CHV_SMTP_USERNAME"); val != "" {
		c.SMTPUsername = val
	}
	if val := os.Getenv("CHV_SMTP_PASSWORD"); val != "" {
		c.SMTPPassword = val
	}
}

// UniqueEmailDomain extracts the domain part of the unique email template.
func (c *Config) UniqueEmailDomain() string {
	if i := strings.LastIndex(c.UniqueEmailTemplate, "@"); i >= 0 {
		return c.UniqueEmailTemplate[i+1:]
	}
	return c.UniqueEmailTemplate
}

// BlobDir returns the attachment blob storage directory.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
