package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Email    EmailConfig    `mapstructure:"email"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmailConfig holds email delivery configuration. An empty SendGrid API key
// disables delivery and logs review links instead.
type EmailConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromName       string `mapstructure:"from_name"`
	FromEmail      string `mapstructure:"from_email"`
}

// ApproverConfig identifies one person on the approval roster
type ApproverConfig struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// ApprovalConfig holds the decision policy configuration
type ApprovalConfig struct {
	TokenSecret        string         `mapstructure:"token_secret"`
	BaseURL            string         `mapstructure:"base_url"`
	PolicyPath         string         `mapstructure:"policy_path"`
	AutoApproveLimit   float64        `mapstructure:"auto_approve_limit"`
	StaleInvoiceDays   int            `mapstructure:"stale_invoice_days"`
	LowConfidenceFloor float64        `mapstructure:"low_confidence_floor"`
	FinanceManagerOver float64        `mapstructure:"finance_manager_over"`
	ExecutiveOver      float64        `mapstructure:"executive_over"`
	Manager            ApproverConfig `mapstructure:"manager"`
	FinanceManager     ApproverConfig `mapstructure:"finance_manager"`
	Executive          ApproverConfig `mapstructure:"executive"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/approvals.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// OpenAI defaults
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.temperature", 0.1)
	viper.SetDefault("openai.timeout", 60*time.Second)

	// Email defaults
	viper.SetDefault("email.from_name", "Invoice Approvals")
	viper.SetDefault("email.from_email", "approvals@example.com")

	// Approval policy defaults
	viper.SetDefault("approval.base_url", "http://localhost:8080")
	viper.SetDefault("approval.policy_path", "configs/approval_policy.md")
	viper.SetDefault("approval.auto_approve_limit", 250.0)
	viper.SetDefault("approval.stale_invoice_days", 180)
	viper.SetDefault("approval.low_confidence_floor", 0.7)
	viper.SetDefault("approval.finance_manager_over", 2500.0)
	viper.SetDefault("approval.executive_over", 10000.0)
	viper.SetDefault("approval.manager.name", "Robert Schrill")
	viper.SetDefault("approval.manager.email", "robert.schrill@example.com")
	viper.SetDefault("approval.finance_manager.name", "Sven Stevenon")
	viper.SetDefault("approval.finance_manager.email", "sven.stevenon@example.com")
	viper.SetDefault("approval.executive.name", "Georly Daniel")
	viper.SetDefault("approval.executive.email", "georly.daniel@example.com")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	viper.BindEnv("email.sendgrid_api_key", "SENDGRID_API_KEY")
	viper.BindEnv("approval.token_secret", "APPROVAL_TOKEN_SECRET")
	viper.BindEnv("approval.base_url", "APPROVAL_BASE_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Approval.TokenSecret == "" {
		return fmt.Errorf("approval.token_secret is required")
	}
	if c.Approval.AutoApproveLimit <= 0 {
		return fmt.Errorf("approval.auto_approve_limit must be positive")
	}
	if c.Approval.LowConfidenceFloor < 0 || c.Approval.LowConfidenceFloor > 1 {
		return fmt.Errorf("approval.low_confidence_floor must be between 0 and 1")
	}
	if c.Approval.FinanceManagerOver >= c.Approval.ExecutiveOver {
		return fmt.Errorf("approval.finance_manager_over must be below approval.executive_over")
	}
	return nil
}
