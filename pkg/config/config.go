package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	Billing    BillingConfig
	DNS        DNSConfig
	Email      EmailConfig
	Google     GoogleConfig
	Onboarding OnboardingConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key string
}

// BillingConfig holds the shared secret used to verify payment-confirmation
// webhook signatures from the billing provider.
type BillingConfig struct {
	WebhookSecret string
}

// DNSConfig selects and configures the domain provisioner used when an
// organization is given its own subdomain.
type DNSConfig struct {
	Provider         string // cloudflare, route53 or none
	BaseDomain       string
	TargetCNAME      string
	CloudflareToken  string
	CloudflareZoneID string
	Route53ZoneID    string
	Route53Region    string
	Route53AccessKey string
	Route53SecretKey string
}

type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	From     string
}

// GoogleConfig holds the OAuth client used for calendar integrations.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// OnboardingConfig controls the periodic sweep that retries paid but
// unfinalized organization onboardings.
type OnboardingConfig struct {
	SweepCron string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "bookpool")
	v.SetDefault("DATABASE_PASSWORD", "bookpool_secret")
	v.SetDefault("DATABASE_NAME", "bookpool")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("BILLING_WEBHOOK_SECRET", "")
	v.SetDefault("DNS_PROVIDER", "none")
	v.SetDefault("DNS_BASE_DOMAIN", "bookpool.local")
	v.SetDefault("DNS_TARGET_CNAME", "edge.bookpool.local")
	v.SetDefault("DNS_ROUTE53_REGION", "us-east-1")
	v.SetDefault("EMAIL_SMTP_HOST", "localhost")
	v.SetDefault("EMAIL_SMTP_PORT", 25)
	v.SetDefault("EMAIL_FROM", "no-reply@bookpool.local")
	v.SetDefault("ONBOARDING_SWEEP_CRON", "*/15 * * * *")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		Billing: BillingConfig{
			WebhookSecret: v.GetString("BILLING_WEBHOOK_SECRET"),
		},
		DNS: DNSConfig{
			Provider:         v.GetString("DNS_PROVIDER"),
			BaseDomain:       v.GetString("DNS_BASE_DOMAIN"),
			TargetCNAME:      v.GetString("DNS_TARGET_CNAME"),
			CloudflareToken:  v.GetString("DNS_CLOUDFLARE_TOKEN"),
			CloudflareZoneID: v.GetString("DNS_CLOUDFLARE_ZONE_ID"),
			Route53ZoneID:    v.GetString("DNS_ROUTE53_ZONE_ID"),
			Route53Region:    v.GetString("DNS_ROUTE53_REGION"),
			Route53AccessKey: v.GetString("DNS_ROUTE53_ACCESS_KEY"),
			Route53SecretKey: v.GetString("DNS_ROUTE53_SECRET_KEY"),
		},
		Email: EmailConfig{
			SMTPHost: v.GetString("EMAIL_SMTP_HOST"),
			SMTPPort: v.GetInt("EMAIL_SMTP_PORT"),
			SMTPUser: v.GetString("EMAIL_SMTP_USER"),
			SMTPPass: v.GetString("EMAIL_SMTP_PASS"),
			From:     v.GetString("EMAIL_FROM"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		},
		Onboarding: OnboardingConfig{
			SweepCron: v.GetString("ONBOARDING_SWEEP_CRON"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	return cfg, nil
}
