/**
 * @description
 * This file handles configuration management for the membership scheduler.
 * It loads settings from environment variables (and an optional .env file),
 * providing defaults for cron schedules, reminder lead time and email templates.
 */
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/restrict-content-pro/membership-scheduler/internal/domain"
	"github.com/spf13/viper"
)

// Mail drivers.
const (
	MailDriverSES  = "ses"
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

// Config holds all configuration for the scheduler service.
type Config struct {
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	ServerPort     string `mapstructure:"SERVER_PORT"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`
	RenewalQueue   string `mapstructure:"RENEWAL_QUEUE"`

	RedisURL          string `mapstructure:"REDIS_URL"`
	RedisLockPrefix   string `mapstructure:"REDIS_LOCK_PREFIX"`
	JobLockTTLSeconds int    `mapstructure:"JOB_LOCK_TTL_SECONDS"`

	ExpiredMembersJobSchedule string `mapstructure:"EXPIRED_MEMBERS_JOB_SCHEDULE"`
	ExpiringSoonJobSchedule   string `mapstructure:"EXPIRING_SOON_JOB_SCHEDULE"`
	MemberCountsJobSchedule   string `mapstructure:"MEMBER_COUNTS_JOB_SCHEDULE"`

	SiteTimezone           string `mapstructure:"SITE_TIMEZONE"`
	SiteName               string `mapstructure:"SITE_NAME"`
	RenewalReminderPeriod  string `mapstructure:"RENEWAL_REMINDER_PERIOD"`
	ExpirationEmailEnabled bool   `mapstructure:"EXPIRATION_EMAIL_ENABLED"`

	// Built-in expiration sweep hooks.
	ExpirationSweepLimit          int    `mapstructure:"EXPIRATION_SWEEP_LIMIT"`
	ExpirationSweepExcludedLevels string `mapstructure:"EXPIRATION_SWEEP_EXCLUDED_LEVELS"`

	MailDriver         string `mapstructure:"MAIL_DRIVER"`
	MailFrom           string `mapstructure:"MAIL_FROM"`
	SESRegion          string `mapstructure:"SES_REGION"`
	SESEndpoint        string `mapstructure:"SES_ENDPOINT"`
	SESAccessKeyID     string `mapstructure:"SES_ACCESS_KEY_ID"`
	SESSecretAccessKey string `mapstructure:"SES_SECRET_ACCESS_KEY"`
	SMTPHost           string `mapstructure:"SMTP_HOST"`
	SMTPPort           int    `mapstructure:"SMTP_PORT"`
	SMTPUsername       string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword       string `mapstructure:"SMTP_PASSWORD"`

	RenewNoticeSubject string `mapstructure:"RENEW_NOTICE_SUBJECT"`
	RenewNoticeBody    string `mapstructure:"RENEW_NOTICE_BODY"`
	ExpiredSubject     string `mapstructure:"EXPIRED_SUBJECT"`
	ExpiredBody        string `mapstructure:"EXPIRED_BODY"`
}

const defaultRenewNoticeBody = `Hello %displayname%,

Your %subscription_name% membership at %sitename% expires on %expiration%.
Please renew to keep your access.`

const defaultExpiredBody = `Hello %displayname%,

Your %subscription_name% membership at %sitename% expired on %expiration%.`

var envKeys = []string{
	"DATABASE_URL",
	"SERVER_PORT",
	"INTERNAL_API_KEY",
	"RABBITMQ_URL",
	"EVENTS_EXCHANGE",
	"RENEWAL_QUEUE",
	"REDIS_URL",
	"REDIS_LOCK_PREFIX",
	"JOB_LOCK_TTL_SECONDS",
	"EXPIRED_MEMBERS_JOB_SCHEDULE",
	"EXPIRING_SOON_JOB_SCHEDULE",
	"MEMBER_COUNTS_JOB_SCHEDULE",
	"SITE_TIMEZONE",
	"SITE_NAME",
	"RENEWAL_REMINDER_PERIOD",
	"EXPIRATION_EMAIL_ENABLED",
	"EXPIRATION_SWEEP_LIMIT",
	"EXPIRATION_SWEEP_EXCLUDED_LEVELS",
	"MAIL_DRIVER",
	"MAIL_FROM",
	"SES_REGION",
	"SES_ENDPOINT",
	"SES_ACCESS_KEY_ID",
	"SES_SECRET_ACCESS_KEY",
	"SMTP_HOST",
	"SMTP_PORT",
	"SMTP_USERNAME",
	"SMTP_PASSWORD",
	"RENEW_NOTICE_SUBJECT",
	"RENEW_NOTICE_BODY",
	"EXPIRED_SUBJECT",
	"EXPIRED_BODY",
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("EVENTS_EXCHANGE", "membership_events")
	viper.SetDefault("RENEWAL_QUEUE", "membership_scheduler.renewals")
	viper.SetDefault("REDIS_LOCK_PREFIX", "membership:job_lock")
	viper.SetDefault("JOB_LOCK_TTL_SECONDS", 1800)
	viper.SetDefault("EXPIRED_MEMBERS_JOB_SCHEDULE", "0 0 * * *") // Daily at 00:00.
	viper.SetDefault("EXPIRING_SOON_JOB_SCHEDULE", "0 1 * * *")   // Daily at 01:00.
	viper.SetDefault("MEMBER_COUNTS_JOB_SCHEDULE", "0 2 * * *")   // Daily at 02:00.
	viper.SetDefault("SITE_TIMEZONE", "UTC")
	viper.SetDefault("SITE_NAME", "Membership Site")
	viper.SetDefault("RENEWAL_REMINDER_PERIOD", "+1 month")
	viper.SetDefault("EXPIRATION_EMAIL_ENABLED", true)
	viper.SetDefault("MAIL_DRIVER", MailDriverLog)
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("RENEW_NOTICE_SUBJECT", "Your %subscription_name% membership is about to expire")
	viper.SetDefault("RENEW_NOTICE_BODY", defaultRenewNoticeBody)
	viper.SetDefault("EXPIRED_SUBJECT", "Your %subscription_name% membership has expired")
	viper.SetDefault("EXPIRED_BODY", defaultExpiredBody)

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks required settings and value formats.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if _, err := domain.ParseRenewalPeriod(c.RenewalReminderPeriod); err != nil {
		return fmt.Errorf("RENEWAL_REMINDER_PERIOD: %w", err)
	}
	if _, err := time.LoadLocation(c.SiteTimezone); err != nil {
		return fmt.Errorf("SITE_TIMEZONE: %w", err)
	}
	if _, err := c.ExcludedLevelIDs(); err != nil {
		return fmt.Errorf("EXPIRATION_SWEEP_EXCLUDED_LEVELS: %w", err)
	}

	switch c.MailDriver {
	case MailDriverLog:
	case MailDriverSES:
		if c.SESRegion == "" || c.MailFrom == "" {
			return errors.New("SES_REGION and MAIL_FROM are required for the ses mail driver")
		}
	case MailDriverSMTP:
		if c.SMTPHost == "" || c.MailFrom == "" {
			return errors.New("SMTP_HOST and MAIL_FROM are required for the smtp mail driver")
		}
	default:
		return fmt.Errorf("MAIL_DRIVER: unknown driver %q", c.MailDriver)
	}

	return nil
}

// Location returns the site timezone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.SiteTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RenewalPeriod returns the parsed reminder lead time.
func (c *Config) RenewalPeriod() domain.RenewalPeriod {
	p, err := domain.ParseRenewalPeriod(c.RenewalReminderPeriod)
	if err != nil {
		return domain.RenewalPeriod{}
	}
	return p
}

// ExcludedLevelIDs parses the comma separated level ids skipped by the expiration sweep.
func (c *Config) ExcludedLevelIDs() ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(c.ExpirationSweepExcludedLevels, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid level id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// JobLockTTL returns the overlap-guard lock lifetime.
func (c *Config) JobLockTTL() time.Duration {
	return time.Duration(c.JobLockTTLSeconds) * time.Second
}
