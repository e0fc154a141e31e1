// Package config loads service configuration from an optional file, a .env
// file and RESTURANT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"resturant.app/internal/email"
)

// EnvPrefix prefixes every environment override, e.g. RESTURANT_JWT_KEY.
const EnvPrefix = "RESTURANT"

type Config struct {
	HTTPAddr  string
	GRPCAddr  string
	Database  Database
	JWT       JWT
	Google    Google
	Frontend  string
	Email     Email
	RedisAddr string
	RateLimit RateLimit
	Log       Log
	AMQPURL   string
}

type Database struct {
	DSN          string
	MaxOpenConns int
}

type JWT struct {
	Key             string
	Issuer          string
	Audience        string
	AccessTTL       time.Duration
	RefreshTokenTTL time.Duration
}

type Google struct {
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// Enabled reports whether Google login can run.
func (g Google) Enabled() bool { return g.ClientID != "" && g.ClientSecret != "" }

type Email struct {
	BaseURL string
	Sender  email.Config
}

type RateLimit struct {
	LoginPerMinute int
}

type Log struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":9090")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("jwt.key", "")
	v.SetDefault("jwt.issuer", "resturant-api")
	v.SetDefault("jwt.audience", "resturant-clients")
	v.SetDefault("jwt.expiration_minutes", 60)
	v.SetDefault("jwt.refresh_token_expiration_days", 7)
	v.SetDefault("oauth.google.client_id", "")
	v.SetDefault("oauth.google.client_secret", "")
	v.SetDefault("oauth.google.timeout", "10s")
	v.SetDefault("frontend.base_url", "http://localhost:5173")
	v.SetDefault("email.base_url", "")
	v.SetDefault("email.provider", "log")
	v.SetDefault("email.from", "")
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", "587")
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.mailgun.domain", "")
	v.SetDefault("email.mailgun.api_key", "")
	v.SetDefault("email.sendgrid.api_key", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("ratelimit.login_per_minute", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("amqp.url", "")
}

// Load reads configuration. path may be empty; a missing .env is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		HTTPAddr:  v.GetString("http.addr"),
		GRPCAddr:  v.GetString("grpc.addr"),
		Database:  getDatabase(v),
		JWT:       getJWT(v),
		Google:    getGoogle(v),
		Frontend:  strings.TrimRight(v.GetString("frontend.base_url"), "/"),
		Email:     getEmail(v),
		RedisAddr: v.GetString("redis.addr"),
		RateLimit: RateLimit{LoginPerMinute: v.GetInt("ratelimit.login_per_minute")},
		Log:       Log{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		AMQPURL:   v.GetString("amqp.url"),
	}
}

func getDatabase(v *viper.Viper) Database {
	return Database{
		DSN:          v.GetString("database.dsn"),
		MaxOpenConns: v.GetInt("database.max_open_conns"),
	}
}

func getJWT(v *viper.Viper) JWT {
	return JWT{
		Key:             v.GetString("jwt.key"),
		Issuer:          v.GetString("jwt.issuer"),
		Audience:        v.GetString("jwt.audience"),
		AccessTTL:       time.Duration(v.GetInt("jwt.expiration_minutes")) * time.Minute,
		RefreshTokenTTL: time.Duration(v.GetInt("jwt.refresh_token_expiration_days")) * 24 * time.Hour,
	}
}

func getGoogle(v *viper.Viper) Google {
	return Google{
		ClientID:     v.GetString("oauth.google.client_id"),
		ClientSecret: v.GetString("oauth.google.client_secret"),
		Timeout:      v.GetDuration("oauth.google.timeout"),
	}
}

func getEmail(v *viper.Viper) Email {
	return Email{
		BaseURL: strings.TrimRight(v.GetString("email.base_url"), "/"),
		Sender: email.Config{
			Provider: v.GetString("email.provider"),
			From:     v.GetString("email.from"),
			SMTP: email.SMTPConfig{
				Host:     v.GetString("email.smtp.host"),
				Port:     v.GetString("email.smtp.port"),
				Username: v.GetString("email.smtp.username"),
				Password: v.GetString("email.smtp.password"),
			},
			Mailgun: email.MailgunConfig{
				Domain: v.GetString("email.mailgun.domain"),
				APIKey: v.GetString("email.mailgun.api_key"),
			},
			SendGrid: email.SendGridConfig{
				APIKey: v.GetString("email.sendgrid.api_key"),
			},
		},
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.Key) == "" {
		errs = append(errs, errors.New("jwt.key is required"))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, errors.New("jwt.expiration_minutes must be positive"))
	}
	if c.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("jwt.refresh_token_expiration_days must be positive"))
	}
	if c.RateLimit.LoginPerMinute <= 0 {
		errs = append(errs, errors.New("ratelimit.login_per_minute must be positive"))
	}
	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("oauth.google.client_id and client_secret must be set together"))
	}
	return errors.Join(errs...)
}
