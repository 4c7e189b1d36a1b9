package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	HTTPPort        int    `toml:"http_port" validate:"min=1,max=65535"`
	HTTPIP          string `toml:"http_ip" validate:"omitempty,ip"`
	SMTPPort        int    `toml:"smtp_port" validate:"min=1,max=65535"`
	SMTPIP          string `toml:"smtp_ip" validate:"omitempty,ip"`
	DBPath          string `toml:"db_path"`
	MailDirectory   string `toml:"mail_directory"`
	BasePath        string `toml:"base_path" validate:"startswith=/"`
	SessionSecret   string `toml:"session_secret"`
	SMTPAuthEnabled bool   `toml:"smtp_auth_enabled"`
	SMTPUsername    string `toml:"smtp_username" validate:"required_if=SMTPAuthEnabled true"`
	SMTPPassword    string `toml:"smtp_password"`
	LogFormat       string `toml:"log_format" validate:"oneof=auto text json"`
	Verbose         bool   `toml:"verbose"`

	Outgoing Outgoing `toml:"outgoing"`
}

type Outgoing struct {
	Host   string `toml:"host" validate:"omitempty,hostname|ip"`
	Port   int    `toml:"port" validate:"omitempty,min=1,max=65535"`
	User   string `toml:"user"`
	Pass   string `toml:"pass"`
	Secure bool   `toml:"secure"`
}

func Default() Config {
	return Config{
		HTTPPort:  1080,
		SMTPPort:  1025,
		BasePath:  "/",
		LogFormat: "auto",
	}
}

// Load builds the configuration from defaults, an optional TOML file and the
// environment, in that order of precedence.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnvInt("MAILDEV_WEB_PORT", cfg.HTTPPort)
	cfg.HTTPIP = getEnvString("MAILDEV_WEB_IP", cfg.HTTPIP)
	cfg.SMTPPort = getEnvInt("MAILDEV_SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPIP = getEnvString("MAILDEV_IP", cfg.SMTPIP)
	cfg.DBPath = getEnvString("MAILDEV_DB_PATH", cfg.DBPath)
	cfg.MailDirectory = getEnvString("MAILDEV_MAIL_DIRECTORY", cfg.MailDirectory)
	cfg.BasePath = getEnvString("MAILDEV_BASE_PATHNAME", cfg.BasePath)
	cfg.SessionSecret = getEnvString("MAILDEV_SESSION_SECRET", cfg.SessionSecret)
	cfg.SMTPAuthEnabled = getEnvBool("MAILDEV_INCOMING_AUTH", cfg.SMTPAuthEnabled)
	cfg.SMTPUsername = getEnvString("MAILDEV_INCOMING_USER", cfg.SMTPUsername)
	cfg.SMTPPassword = getEnvString("MAILDEV_INCOMING_PASS", cfg.SMTPPassword)
	cfg.LogFormat = getEnvString("MAILDEV_LOG_FORMAT", cfg.LogFormat)
	cfg.Verbose = getEnvBool("MAILDEV_VERBOSE", cfg.Verbose)
	cfg.Outgoing.Host = getEnvString("MAILDEV_OUTGOING_HOST", cfg.Outgoing.Host)
	cfg.Outgoing.Port = getEnvInt("MAILDEV_OUTGOING_PORT", cfg.Outgoing.Port)
	cfg.Outgoing.User = getEnvString("MAILDEV_OUTGOING_USER", cfg.Outgoing.User)
	cfg.Outgoing.Pass = getEnvString("MAILDEV_OUTGOING_PASS", cfg.Outgoing.Pass)
	cfg.Outgoing.Secure = getEnvBool("MAILDEV_OUTGOING_SECURE", cfg.Outgoing.Secure)
}

var validate = validator.New()

// Validate normalizes the base path and checks every field.
func (c *Config) Validate() error {
	c.BasePath = NormalizeBasePath(c.BasePath)
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return errors.New(ValidationErrorsToText(verrs))
		}
		return err
	}
	return nil
}

// NormalizeBasePath returns the path with a leading slash and no trailing one,
// except for the root itself.
func NormalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func ValidationErrorsToText(verrs validator.ValidationErrors) string {
	var messages []string
	for _, err := range verrs {
		switch err.Tag() {
		case "required", "required_if":
			messages = append(messages, fmt.Sprintf("%s is required", err.Namespace()))
		case "min", "max":
			messages = append(messages, fmt.Sprintf("%s must be between 1 and 65535", err.Namespace()))
		case "oneof":
			messages = append(messages, fmt.Sprintf("%s must be one of %s", err.Namespace(), err.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid (%s)", err.Namespace(), err.Tag()))
		}
	}
	return strings.Join(messages, ". ")
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}
