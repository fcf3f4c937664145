// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/spf13/viper"
)

// Defaults applied when the config file leaves a setting out.
const (
	DefaultReason     = "maintenance"
	DefaultTimeZone   = "America/New_York"
	DefaultTimeFormat = "Monday, January 2, 2006, 3:04 PM MST"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		SharedPath: p.expandEnv(p.v.GetString("shared_path")),
		Roles:      make(map[string][]models.Host),
	}

	if cfg.SharedPath == "" {
		return nil, fmt.Errorf("shared_path is required")
	}
	if !strings.HasPrefix(cfg.SharedPath, "/") {
		return nil, fmt.Errorf("shared_path must be absolute")
	}

	// Parse role groups (web is required).
	for role := range p.v.GetStringMap("roles") {
		hosts, err := p.parseHosts("roles." + role)
		if err != nil {
			return nil, err
		}
		cfg.Roles[role] = hosts
	}
	if len(cfg.Roles[models.WebRole]) == 0 {
		return nil, fmt.Errorf("roles.web is required")
	}

	// Parse SSH settings.
	cfg.SSH = models.SSHConfig{
		Username:   p.v.GetString("ssh.username"),
		Port:       p.v.GetInt("ssh.port"),
		KeyPath:    p.expandEnv(p.v.GetString("ssh.key_path")),
		KnownHosts: p.expandEnv(p.v.GetString("ssh.known_hosts")),
		Timeout:    p.v.GetDuration("ssh.timeout"),
	}

	if cfg.SSH.Username == "" {
		cfg.SSH.Username = "root"
	}
	if cfg.SSH.Port == 0 {
		cfg.SSH.Port = 22
	}
	if cfg.SSH.Timeout == 0 {
		cfg.SSH.Timeout = 30 * time.Second
	}

	// Parse maintenance settings.
	cfg.Maintenance = models.MaintenanceSettings{
		DefaultReason: p.v.GetString("maintenance.default_reason"),
		DefaultType:   models.MaintenanceType(p.v.GetString("maintenance.default_type")),
		TimeZone:      p.v.GetString("maintenance.time_zone"),
		TimeFormat:    p.v.GetString("maintenance.time_format"),
		InputZone:     p.v.GetString("maintenance.input_zone"),
		Template:      p.expandEnv(p.v.GetString("maintenance.template")),
		Parallelism:   p.v.GetInt("maintenance.parallelism"),
	}

	if cfg.Maintenance.DefaultReason == "" {
		cfg.Maintenance.DefaultReason = DefaultReason
	}
	if cfg.Maintenance.DefaultType == "" {
		cfg.Maintenance.DefaultType = models.MaintenanceGeneral
	}
	if _, err := models.ParseMaintenanceType(string(cfg.Maintenance.DefaultType)); err != nil {
		return nil, fmt.Errorf("maintenance.default_type: %w", err)
	}
	if cfg.Maintenance.TimeZone == "" {
		cfg.Maintenance.TimeZone = DefaultTimeZone
	}
	if cfg.Maintenance.TimeFormat == "" {
		cfg.Maintenance.TimeFormat = DefaultTimeFormat
	}
	if cfg.Maintenance.InputZone == "" {
		cfg.Maintenance.InputZone = "Local"
	}
	if cfg.Maintenance.Parallelism < 0 {
		return nil, fmt.Errorf("maintenance.parallelism must not be negative")
	}

	// Parse optional cache config.
	if p.v.IsSet("cache") { //nolint:nestif // config parsing with defaults
		cfg.Cache = &models.CacheConfig{
			Method:        p.v.GetString("cache.method"),
			BanCommand:    p.v.GetStringSlice("cache.ban_command"),
			URL:           p.expandEnv(p.v.GetString("cache.url")),
			BanHeader:     p.v.GetString("cache.ban_header"),
			BanExpression: p.v.GetString("cache.ban_expression"),
		}

		if cfg.Cache.Method == "" {
			cfg.Cache.Method = "ssh"
		}

		switch cfg.Cache.Method {
		case "ssh":
			hosts, err := p.parseHosts("cache.hosts")
			if err != nil {
				return nil, err
			}
			cfg.Cache.Hosts = hosts
			if len(cfg.Cache.Hosts) == 0 {
				return nil, fmt.Errorf("cache.hosts is required when cache.method is ssh")
			}
			if len(cfg.Cache.BanCommand) == 0 {
				return nil, fmt.Errorf("cache.ban_command is required when cache.method is ssh")
			}
		case "http":
			if cfg.Cache.URL == "" {
				return nil, fmt.Errorf("cache.url is required when cache.method is http")
			}
			if cfg.Cache.BanExpression == "" {
				cfg.Cache.BanExpression = "."
			}
			if cfg.Cache.BanHeader == "" {
				cfg.Cache.BanHeader = "X-Ban-Url"
			}
		default:
			return nil, fmt.Errorf("cache.method must be one of: ssh, http")
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	if needsSSH(cfg) && cfg.SSH.KeyPath == "" {
		return nil, fmt.Errorf("ssh.key_path is required for non-local hosts")
	}

	return cfg, nil
}

func (p *Parser) parseHosts(key string) ([]models.Host, error) {
	var hosts []models.Host
	for _, s := range p.v.GetStringSlice(key) {
		host, err := models.ParseHost(strings.TrimSpace(p.expandEnv(s)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		hosts = append(hosts, host)
	}
	return hosts, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func needsSSH(cfg *models.Config) bool {
	for _, hosts := range cfg.Roles {
		for _, h := range hosts {
			if !h.IsLocal() {
				return true
			}
		}
	}
	if cfg.Cache != nil && cfg.Cache.Method == "ssh" {
		for _, h := range cfg.Cache.Hosts {
			if !h.IsLocal() {
				return true
			}
		}
	}
	return false
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.SharedPath == "" {
		return fmt.Errorf("shared_path is required")
	}

	if len(cfg.WebHosts()) == 0 {
		return fmt.Errorf("roles.web is required")
	}

	if _, err := time.LoadLocation(cfg.Maintenance.TimeZone); err != nil {
		return fmt.Errorf("maintenance.time_zone: %w", err)
	}

	if cfg.Maintenance.Template != "" {
		if _, err := os.Stat(cfg.Maintenance.Template); err != nil {
			return fmt.Errorf("maintenance.template: %w", err)
		}
	}

	return nil
}
