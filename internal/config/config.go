// Package config загружает конфигурацию rcctl.
//
// Порядок приоритетов (от низшего к высшему):
//
//	значения по умолчанию → YAML-файл → переменные окружения → флаги CLI
//
// Флаги применяет cmd/rcctl; пакет отвечает за первые три источника.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Значения по умолчанию.
const (
	DefaultCredentialsFile = "service-account.json"
	DefaultTemplateFile    = "config.json"
	DefaultBaseURL         = "https://firebaseremoteconfig.googleapis.com"
	DefaultTimeout         = 30 * time.Second
	DefaultExchange        = "remoteconfig.events"
	DefaultMetricsJob      = "rcctl"
)

// ErrInvalidConfig — конфигурация неполна или некорректна.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация одного запуска CLI.
type Config struct {
	// ProjectID — Firebase-проект, шаблоном которого управляет CLI.
	ProjectID string `yaml:"project_id"`

	// CredentialsFile — JSON-ключ сервисного аккаунта.
	CredentialsFile string `yaml:"credentials_file"`

	// AccessToken — готовый OAuth2 токен (заменяет CredentialsFile).
	AccessToken string `yaml:"access_token"`

	// TemplateFile — локальный файл для передачи шаблона между get и publish.
	TemplateFile string `yaml:"template_file"`

	// BaseURL — адрес Remote Config API.
	BaseURL string `yaml:"base_url"`

	// Timeout — таймаут HTTP-запроса.
	Timeout time.Duration `yaml:"timeout"`

	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// LogConfig — настройки логирования.
type LogConfig struct {
	// Level — DEBUG, INFO, WARN, ERROR.
	Level string `yaml:"level"`

	// Format — json или text.
	Format string `yaml:"format"`
}

// MetricsConfig — отправка метрик в Prometheus Pushgateway.
type MetricsConfig struct {
	// PushgatewayURL — адрес Pushgateway; пусто — метрики не отправляются.
	PushgatewayURL string `yaml:"pushgateway_url"`

	// Job — имя job в Pushgateway.
	Job string `yaml:"job"`
}

// NotifyConfig — уведомления об изменении шаблона через RabbitMQ.
type NotifyConfig struct {
	// AMQPURL — адрес брокера; пусто — уведомления выключены.
	AMQPURL string `yaml:"amqp_url"`

	// Exchange — topic exchange для событий.
	Exchange string `yaml:"exchange"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		CredentialsFile: DefaultCredentialsFile,
		TemplateFile:    DefaultTemplateFile,
		BaseURL:         DefaultBaseURL,
		Timeout:         DefaultTimeout,
		Log: LogConfig{
			Level:  "WARN",
			Format: "text",
		},
		Metrics: MetricsConfig{Job: DefaultMetricsJob},
		Notify:  NotifyConfig{Exchange: DefaultExchange},
	}
}

// Load загружает конфигурацию из файла и окружения процесса.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.Getenv)
}

// LoadWithEnv загружает конфигурацию, читая окружение через getenv.
//
// Если path пуст, используется RCCTL_CONFIG; если и он пуст, файл не читается.
// Явно указанный, но отсутствующий файл — ошибка.
func LoadWithEnv(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(getenv("RCCTL_CONFIG"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv переопределяет значения непустыми переменными окружения.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("RCCTL_PROJECT_ID", &c.ProjectID)
	str("RCCTL_CREDENTIALS", &c.CredentialsFile)
	str("RCCTL_ACCESS_TOKEN", &c.AccessToken)
	str("RCCTL_TEMPLATE_FILE", &c.TemplateFile)
	str("RCCTL_BASE_URL", &c.BaseURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("RCCTL_PUSHGATEWAY_URL", &c.Metrics.PushgatewayURL)
	str("RCCTL_AMQP_URL", &c.Notify.AMQPURL)
	str("RCCTL_AMQP_EXCHANGE", &c.Notify.Exchange)

	if v := strings.TrimSpace(getenv("RCCTL_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: RCCTL_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		c.Timeout = d
	}

	return nil
}

// Validate проверяет, что конфигурации достаточно для обращения к API.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.ProjectID) == "" {
		problems = append(problems, "project id is required (--project or RCCTL_PROJECT_ID)")
	}
	if c.AccessToken == "" && c.CredentialsFile == "" {
		problems = append(problems, "credentials file or access token is required")
	}
	if c.TemplateFile == "" {
		problems = append(problems, "template file is required")
	}
	if c.Timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
