// rcctl — инструмент командной строки для управления шаблоном
// Firebase Remote Config.
//
// Использование:
//
//	rcctl [--project ID] [--credentials FILE] [--file FILE] [--json] <command> [flags]
//
// Команды:
//
//	get        Скачать активный шаблон в локальный файл
//	publish    Опубликовать локальный файл (--etag или --force)
//	versions   История версий
//	rollback   Откат к версии
//	param      Правка параметров в локальном файле
//	condition  Правка условий в локальном файле
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/rcctl/internal/auth"
	"github.com/shaiso/rcctl/internal/cli"
	"github.com/shaiso/rcctl/internal/config"
	"github.com/shaiso/rcctl/internal/mq"
	"github.com/shaiso/rcctl/internal/remoteconfig"
	"github.com/shaiso/rcctl/internal/telemetry"
	"github.com/shaiso/rcctl/internal/templatefile"
)

// version задаётся через ldflags при сборке.
var version = "dev"

// flags — значения PersistentFlags.
type flags struct {
	configPath  string
	projectID   string
	credentials string
	file        string
	logLevel    string
	logFormat   string
	jsonOutput  bool
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var f flags
	var cfg *config.Config
	var client *remoteconfig.Client
	var notifier *mq.Notifier

	invocationID := uuid.NewString()
	metrics := telemetry.NewMetrics()
	logger := slog.Default()

	rootCmd := &cobra.Command{
		Use:           "rcctl",
		Short:         "rcctl — Firebase Remote Config template manager",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, loaded, f)
			cfg = loaded

			logger = telemetry.WithInvocationID(telemetry.SetupLogger(telemetry.LogConfig{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
			}), invocationID)
			cmd.SetContext(telemetry.WithLogger(cmd.Context(), logger))

			if cfg.Notify.AMQPURL != "" {
				notifier = mq.NewNotifier(cfg.Notify.AMQPURL, mq.Exchange(cfg.Notify.Exchange), logger)
			}

			logger.Debug("starting command", "command", cmd.CommandPath())
			return nil
		},
	}

	rootCmd.SetFlagErrorFunc(cli.FlagErrorFunc)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "Path to YAML config (default $RCCTL_CONFIG)")
	pf.StringVar(&f.projectID, "project", "", "Firebase project ID (default $RCCTL_PROJECT_ID)")
	pf.StringVar(&f.credentials, "credentials", "", "Service account key file (default "+config.DefaultCredentialsFile+")")
	pf.StringVar(&f.file, "file", "", "Local template file (default "+config.DefaultTemplateFile+")")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	pf.BoolVar(&f.jsonOutput, "json", false, "Output in JSON format")

	deps := &cli.Deps{
		Client: func() (cli.TemplateClient, error) {
			if client != nil {
				return client, nil
			}
			c, err := newClient(ctx, cfg, metrics)
			if err != nil {
				return nil, err
			}
			logger = telemetry.WithProject(logger, c.ProjectID())
			logger.Debug("remote config client ready")
			client = c
			return client, nil
		},
		Store:  func() *templatefile.Store { return templatefile.New(cfg.TemplateFile) },
		Output: func() *cli.Output { return cli.NewOutput(f.jsonOutput) },
		Notifier: func() cli.Notifier {
			if notifier == nil {
				return nil
			}
			return notifier
		},
		Confirm:      cli.TerminalConfirm(os.Stdin, os.Stderr),
		InvocationID: func() string { return invocationID },
	}

	rootCmd.AddCommand(cli.Commands(deps)...)

	executed, err := rootCmd.ExecuteContextC(ctx)

	metrics.ObserveCommand(commandName(executed), err)
	if cfg != nil && cfg.Metrics.PushgatewayURL != "" {
		if perr := metrics.Push(context.WithoutCancel(ctx), cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); perr != nil {
			logger.Warn("failed to push metrics", "error", perr)
		}
	}

	if notifier != nil {
		if cerr := notifier.Close(); cerr != nil {
			logger.Warn("failed to close notifier", "error", cerr)
		}
	}

	if err != nil {
		cli.NewOutput(f.jsonOutput).Error(err.Error())
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

// applyFlags переопределяет конфигурацию явно заданными флагами.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) {
	set := func(name string, dst *string, value string) {
		if cmd.Flags().Changed(name) {
			*dst = value
		}
	}

	set("project", &cfg.ProjectID, f.projectID)
	set("credentials", &cfg.CredentialsFile, f.credentials)
	set("file", &cfg.TemplateFile, f.file)
	set("log-level", &cfg.Log.Level, f.logLevel)
	set("log-format", &cfg.Log.Format, f.logFormat)
}

// newClient создаёт аутентифицированный клиент API с метриками.
// Конфигурация проверяется здесь: локальным правкам проект и ключ не нужны.
func newClient(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*remoteconfig.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()

	httpClient, err := auth.NewHTTPClient(ctx, auth.Options{
		CredentialsFile: cfg.CredentialsFile,
		AccessToken:     cfg.AccessToken,
		Timeout:         cfg.Timeout,
		Transport:       metrics.InstrumentRoundTripper(transport, remoteconfig.OperationFromContext),
	})
	if err != nil {
		return nil, err
	}

	return remoteconfig.New(httpClient, remoteconfig.Options{
		BaseURL:   cfg.BaseURL,
		ProjectID: cfg.ProjectID,
		UserAgent: "rcctl/" + version,
	})
}

// commandName возвращает путь команды без имени программы ("param rename").
func commandName(cmd *cobra.Command) string {
	if cmd == nil {
		return "unknown"
	}
	name := strings.TrimPrefix(cmd.CommandPath(), "rcctl")
	name = strings.TrimSpace(name)
	if name == "" {
		return "root"
	}
	return name
}
