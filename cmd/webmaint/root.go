package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fgeck/webmaint/internal/config"
	"github.com/fgeck/webmaint/internal/models"
	"github.com/fgeck/webmaint/internal/services/maintenance"
	"github.com/fgeck/webmaint/internal/services/prompt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "webmaint",
	Short: "Put a fleet of web servers into maintenance mode",
	Long: `webmaint places a static maintenance page and a marker file in the shared
directory of every host in the web role, and removes them again:
  - human-friendly end times ("8PM", "01/28/2012 8:00PM", "tomorrow 9am")
  - independent "general" and "input" maintenance types
  - optional cache purge (Varnish ban over SSH or HTTP BAN)
  - optional Telegram notifications

The web servers must serve public/system/maintenance.html while it exists;
see "webmaint snippet".`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (required)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(enableInputCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(disableInputCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(snippetCmd)
}

func setupLogging() {
	// Logs go to stderr so the confirmation prompt and status output stay readable on stdout.
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig() (*models.Config, error) {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return nil, fmt.Errorf("config file is required (--config)")
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}

	log.Debug().
		Str("config", configFile).
		Str("shared_path", cfg.SharedPath).
		Int("web_hosts", len(cfg.WebHosts())).
		Msg("configuration loaded")

	return cfg, nil
}

func newController(cfg *models.Config) (*maintenance.Impl, error) {
	svc, err := maintenance.New(log.Logger, *cfg, prompt.New(os.Stdin, os.Stdout))
	if err != nil {
		log.Error().Err(err).Msg("failed to set up maintenance controller")
		return nil, err
	}
	return svc, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func logHostResults(results []models.HostResult) {
	for _, hr := range results {
		if hr.Error != nil {
			log.Error().
				Err(hr.Error).
				Str("host", hr.Host.String()).
				Bool("rolled_back", hr.RolledBack).
				Msg("host failed")
			continue
		}
		log.Debug().Str("host", hr.Host.String()).Msg("host updated")
	}
}
