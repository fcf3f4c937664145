package main

import (
	"fmt"
	"os"

	"github.com/fgeck/webmaint/internal/config"
	"github.com/fgeck/webmaint/internal/models"
	"github.com/fgeck/webmaint/internal/services/ssh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file. No server is contacted unless --connect is
given, which opens an SSH session to every non-local web host.`,
	RunE: validateConfig,
}

var validateConnect bool

func init() {
	validateCmd.Flags().BoolVar(&validateConnect, "connect", false, "also test SSH connectivity to the web hosts")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Shared path: %s\n", cfg.SharedPath)
	for role, hosts := range cfg.Roles {
		fmt.Printf("  Role %s: %v\n", role, hosts)
	}
	fmt.Println()
	fmt.Println("Maintenance:")
	fmt.Printf("  Default reason: %s\n", cfg.Maintenance.DefaultReason)
	fmt.Printf("  Default type: %s\n", cfg.Maintenance.DefaultType)
	fmt.Printf("  Time zone: %s\n", cfg.Maintenance.TimeZone)
	fmt.Printf("  Time format: %s\n", cfg.Maintenance.TimeFormat)
	if cfg.Maintenance.Template != "" {
		fmt.Printf("  Template: %s\n", cfg.Maintenance.Template)
	} else {
		fmt.Printf("  Template: (built-in)\n")
	}
	fmt.Println()
	fmt.Println("SSH:")
	fmt.Printf("  Username: %s\n", cfg.SSH.Username)
	fmt.Printf("  Port: %d\n", cfg.SSH.Port)
	fmt.Printf("  Key: %s\n", cfg.SSH.KeyPath)
	fmt.Printf("  Host key checking: %v\n", cfg.SSH.KnownHosts != "")
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Cache purge: %v\n", cfg.Cache != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.Cache != nil {
		fmt.Println()
		fmt.Println("Cache Configuration:")
		fmt.Printf("  Method: %s\n", cfg.Cache.Method)
		if cfg.Cache.Method == "http" {
			fmt.Printf("  URL: %s\n", cfg.Cache.URL)
			fmt.Printf("  Ban: %s: %s\n", cfg.Cache.BanHeader, cfg.Cache.BanExpression)
		} else {
			fmt.Printf("  Hosts: %v\n", cfg.Cache.Hosts)
			fmt.Printf("  Command: %v\n", cfg.Cache.BanCommand)
		}
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	if validateConnect {
		return checkConnections(cfg.SSH, cfg.WebHosts())
	}

	return nil
}

func checkConnections(sshCfg models.SSHConfig, hosts []models.Host) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc := ssh.New(log.Logger, sshCfg)
	failed := 0

	fmt.Println()
	fmt.Println("Connectivity:")
	for _, host := range hosts {
		if host.IsLocal() {
			fmt.Printf("  %s: local\n", host)
			continue
		}
		result, err := svc.TestConnection(ctx, host)
		if err == nil {
			err = result.Error
		}
		if err != nil {
			failed++
			fmt.Printf("  %s: FAILED (%v)\n", host, err)
			continue
		}
		fmt.Printf("  %s: OK\n", host)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d web hosts unreachable", failed, len(hosts))
	}
	return nil
}
