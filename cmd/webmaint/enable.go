package main

import (
	"errors"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/fgeck/webmaint/internal/services/maintenance"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// enableInputs resolves --reason/--until against the REASON/UNTIL
// environment variables; an explicit flag wins.
var enableInputs = viper.New()

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Present a maintenance page to visitors",
	Long: `Put the web role into maintenance mode by writing public/system/maintenance.html
and public/system/maintenance_<type> to each web server's shared directory.

By default the page says the site is down for "maintenance" and will be back
"shortly". Customize it with --reason and --until (or REASON and UNTIL):

  webmaint enable -c webmaint.yaml --reason "hardware upgrade" --until "8PM"

You are asked to confirm before any server is touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindEnableFlags(cmd)
		return runEnable(models.MaintenanceType(enableInputs.GetString("type")))
	},
}

var enableInputCmd = &cobra.Command{
	Use:   "enable-input",
	Short: "Present a maintenance page for data-input pages only",
	Long:  `Shorthand for "enable --type=input".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bindEnableFlags(cmd)
		return runEnable(models.MaintenanceInput)
	},
}

func init() {
	for _, c := range []*cobra.Command{enableCmd, enableInputCmd} {
		c.Flags().String("reason", "", "reason shown on the maintenance page (env REASON)")
		c.Flags().String("until", "", `estimated end, e.g. "8PM" or "01/28/2012 8:00PM" (env UNTIL)`)
		c.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	}
	enableCmd.Flags().String("type", "", "maintenance type: general or input (default from config)")

	_ = enableInputs.BindEnv("reason", "REASON")
	_ = enableInputs.BindEnv("until", "UNTIL")
}

// bindEnableFlags binds the flags of the command being run, so enable and
// enable-input share one set of keys.
func bindEnableFlags(cmd *cobra.Command) {
	for _, name := range []string{"reason", "until", "yes", "type"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			_ = enableInputs.BindPFlag(name, f)
		}
	}
}

func runEnable(t models.MaintenanceType) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := newController(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := svc.Enable(ctx, models.EnableRequest{
		Type:      t,
		Reason:    enableInputs.GetString("reason"),
		Until:     enableInputs.GetString("until"),
		AssumeYes: enableInputs.GetBool("yes"),
	})

	var inputErr *maintenance.InputError
	if errors.As(err, &inputErr) {
		log.Error().Str("until", inputErr.Value).Msg("unable to parse until value")
		return err
	}
	if result == nil {
		log.Error().Err(err).Msg("maintenance mode not enabled")
		return err
	}
	if !result.Applied {
		return nil
	}

	logHostResults(result.Hosts)
	if result.PurgeError != nil {
		log.Warn().Err(result.PurgeError).Msg("maintenance page is live but the cache was not purged")
	}
	if err != nil {
		log.Error().Err(err).Msg("maintenance mode enabled with failures")
		return err
	}

	log.Info().
		Str("type", string(result.Window.Type)).
		Str("started_at", result.Window.StartedAtDisplay).
		Str("estimated_end", result.Window.EstimatedEndDisplay).
		Int("hosts", len(result.Hosts)).
		Msg("maintenance mode enabled")

	return nil
}
