package main

import (
	"github.com/fgeck/webmaint/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var disableType string

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Make the application web-accessible again",
	Long: `Remove the maintenance marker of the given type from each web server. The
maintenance page itself is removed too unless another maintenance type is
still active on that server. Running it when maintenance is not active is
harmless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisable(models.MaintenanceType(disableType))
	},
}

var disableInputCmd = &cobra.Command{
	Use:   "disable-input",
	Short: "Make the data-input pages web-accessible again",
	Long:  `Shorthand for "disable --type=input".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDisable(models.MaintenanceInput)
	},
}

func init() {
	disableCmd.Flags().StringVar(&disableType, "type", "", "maintenance type: general or input (default from config)")
}

func runDisable(t models.MaintenanceType) error {
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

	result, err := svc.Disable(ctx, t)
	if result == nil {
		log.Error().Err(err).Msg("maintenance mode not disabled")
		return err
	}

	logHostResults(result.Hosts)
	if result.PurgeError != nil {
		log.Warn().Err(result.PurgeError).Msg("cache was not purged")
	}
	if err != nil {
		log.Error().Err(err).Msg("maintenance mode disabled with failures")
		return err
	}

	log.Info().
		Str("type", string(result.Type)).
		Int("hosts", len(result.Hosts)).
		Msg("maintenance mode disabled")

	return nil
}
