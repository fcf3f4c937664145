package main

import (
	"fmt"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which maintenance files exist on each web server",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	statuses, err := svc.Status(ctx)

	for _, st := range statuses {
		if st.Error != nil {
			fmt.Printf("%-30s error: %v\n", st.Host, st.Error)
			continue
		}

		state := "live"
		if st.Active() {
			state = "maintenance"
		}
		fmt.Printf("%-30s %-12s page=%v", st.Host, state, st.Page)
		for _, t := range models.MaintenanceTypes {
			fmt.Printf(" %s=%v", t, st.Markers[t])
		}
		fmt.Println()
	}

	return err
}
