package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/veridian/internal/repository"
)

var alertsStatus string

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Review alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		alerts, err := repo.ListAlerts(ctx, alertsStatus)
		if err != nil {
			return err
		}
		for _, a := range alerts {
			fmt.Printf("%s  %-8s  %-10s  risk %5.1f  event %s\n",
				a.ID, a.Classification, a.Status, a.CompositeRiskScore, a.ProcessedEventID)
		}
		return nil
	},
}

var alertsShowCmd = &cobra.Command{
	Use:   "show <alert-id>",
	Short: "Show an alert with its explanation and decision history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		alert, err := repo.GetAlertByID(ctx, args[0])
		if err != nil {
			return err
		}

		out := map[string]interface{}{"alert": alert}

		explanation, err := repo.GetExplanationByAlert(ctx, alert.ID)
		if err != nil && !errors.Is(err, repository.ErrExplanationNotFound) {
			return err
		}
		if explanation != nil {
			out["explanation"] = explanation
		}

		decisions, err := repo.ListDecisionsForAlert(ctx, alert.ID)
		if err != nil {
			return err
		}
		out["decisions"] = decisions

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	alertsListCmd.Flags().StringVar(&alertsStatus, "status", "", "filter by status (PENDING, CONFIRMED, DISMISSED, ESCALATED)")
	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsShowCmd)
}
