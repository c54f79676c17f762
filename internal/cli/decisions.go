package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/veridian/internal/audit"
	"github.com/veridian-systems/veridian/internal/ledger"
	"github.com/veridian-systems/veridian/internal/logging"
)

var (
	decideAnalyst    string
	decideAction     string
	decideReasoning  string
	decideConfidence float64

	decisionsAnalyst string
)

var decideCmd = &cobra.Command{
	Use:   "decide <alert-id>",
	Short: "Record an analyst decision on an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		l := ledger.NewLedger(repo, audit.NewSigner(cfg.Audit.SigningKey), logging.Default())
		decision, err := l.Decide(ctx, args[0], decideAnalyst, decideAction, decideReasoning, decideConfidence)
		if err != nil {
			return err
		}

		fmt.Printf("Decision %s recorded (%s by %s)\n", decision.ID, decision.Action, decision.AnalystID)
		return nil
	},
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Query decision history",
}

var decisionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions by analyst",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		l := ledger.NewLedger(repo, audit.NewSigner(cfg.Audit.SigningKey), logging.Default())
		decisions, err := l.ListDecisionsByAnalyst(ctx, decisionsAnalyst)
		if err != nil {
			return err
		}
		for _, d := range decisions {
			fmt.Printf("%s  %-9s  conf %.2f  alert %s  %s\n",
				d.DecisionTimestamp.Format("2006-01-02 15:04:05"), d.Action, d.Confidence, d.AlertID, d.Reasoning)
		}
		return nil
	},
}

var decisionsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate decision statistics, optionally per analyst",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		l := ledger.NewLedger(repo, audit.NewSigner(cfg.Audit.SigningKey), logging.Default())
		stats, err := l.Statistics(ctx, decisionsAnalyst)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	decideCmd.Flags().StringVar(&decideAnalyst, "analyst", "", "analyst identifier (required)")
	decideCmd.Flags().StringVar(&decideAction, "action", "", "approve, reject, or escalate (required)")
	decideCmd.Flags().StringVar(&decideReasoning, "reasoning", "", "non-empty reasoning (required)")
	decideCmd.Flags().Float64Var(&decideConfidence, "confidence", 0.5, "confidence in [0,1]")
	decideCmd.MarkFlagRequired("analyst")
	decideCmd.MarkFlagRequired("action")
	decideCmd.MarkFlagRequired("reasoning")

	decisionsListCmd.Flags().StringVar(&decisionsAnalyst, "analyst", "", "analyst identifier")
	decisionsStatsCmd.Flags().StringVar(&decisionsAnalyst, "analyst", "", "analyst identifier (empty for all)")
	decisionsCmd.AddCommand(decisionsListCmd)
	decisionsCmd.AddCommand(decisionsStatsCmd)
}
