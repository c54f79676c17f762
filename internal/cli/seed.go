package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/veridian/internal/activity"
	"github.com/veridian-systems/veridian/internal/explain"
	"github.com/veridian-systems/veridian/internal/logging"
	"github.com/veridian-systems/veridian/internal/messaging"
	"github.com/veridian-systems/veridian/internal/pipeline"
	"github.com/veridian-systems/veridian/internal/repository"
	"github.com/veridian-systems/veridian/internal/rules"
	"github.com/veridian-systems/veridian/internal/scoring"
	"github.com/veridian-systems/veridian/internal/seeder"
	"github.com/veridian-systems/veridian/internal/synthesis"
)

var (
	seedEventCount int
	seedTimeSpread time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo rules and run generated events through the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		for _, rule := range seeder.GenerateRules() {
			if err := repo.CreateRule(ctx, rule); err != nil {
				if errors.Is(err, repository.ErrRuleExists) {
					continue
				}
				return fmt.Errorf("failed to seed rule %s: %w", rule.RuleID, err)
			}
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
		synthesizer, err := synthesis.NewSynthesizer(repo, cfg.Reasoning)
		if err != nil {
			return err
		}
		svc := pipeline.NewService(
			repo,
			scoring.NewHeuristicScorer(repo),
			rules.NewEvaluator(repo),
			synthesizer,
			explain.NewBuilder(repo),
			activity.NewTracker(nil, cfg.Reasoning.ActivityWindow, false),
			messaging.NoopPublisher{},
			logger,
		)

		alerted := 0
		for i := 0; i < seedEventCount; i++ {
			event := seeder.GenerateEvent(i, seedEventCount, seedTimeSpread)
			result, err := svc.Process(ctx, event, nil)
			if err != nil {
				return fmt.Errorf("pipeline failed for event %s: %w", event.ID, err)
			}
			if result.Alert != nil {
				alerted++
			}
		}

		fmt.Printf("Seeded %d events, %d alerts created\n", seedEventCount, alerted)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedEventCount, "events", 100, "number of events to generate")
	seedCmd.Flags().DurationVar(&seedTimeSpread, "spread", 24*time.Hour, "time window to spread events across")
}
