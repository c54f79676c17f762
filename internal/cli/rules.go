package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/veridian-systems/veridian/internal/repository"
	"github.com/veridian-systems/veridian/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage detection rules",
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a YAML rule pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		loaded, err := rules.LoadPack(args[0])
		if err != nil {
			return err
		}

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		imported, skipped := 0, 0
		for _, rule := range loaded {
			if err := repo.CreateRule(ctx, rule); err != nil {
				if errors.Is(err, repository.ErrRuleExists) {
					skipped++
					continue
				}
				return fmt.Errorf("failed to import rule %s: %w", rule.RuleID, err)
			}
			imported++
		}

		fmt.Printf("Imported %d rules (%d already present)\n", imported, skipped)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()

		list, err := repo.ListEnabledRules(ctx)
		if err != nil {
			return err
		}
		for _, rule := range list {
			fmt.Printf("%-24s %-8s %-8s %v\n", rule.RuleID, rule.Category, rule.Severity, rule.Conditions)
		}
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesImportCmd)
	rulesCmd.AddCommand(rulesListCmd)
}
