package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxpilot/internal/config"
	"github.com/teemow/inboxpilot/internal/logging"
)

func newAskCmd() *cobra.Command {
	var (
		configPath  string
		showActions bool
	)

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single query and exit",
		Long: `Answer one natural-language query from the command line.

The query is planned and executed exactly as it would be through the
HTTP API; the answer is printed to stdout, followed by the actions
taken when --actions is set.

Example:
  inboxpilot ask "any warnings from github?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runAsk(cmd.Context(), cfg, strings.Join(args, " "), showActions)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/inboxpilot/config.yaml)")
	cmd.Flags().BoolVar(&showActions, "actions", true, "Print the actions taken after the answer")

	return cmd
}

func runAsk(ctx context.Context, cfg *config.Config, query string, showActions bool) error {
	logging.Setup(cfg.Logging.Level, cfg.Logging.JSON)
	if ctx == nil {
		ctx = context.Background()
	}

	c, err := buildComponents(ctx, cfg, nil)
	if err != nil {
		return err
	}

	resp := c.orchestrator.HandleQuery(ctx, query)

	fmt.Println(resp.Text)
	if showActions && len(resp.ActionsTaken) > 0 {
		fmt.Println("\nActions taken:")
		for _, action := range resp.ActionsTaken {
			fmt.Printf("  - %s\n", action)
		}
	}
	return nil
}
