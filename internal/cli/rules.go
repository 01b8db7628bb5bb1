package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sigma-trader/internal/knowledge"
)

func newRulesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the strategy rule store",
		Long:  "List, search and add the rules and notes the agents consult.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ks, err := app.Knowledge(ctx)
			if err != nil {
				return err
			}
			all, err := ks.All(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(all)
			}
			displaySnippets(output, all)
			return nil
		},
	})

	var limit int
	search := &cobra.Command{
		Use:   "search <topic>",
		Short: "Show the rules an agent would receive for a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ks, err := app.Knowledge(ctx)
			if err != nil {
				return err
			}
			found, err := ks.Lookup(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(found)
			}
			displaySnippets(output, found)
			return nil
		},
	}
	search.Flags().IntVarP(&limit, "limit", "n", knowledge.DefaultLimit, "maximum results")
	cmd.AddCommand(search)

	var topic, source string
	add := &cobra.Command{
		Use:     "add <content>",
		Short:   "Add a rule",
		Example: `  trader rules add --topic "Iron Fly management" "Close the fly when spot touches a wing."`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			ks, err := app.Knowledge(ctx)
			if err != nil {
				return err
			}
			if _, err := ks.Add(ctx, knowledge.Snippet{Topic: topic, Content: args[0], Source: source}); err != nil {
				return err
			}
			output.Success("✓ Rule added to %q", topic)
			return nil
		},
	}
	add.Flags().StringVarP(&topic, "topic", "t", "", "rule topic")
	add.Flags().StringVar(&source, "source", "cli", "rule source")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import rules from a JSON array of {topic, content, source}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			snippets, err := knowledge.LoadFile(args[0])
			if err != nil {
				return err
			}
			ks, err := app.Knowledge(ctx)
			if err != nil {
				return err
			}
			n, err := ks.Add(ctx, snippets...)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"imported": n})
			}
			output.Success("✓ Imported %d rules", n)
			return nil
		},
	})

	return cmd
}

func displaySnippets(output *Output, snippets []knowledge.Snippet) {
	if len(snippets) == 0 {
		output.Dim("No rules found.")
		return
	}
	for _, s := range snippets {
		output.Bold("%s", s.Topic)
		output.Printf("  %s\n", s.Content)
		if s.Source != "" {
			output.Dim("  source: %s", s.Source)
		}
	}
}
