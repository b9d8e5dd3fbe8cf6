package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/divar-ir/sourcegraph-mcp/internal/prompts"
)

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Print the Sourcegraph query guide",
	Long:  `Prints the same query-syntax guide the search_prompt_guide tool serves, rendered for the terminal.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pm, err := prompts.NewManager()
		if err != nil {
			return err
		}
		text, err := pm.Load("guides.codesearch_guide")
		if err != nil {
			return err
		}

		// Plain text when piped.
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}

		p := termenv.ColorProfile()
		fmt.Println(termenv.String("sourcegraph-mcp").Bold().Foreground(p.Color("#818cf8")))

		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(), // Automatically detect light/dark background
		)
		if err != nil {
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}
		rendered, err := r.Render(text)
		if err != nil {
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(guideCmd)
}
