package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		printTools(cmd.OutOrStdout(), a)
		return nil
	},
}

func printTools(w io.Writer, a *app) {
	var sub []string
	if a.trigger != nil {
		sub = a.trigger.Registry.Names()
	}
	for _, spec := range a.registry.Specs() {
		marker := ""
		if slices.Contains(sub, spec.Name) {
			marker = " " + nestedStyle.Render("(auto-dimension)")
		}
		fmt.Fprintf(w, "%s%s\n    %s\n", toolCallStyle.Render(spec.Name), marker, spec.Description)
	}
	fmt.Fprintf(w, "%d tools\n", a.registry.Len())
}
