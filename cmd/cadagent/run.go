package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inspirepan/cadagent"
)

var runQuiet bool

var runCmd = &cobra.Command{
	Use:   "run <instruction...>",
	Short: "Run a single instruction and print the response",
	Long: `Run one dialog for the instruction and print the model's final response.
Running out of rounds is reported but is not an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		_, err = runOnce(cmd.Context(), a, cmd.OutOrStdout(), strings.Join(args, " "), runQuiet)
		return err
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "print only the final response")
}

func runOnce(ctx context.Context, a *app, w io.Writer, instruction string, quiet bool) (*cadagent.DialogResult, error) {
	out := &renderer{out: w}
	var onEvent, onNested func(cadagent.Event)
	if !quiet {
		onEvent, onNested = out.onEvent, out.onNestedEvent
	}
	res, err := a.dialog(onEvent, onNested).Run(ctx, cadagent.DialogRequest{
		SystemPrompt: a.systemPrompt(),
		Input:        []cadagent.Part{cadagent.TextPart{Text: instruction}},
	})
	if err != nil {
		return nil, err
	}
	out.response(res)
	return res, nil
}
