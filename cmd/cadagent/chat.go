package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/internal/history"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Each line is sent as one instruction; the
conversation is stored and can be resumed with --session.

Commands:
  /last    show the previous instruction
  /retry   send the previous instruction again
  /new     start a new session
  /tools   list the available tools
  /quit    leave`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "resume the session with this id")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	r := &repl{app: a, in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
	if chatSession != "" {
		if err := r.resume(cmd.Context(), chatSession); err != nil {
			return err
		}
	}
	return r.loop(cmd.Context())
}

// repl is one interactive session.
type repl struct {
	app *app
	in  io.Reader
	out io.Writer

	session *history.Session
	history []cadagent.Message
	last    string
}

func (r *repl) resume(ctx context.Context, id string) error {
	store, err := r.app.sessions()
	if err != nil {
		return err
	}
	sess, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	msgs, err := store.Messages(ctx, id)
	if err != nil {
		return err
	}
	r.session = &sess
	r.history = msgs
	r.last = lastUserText(msgs)
	fmt.Fprintf(r.out, "Resumed session %s (%d messages)\n", sess.ID, len(msgs))
	return nil
}

func (r *repl) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, userStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if line == "/retry" {
			if r.last == "" {
				fmt.Fprintln(r.out, "No previous instruction.")
				continue
			}
			line = r.last
		} else if isCommand(line) {
			if r.command(line) {
				return nil
			}
			continue
		}

		if err := r.send(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			(&renderer{out: r.out}).printError(err)
		}
	}
}

func isCommand(line string) bool {
	return strings.HasPrefix(line, "/") && !strings.ContainsAny(line, " \t")
}

// command handles a REPL command and reports whether to leave.
func (r *repl) command(line string) bool {
	switch line {
	case "/quit", "/exit":
		return true
	case "/new":
		r.session, r.history, r.last = nil, nil, ""
		fmt.Fprintln(r.out, successStyle.Render("New session."))
	case "/tools":
		printTools(r.out, r.app)
	case "/last":
		if r.last == "" {
			fmt.Fprintln(r.out, "No previous instruction.")
		} else {
			fmt.Fprintln(r.out, r.last)
		}
	default:
		fmt.Fprintf(r.out, "Unknown command %s\n", line)
	}
	return false
}

// send runs one dialog for text and stores the new messages.
func (r *repl) send(ctx context.Context, text string) error {
	out := &renderer{out: r.out}
	d := r.app.dialog(out.onEvent, out.onNestedEvent)
	res, err := d.Run(ctx, cadagent.DialogRequest{
		SystemPrompt: r.app.systemPrompt(),
		History:      r.history,
		Input:        []cadagent.Part{cadagent.TextPart{Text: text}},
	})
	r.last = text
	if err != nil {
		return err
	}
	out.response(res)

	// Drop the system prompt and the history that was sent.
	skip := len(r.history)
	if len(res.Messages) > 0 && cadagent.RoleOf(res.Messages[0]) == cadagent.RoleSystem {
		skip++
	}
	added := res.Messages[skip:]
	r.history = append(r.history, added...)
	return r.save(ctx, text, added)
}

func (r *repl) save(ctx context.Context, text string, msgs []cadagent.Message) error {
	store, err := r.app.sessions()
	if err != nil {
		return err
	}
	if r.session == nil {
		sess, err := store.Create(ctx, title(text))
		if err != nil {
			return err
		}
		r.session = &sess
	}
	return store.Append(ctx, r.session.ID, msgs...)
}

func title(text string) string {
	const maxTitle = 48
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > maxTitle {
		return string(r[:maxTitle]) + "…"
	}
	return text
}

func lastUserText(msgs []cadagent.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(cadagent.UserMessage); ok {
			return cadagent.JoinText(m.Parts)
		}
	}
	return ""
}
