// Package transcript writes dialog transcripts to disk in a machine-readable
// (JSON) and a human-readable (Markdown) form.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inspirepan/cadagent"
)

// TimeLayout qualifies exported file names.
const TimeLayout = "20060102_150405"

// Files are the paths written by Export.
type Files struct {
	JSON     string
	Markdown string
}

// maxSuffix bounds the numeric suffixes tried when a timestamped name is taken.
const maxSuffix = 1000

// Export writes msgs to <dir>/<prefix>_<timestamp>.json and .md, creating
// dir if needed. When that name is already taken, as with two exports in the
// same second, a numeric suffix is appended so no earlier transcript is
// overwritten.
func Export(dir, prefix string, msgs []cadagent.Message, now time.Time) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("transcript: create dir: %w", err)
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return Files{}, fmt.Errorf("transcript: encode: %w", err)
	}

	stem := filepath.Join(dir, fmt.Sprintf("%s_%s", prefix, now.Format(TimeLayout)))
	f, base, err := reserve(stem)
	if err != nil {
		return Files{}, err
	}
	files := Files{JSON: base + ".json", Markdown: base + ".md"}

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Files{}, fmt.Errorf("transcript: write json: %w", err)
	}
	if err := os.WriteFile(files.Markdown, []byte(Markdown(msgs)), 0o644); err != nil {
		return Files{}, fmt.Errorf("transcript: write markdown: %w", err)
	}
	return files, nil
}

// reserve exclusively creates the JSON file for the first free base name
// among stem, stem_1, stem_2, and so on.
func reserve(stem string) (*os.File, string, error) {
	for n := 0; n <= maxSuffix; n++ {
		base := stem
		if n > 0 {
			base = fmt.Sprintf("%s_%d", stem, n)
		}
		f, err := os.OpenFile(base+".json", os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return f, base, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("transcript: write json: %w", err)
		}
	}
	return nil, "", fmt.Errorf("transcript: no free name for %s", stem)
}

// Load reads a transcript previously written by Export.
func Load(path string) ([]cadagent.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cadagent.UnmarshalMessages(data)
}

// Markdown renders msgs with one heading per message.
func Markdown(msgs []cadagent.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		switch m := msg.(type) {
		case cadagent.SystemMessage:
			writeSection(&b, "System", m.Text)
		case cadagent.UserMessage:
			writeSection(&b, "User", partsText(m.Parts))
		case cadagent.AssistantMessage:
			body := m.Text()
			for _, call := range m.ToolCalls() {
				if body != "" {
					body += "\n\n"
				}
				body += fmt.Sprintf("Tool call `%s` (%s):\n\n```json\n%s\n```", call.Name, call.CallID, string(call.ArgsJSON))
			}
			writeSection(&b, "Assistant", body)
		case cadagent.ToolResultMessage:
			writeSection(&b, fmt.Sprintf("Tool `%s` (%s)", m.Name, m.CallID), "```json\n"+m.Content()+"\n```")
		}
	}
	return b.String()
}

func writeSection(b *strings.Builder, heading, body string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n---\n\n", heading, body)
}

func partsText(parts []cadagent.Part) string {
	var out []string
	for _, part := range parts {
		switch p := part.(type) {
		case cadagent.TextPart:
			out = append(out, p.Text)
		case cadagent.ImagePart:
			out = append(out, fmt.Sprintf("[image %s, %d base64 bytes]", p.MimeType, len(p.DataB64)))
		}
	}
	return strings.Join(out, "\n\n")
}
