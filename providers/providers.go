// Package providers selects a completion provider by name.
package providers

import (
	"fmt"
	"strings"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/providers/anthropic"
	"github.com/inspirepan/cadagent/providers/base"
	"github.com/inspirepan/cadagent/providers/chatcompletion"
	"github.com/inspirepan/cadagent/providers/google"
)

// Names lists the accepted provider names.
var Names = []string{"openai", "anthropic", "google"}

// New builds the named provider from a shared base config. "chatcompletion"
// is accepted as an alias for "openai" and "gemini" for "google".
func New(name, model string, cfg base.Config) (cadagent.Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("providers: model is required for %q", name)
	}
	switch strings.ToLower(name) {
	case "openai", "chatcompletion":
		opts := []chatcompletion.Option{func(c *chatcompletion.Config) { c.Config = cfg }}
		return chatcompletion.New(model, opts...), nil
	case "anthropic":
		opts := []anthropic.Option{func(c *anthropic.Config) { c.Config = cfg }}
		return anthropic.New(model, opts...), nil
	case "google", "gemini":
		opts := []google.Option{func(c *google.Config) { c.Config = cfg }}
		return google.New(model, opts...), nil
	default:
		return nil, fmt.Errorf("providers: unknown provider %q (want one of %s)", name, strings.Join(Names, ", "))
	}
}
