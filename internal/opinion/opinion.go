// Package opinion produces the narrative audit opinion by shelling out to
// a configurable text generator (ollama by default). The generator is
// strictly best-effort: any failure or timeout degrades to a placeholder
// string and never fails the audit.
package opinion

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Generator invokes the external opinion command.
type Generator struct {
	command []string
	timeout time.Duration
}

// NewGenerator builds a generator from config. An empty command disables
// generation entirely; Generate then returns the unavailable placeholder.
func NewGenerator(cfg domain.OpinionConfig) *Generator {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Generator{
		command: cfg.Command,
		timeout: timeout,
	}
}

// BuildPrompt renders the senior-CPA prompt from the audit summary,
// headline ratios and triggered findings. Ratio keys are sorted so the
// prompt is deterministic for a given audit.
func BuildPrompt(summary string, ratios map[string]float64, findings []domain.Finding, jurisdiction string) string {
	ruleIDs := make([]string, 0, len(findings))
	for _, f := range findings {
		ruleIDs = append(ruleIDs, f.RuleID)
	}
	comp := strings.Join(ruleIDs, "; ")
	if comp == "" {
		comp = "None"
	}

	keys := make([]string, 0, len(ratios))
	for k := range ratios {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.2f", k, ratios[k]))
	}

	var b strings.Builder
	b.WriteString("You are a senior CPA. Based on this summary, ratios and compliance flags, ")
	b.WriteString("write an executive audit opinion with 3 risks and 3 actionable suggestions.\n")
	fmt.Fprintf(&b, "SUMMARY: %s\n", summary)
	fmt.Fprintf(&b, "RATIOS: %s\n", strings.Join(parts, ", "))
	fmt.Fprintf(&b, "COMPLIANCE: %s", comp)
	if jurisdiction != "" {
		fmt.Fprintf(&b, "\nJURISDICTION: %s", jurisdiction)
	}
	return b.String()
}

// Generate runs the configured command with the prompt appended as its
// final argument and returns the trimmed stdout. On any failure it returns
// the placeholder string and nil; the caller never has to branch.
func (g *Generator) Generate(ctx context.Context, prompt string) string {
	if len(g.command) == 0 {
		return unavailable(fmt.Errorf("no generator command configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	args := append(append([]string{}, g.command[1:]...), prompt)
	cmd := exec.CommandContext(ctx, g.command[0], args...)

	out, err := cmd.Output()
	if err != nil {
		slog.Warn("opinion generator failed",
			"command", g.command[0],
			"error", err,
		)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return unavailable(err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return unavailable(fmt.Errorf("generator produced no output"))
	}
	return text
}

func unavailable(err error) string {
	return fmt.Sprintf("[opinion unavailable] %v", err)
}
