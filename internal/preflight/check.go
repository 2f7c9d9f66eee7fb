// Package preflight validates the environment before the daemon or
// server starts: database reachability, the pgvector extension,
// migration state, provider endpoints, and process limits.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codemaphq/codemap/internal/config"
	"github.com/codemaphq/codemap/internal/embed"
	"github.com/codemaphq/codemap/internal/llm"
	"github.com/codemaphq/codemap/internal/store"
)

// CheckStatus is the result class of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the status label.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the preflight suite.
type Checker struct {
	store     *store.Store
	provider  embed.Provider
	completer llm.Completer
	cfg       *config.Config
	verbose   bool
	output    io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables detail lines in the printed report.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets the report writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// WithProvider sets the embedding provider to probe.
func WithProvider(p embed.Provider) Option {
	return func(c *Checker) { c.provider = p }
}

// WithCompleter sets the LLM backend to probe.
func WithCompleter(l llm.Completer) Option {
	return func(c *Checker) { c.completer = l }
}

// New creates a Checker. The store may be nil when only local checks
// are wanted.
func New(st *store.Store, cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{store: st, cfg: cfg, output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check and returns the results in report order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.CheckDatabase(ctx),
		c.CheckVectorExtension(ctx),
		c.CheckMigrations(ctx),
		c.CheckEmbeddingProvider(ctx),
		c.CheckLLMProvider(ctx),
		c.CheckDiskSpace(os.TempDir()),
		c.CheckFileDescriptors(),
	}
	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus classifies the whole run.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes the human-readable report.
func (c *Checker) PrintResults(results []CheckResult) {
	fmt.Fprintln(c.output, "codemap preflight")
	fmt.Fprintln(c.output, "=================")
	fmt.Fprintln(c.output)

	for _, r := range results {
		fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	fmt.Fprintln(c.output)
	fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errors []string
	for _, r := range results {
		if r.IsCritical() {
			errors = append(errors, r.Name+": "+r.Message)
		} else if r.Status == StatusWarn {
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}
	if len(errors) > 0 {
		fmt.Fprintf(c.output, "\n%d error(s):\n", len(errors))
		for _, e := range errors {
			fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}
	if len(warnings) > 0 {
		fmt.Fprintf(c.output, "\n%d warning(s):\n", len(warnings))
		for _, w := range warnings {
			fmt.Fprintf(c.output, "  - %s\n", w)
		}
	}
}
