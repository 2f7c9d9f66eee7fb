package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/codemaphq/codemap/internal/search"
	"github.com/codemaphq/codemap/internal/service"
	"github.com/codemaphq/codemap/internal/store"
)

// Renderer writes human-readable reports for the CLI.
type Renderer struct {
	w      io.Writer
	styles Styles
}

// NewRenderer builds a renderer that auto-detects terminal styling.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, styles: StylesFor(w)}
}

func (r *Renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.w, format, args...)
}

// Repos renders the registry listing.
func (r *Renderer) Repos(repos []*store.Repo) {
	if len(repos) == 0 {
		r.printf("%s\n", r.styles.Dim.Render("no repositories registered"))
		return
	}
	r.printf("%s\n", r.styles.Header.Render("REPOSITORIES"))
	for _, repo := range repos {
		state := r.styles.Success.Render("enabled")
		if !repo.Enabled {
			state = r.styles.Dim.Render("disabled")
		}
		indexed := "never"
		if repo.LastIndexedAt != nil {
			indexed = humanAge(*repo.LastIndexedAt)
		}
		r.printf("  %s  %s\n", r.styles.Value.Render(repo.Name), state)
		r.printf("    %s %s\n", r.styles.Label.Render("root:"), repo.RootPath)
		r.printf("    %s %d files, %d chunks, indexed %s\n",
			r.styles.Label.Render("index:"), repo.FileCount, repo.ChunkCount, indexed)
	}
}

// SearchResults renders a hybrid search response with per-leg ranks so
// users can see why each hit scored the way it did.
func (r *Renderer) SearchResults(repo string, resp *search.Response) {
	header := fmt.Sprintf("RESULTS (%s)", repo)
	r.printf("%s\n", r.styles.Header.Render(header))
	if resp.Degraded {
		r.printf("%s\n", r.styles.Warning.Render("  degraded: text-only ranking, embedding provider unavailable"))
	}
	if len(resp.Results) == 0 {
		r.printf("%s\n", r.styles.Dim.Render("  no matches"))
		return
	}
	for i, res := range resp.Results {
		loc := fmt.Sprintf("%s:%d-%d", res.Path, res.StartLine, res.EndLine)
		r.printf("%2d. %s  %s\n", i+1,
			r.styles.Value.Render(loc),
			r.styles.Score.Render(fmt.Sprintf("%.3f", res.FinalScore)))
		if res.SymbolFQN != "" {
			r.printf("    %s %s\n", r.styles.Label.Render("symbol:"), res.SymbolFQN)
		}
		r.printf("    %s %s\n", r.styles.Label.Render("why:"), explain(res))
		snippet := res.Snippet
		if idx := strings.IndexByte(snippet, '\n'); idx >= 0 {
			snippet = snippet[:idx]
		}
		if len(snippet) > 120 {
			snippet = snippet[:120] + "…"
		}
		r.printf("    %s\n", r.styles.Dim.Render(snippet))
	}
	r.printf("%s\n", r.styles.Dim.Render(fmt.Sprintf("  %d results in %dms", len(resp.Results), resp.TookMS)))
}

// explain summarizes which legs contributed to a result.
func explain(res search.Result) string {
	var parts []string
	if res.VecRank > 0 {
		parts = append(parts, fmt.Sprintf("vector #%d", res.VecRank))
	}
	if res.FTSRank > 0 {
		parts = append(parts, fmt.Sprintf("text #%d", res.FTSRank))
	}
	if len(res.MatchedTags) > 0 {
		parts = append(parts, "tags "+strings.Join(res.MatchedTags, ","))
	}
	if len(parts) == 0 {
		return "no leg matched"
	}
	return strings.Join(parts, ", ")
}

// Jobs renders queue rows.
func (r *Renderer) Jobs(jobs []*store.Job) {
	if len(jobs) == 0 {
		r.printf("%s\n", r.styles.Dim.Render("no jobs"))
		return
	}
	r.printf("%s\n", r.styles.Header.Render("JOBS"))
	for _, job := range jobs {
		status := r.styles.Value.Render(string(job.Status))
		switch job.Status {
		case store.JobDone:
			status = r.styles.Success.Render(string(job.Status))
		case store.JobFailed:
			status = r.styles.Error.Render(string(job.Status))
		case store.JobCancelled:
			status = r.styles.Warning.Render(string(job.Status))
		}
		r.printf("  %s  %-18s %-12s %s\n",
			r.styles.Dim.Render(job.ID.String()[:8]),
			string(job.Type), job.RepoName, status)
		if job.LastError != nil && *job.LastError != "" {
			r.printf("    %s %s\n", r.styles.Error.Render("error:"), *job.LastError)
		}
	}
}

// Status renders the full deployment status report.
func (r *Renderer) Status(overview []service.RepoOverview, daemons []*store.Daemon, jobs map[store.JobStatus]int) {
	r.printf("%s\n", r.styles.Header.Render("DAEMONS"))
	if len(daemons) == 0 {
		r.printf("  %s\n", r.styles.Warning.Render("none running"))
	}
	for _, d := range daemons {
		state := r.styles.Success.Render(d.Status)
		if d.Status != "running" {
			state = r.styles.Dim.Render(d.Status)
		}
		r.printf("  %s on %s  %s  heartbeat %s\n",
			r.styles.Value.Render(d.InstanceID), d.Hostname, state, humanAge(d.LastHeartbeat))
	}

	r.printf("%s\n", r.styles.Header.Render("QUEUE"))
	for _, status := range []store.JobStatus{store.JobPending, store.JobClaimed, store.JobDone, store.JobFailed, store.JobCancelled} {
		if n := jobs[status]; n > 0 {
			r.printf("  %-10s %d\n", string(status), n)
		}
	}

	r.printf("%s\n", r.styles.Header.Render("REPOSITORIES"))
	for _, entry := range overview {
		r.printf("  %s\n", r.styles.Value.Render(entry.Repo.Name))
		if entry.Stats != nil {
			r.printf("    %s %d files, %d symbols, %d chunks (%d embedded), %d/%d edges resolved\n",
				r.styles.Label.Render("index:"),
				entry.Stats.Files, entry.Stats.Symbols, entry.Stats.Chunks,
				entry.Stats.ChunkEmbeddings, entry.Stats.ResolvedEdges, entry.Stats.Edges)
		}
		if entry.Summary != "" {
			r.printf("    %s %s\n", r.styles.Label.Render("about:"), firstLine(entry.Summary))
		}
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// humanAge formats a timestamp as a relative age.
func humanAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
