// Package output renders run results and intel for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/streamwatch/radar/internal/storage"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// RunResult summarizes one collection run for display.
type RunResult struct {
	RunID     int64    `json:"run_id"`
	Status    string   `json:"status"`
	Fetched   int      `json:"fetched"`
	Inserted  int      `json:"inserted"`
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Merged    int      `json:"merged"`
	Skipped   int      `json:"skipped"`
	Degraded  bool     `json:"degraded,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// OutputRunResult outputs the run result in the configured format
func (f *Formatter) OutputRunResult(result *RunResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "run_id=%d\n", result.RunID)
		fmt.Fprintf(f.out, "status=%s\n", result.Status)
		fmt.Fprintf(f.out, "fetched=%d\n", result.Fetched)
		fmt.Fprintf(f.out, "inserted=%d\n", result.Inserted)
		fmt.Fprintf(f.out, "processed=%d\n", result.Processed)
		fmt.Fprintf(f.out, "created=%d\n", result.Created)
		fmt.Fprintf(f.out, "merged=%d\n", result.Merged)
		fmt.Fprintf(f.out, "skipped=%d\n", result.Skipped)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Run %d %s\n", result.RunID, result.Status)
		fmt.Fprintf(f.out, "Fetched %d articles, %d new\n", result.Fetched, result.Inserted)
		fmt.Fprintf(f.out, "Created %d intel items, merged %d duplicates\n", result.Created, result.Merged)
		if result.Skipped > 0 {
			fmt.Fprintf(f.out, "Skipped %d articles\n", result.Skipped)
		}
		if result.Degraded {
			fmt.Fprintln(f.out, "⚠ Embeddings unavailable, ran in fingerprint-only mode")
		}
		for _, e := range result.Errors {
			fmt.Fprintf(f.err, "error: %s\n", e)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputIntelList outputs a list of intel items
func (f *Formatter) OutputIntelList(items []storage.IntelItem) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(items)
	case FormatText:
		for _, item := range items {
			fmt.Fprintf(f.out, "id=%d\tcompetitor=%s\tcategory=%s\timpact=%.1f\tnovelty=%.2f\tsources=%d\n",
				item.ID, item.CompetitorID, item.Category, item.ImpactScore, item.NoveltyScore, item.SourceCount)
		}
		return nil
	case FormatHuman:
		if len(items) == 0 {
			fmt.Fprintln(f.out, "No intel items")
			return nil
		}
		fmt.Fprintf(f.out, "Intel items (%d):\n\n", len(items))
		for _, item := range items {
			fmt.Fprintf(f.out, "ID: %d\n", item.ID)
			fmt.Fprintf(f.out, "Competitor: %s\n", item.CompetitorID)
			fmt.Fprintf(f.out, "Category: %s\n", item.Category)
			fmt.Fprintf(f.out, "Impact: %.1f  Relevance: %.1f  Novelty: %.2f\n",
				item.ImpactScore, item.RelevanceScore, item.NoveltyScore)
			fmt.Fprintf(f.out, "Sources: %d\n", item.SourceCount)
			fmt.Fprintf(f.out, "Summary: %s\n", item.Summary)
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Briefing renders a markdown competitive briefing from intel items and their
// annotations, grouped by competitor, highest impact first within each group.
func Briefing(items []storage.IntelItem, annotations map[int64][]storage.Annotation, generatedAt time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Competitive Briefing — %s\n\n", generatedAt.Format("2006-01-02"))
	if len(items) == 0 {
		b.WriteString("No intelligence collected in this window.\n")
		return b.String()
	}

	byCompetitor := make(map[string][]storage.IntelItem)
	var order []string
	for _, item := range items {
		if _, seen := byCompetitor[item.CompetitorID]; !seen {
			order = append(order, item.CompetitorID)
		}
		byCompetitor[item.CompetitorID] = append(byCompetitor[item.CompetitorID], item)
	}

	for _, competitor := range order {
		fmt.Fprintf(&b, "## %s\n\n", competitor)
		for _, item := range byCompetitor[competitor] {
			fmt.Fprintf(&b, "### %s (impact %.1f, novelty %.2f)\n\n", item.Category, item.ImpactScore, item.NoveltyScore)
			fmt.Fprintf(&b, "%s\n\n", item.Summary)
			if item.SourceCount > 1 {
				fmt.Fprintf(&b, "Reported by %d sources:\n", item.SourceCount)
			} else {
				b.WriteString("Source:\n")
			}
			for _, u := range item.RelatedURLs {
				fmt.Fprintf(&b, "- %s\n", u)
			}
			b.WriteString("\n")

			for _, a := range annotations[item.ID] {
				fmt.Fprintf(&b, "> **%s** [%s/%s]: %s", a.AgentRole, a.RiskOpportunity, a.Priority, a.SoWhat)
				if a.SuggestedAction != "" {
					fmt.Fprintf(&b, " _Action: %s_", a.SuggestedAction)
				}
				b.WriteString("\n")
			}
			if len(annotations[item.ID]) > 0 {
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}
