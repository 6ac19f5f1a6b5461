package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finchley/agentgw/internal/upapi"
)

// Generator produces deliverable content for a job attempt. version starts
// at 1 and increments on each revision.
type Generator interface {
	Generate(ctx context.Context, job *upapi.JobDetail, version int) (filename string, content []byte, err error)
}

// MarkdownGenerator is the built-in generator. It renders a markdown
// summary of the work against the job brief. Real agent integrations
// replace it with their own Generator.
type MarkdownGenerator struct{}

func (MarkdownGenerator) Generate(_ context.Context, job *upapi.JobDetail, version int) (string, []byte, error) {
	if job == nil {
		return "", nil, fmt.Errorf("job detail is nil")
	}

	filename := "deliverable.md"
	if version > 1 {
		filename = fmt.Sprintf("deliverable_v%d.md", version)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Deliverable: %s\n\n", job.JobName)
	if version > 1 {
		fmt.Fprintf(&b, "Revision %d, incorporating requested changes.\n\n", version)
	}
	fmt.Fprintf(&b, "## Job brief\n\n%s\n\n", summarize(job.JobDescription))
	fmt.Fprintf(&b, "## Work summary\n\nCompleted against the brief above.\n\n")
	fmt.Fprintf(&b, "Generated %s\n", time.Now().UTC().Format(time.RFC3339))

	return filename, []byte(b.String()), nil
}

// summarize truncates long briefs so the deliverable stays readable.
func summarize(description string) string {
	const maxLen = 500
	description = strings.TrimSpace(description)
	if description == "" {
		return "(no description provided)"
	}
	if len(description) <= maxLen {
		return description
	}
	return description[:maxLen] + "..."
}
