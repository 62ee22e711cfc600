package ui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/numberone-ai/previewctl/internal/models"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Format is an inspect-preview output format
type Format string

const (
	FormatTerminal Format = "terminal"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// Formats lists the accepted output formats
var Formats = []Format{FormatTerminal, FormatJSON, FormatMarkdown, FormatYAML}

// ParseFormat validates a --format value
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", &models.ValidationError{Field: "format", Value: s, Reason: "must be terminal, json, markdown or yaml"}
}

const dateLayout = "2006-01-02 15:04 MST"

// RenderReport renders an inspection report in format
func RenderReport(r models.PreviewReport, format Format) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatMarkdown:
		return reportMarkdown(r), nil
	default:
		return reportTerminal(r), nil
	}
}

func reportTerminal(r models.PreviewReport) string {
	var b strings.Builder
	b.WriteString(SectionHeader("PREVIEW "+string(r.ID), ColorCyan) + "\n")
	b.WriteString(KeyValue("tag", r.ID.TagName()) + "\n")
	b.WriteString(KeyValue("branch", r.ID.BranchName()) + "\n")
	b.WriteString(KeyValue("generated", r.GeneratedAt.Format(dateLayout)) + "\n\n")

	b.WriteString(SectionHeader("REPOSITORIES", ColorMagenta) + "\n")
	for _, repo := range r.Repos {
		b.WriteString("  " + lipgloss.NewStyle().Bold(true).Render(repo.Repo.Name) +
			Colored(" ("+string(repo.Repo.Role)+")", ColorDarkGray) + "\n")
		b.WriteString(KeyValue("tag", tagText(repo.Tag)) + "\n")
		b.WriteString(KeyValue("branch", branchText(repo.Branch)) + "\n")
		b.WriteString(KeyValue("pr", prText(repo.PR)) + "\n")
	}
	b.WriteString("\n")

	d := r.Deployment
	b.WriteString(SectionHeader("DEPLOYMENT", ColorBlue) + "\n")
	app := d.App
	if d.InfraPR > 0 {
		app += fmt.Sprintf(" (infra PR #%d)", d.InfraPR)
	}
	b.WriteString(KeyValue("app", app) + "\n")
	switch {
	case d.Unavailable != "":
		b.WriteString(KeyValue("status", Colored("unavailable: "+d.Unavailable, ColorYellow)) + "\n")
	case !d.Exists:
		b.WriteString(KeyValue("status", Colored("not found", ColorDarkGray)) + "\n")
	default:
		b.WriteString(KeyValue("health", Colored(string(d.Status.Health), HealthColor(d.Status.Health))) + "\n")
		b.WriteString(KeyValue("sync", Colored(string(d.Status.Sync), SyncColor(d.Status.Sync))) + "\n")
		if d.Status.Message != "" {
			b.WriteString(KeyValue("message", d.Status.Message) + "\n")
		}
	}
	if d.URL != "" {
		b.WriteString(KeyValue("url", Colored(d.URL, ColorCyan)) + "\n")
	}
	b.WriteString("\n")

	rec := r.Recommendation
	color := VerdictColor(rec.Verdict)
	b.WriteString(SectionHeader("RECOMMENDATION", color) + "\n")
	b.WriteString(KeyValue("verdict", lipgloss.NewStyle().Foreground(color).Bold(true).Render(string(rec.Verdict))) + "\n")
	for _, a := range rec.Artifacts {
		b.WriteString("      • " + a + "\n")
	}
	b.WriteString(KeyValue("action", rec.Action) + "\n")
	return b.String()
}

func tagText(t models.TagState) string {
	switch {
	case t.Unavailable != "":
		return Colored("unavailable: "+t.Unavailable, ColorYellow)
	case !t.Exists:
		return Colored("not found", ColorDarkGray)
	}
	s := Colored("exists", ColorGreen) + " @ " + models.ShortSHA(t.Commit)
	if t.Date != nil {
		s += " (" + t.Date.Format(dateLayout) + ")"
	}
	return s
}

func branchText(b models.BranchState) string {
	switch {
	case b.Unavailable != "":
		return Colored("unavailable: "+b.Unavailable, ColorYellow)
	case !b.Exists():
		return Colored("not found", ColorDarkGray)
	}
	return Colored(string(b.Location), ColorGreen)
}

func prText(p models.PRLookup) string {
	switch {
	case p.Unavailable != "":
		return Colored("unavailable: "+p.Unavailable, ColorYellow)
	case p.PR == nil:
		return Colored("none", ColorDarkGray)
	}
	color := ColorGreen
	if p.PR.IsFinished() {
		color = ColorDarkGray
	}
	return fmt.Sprintf("#%d %s %s", p.PR.Number, Colored(string(p.PR.State), color), p.PR.URL)
}

func reportMarkdown(r models.PreviewReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Preview `%s`\n\n", r.ID)
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.Format(time.RFC3339))
	b.WriteString("## Repositories\n\n")
	b.WriteString("| Repo | Tag | Branch | PR |\n|---|---|---|---|\n")
	for _, repo := range r.Repos {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", repo.Repo.Name,
			mdTag(repo.Tag), mdBranch(repo.Branch), mdPR(repo.PR))
	}

	d := r.Deployment
	b.WriteString("\n## Deployment\n\n")
	fmt.Fprintf(&b, "- Application: `%s`\n", d.App)
	switch {
	case d.Unavailable != "":
		fmt.Fprintf(&b, "- Status: unavailable (%s)\n", d.Unavailable)
	case !d.Exists:
		b.WriteString("- Status: not found\n")
	default:
		fmt.Fprintf(&b, "- Health: %s\n- Sync: %s\n", d.Status.Health, d.Status.Sync)
	}
	if d.URL != "" {
		fmt.Fprintf(&b, "- URL: %s\n", d.URL)
	}

	rec := r.Recommendation
	fmt.Fprintf(&b, "\n## Recommendation: %s\n\n", rec.Verdict)
	for _, a := range rec.Artifacts {
		fmt.Fprintf(&b, "- %s\n", a)
	}
	if len(rec.Artifacts) > 0 {
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "`%s`\n", rec.Action)
	return b.String()
}

func mdTag(t models.TagState) string {
	switch {
	case t.Unavailable != "":
		return "unavailable"
	case !t.Exists:
		return "—"
	}
	return "`" + models.ShortSHA(t.Commit) + "`"
}

func mdBranch(b models.BranchState) string {
	switch {
	case b.Unavailable != "":
		return "unavailable"
	case !b.Exists():
		return "—"
	}
	return string(b.Location)
}

func mdPR(p models.PRLookup) string {
	switch {
	case p.Unavailable != "":
		return "unavailable"
	case p.PR == nil:
		return "—"
	}
	return fmt.Sprintf("[#%d](%s) %s", p.PR.Number, p.PR.URL, p.PR.State)
}

// RenderTagBatch renders create-preview results with hints and the summary line
func RenderTagBatch(id models.PreviewID, batch models.TagBatch) string {
	var b strings.Builder
	b.WriteString(SectionHeader("TAG "+id.TagName(), ColorCyan) + "\n")
	for _, res := range batch {
		var detail string
		switch res.Status {
		case models.TagCreated:
			detail = models.ShortSHA(res.Record.Commit)
			if res.Record.Pushed {
				detail += " pushed"
			} else {
				detail += " local only (--no-push)"
			}
			if res.Record.Forced {
				detail += ", forced"
			}
		default:
			detail = res.Reason
		}
		b.WriteString(StatusLine(string(res.Status), res.Repo, detail) + "\n")
		if res.Hint != "" {
			b.WriteString(Hint(res.Hint) + "\n")
		}
	}
	color := ColorGreen
	if !batch.OK() {
		color = ColorRed
	}
	b.WriteString("\n  " + lipgloss.NewStyle().Foreground(color).Bold(true).Render(batch.Summary()) + "\n")
	return b.String()
}

// RenderCleanup renders delete-preview results
func RenderCleanup(r models.CleanupReport) string {
	var b strings.Builder
	title := "DELETE " + string(r.ID)
	if r.DryRun {
		title += " (dry run)"
	}
	b.WriteString(SectionHeader(title, ColorRed) + "\n")
	for _, res := range r.Results {
		b.WriteString(StatusLine(string(res.Status), res.Target, res.Detail) + "\n")
	}
	if r.Failed() > 0 {
		b.WriteString("\n  " + Colored(fmt.Sprintf("%d of %d targets failed", r.Failed(), len(r.Results)), ColorRed) + "\n")
	}
	return b.String()
}

// RenderStatus renders a single deployment observation
func RenderStatus(s models.DeploymentStatus, url string) string {
	var b strings.Builder
	b.WriteString(SectionHeader("APP "+s.App, ColorBlue) + "\n")
	b.WriteString(KeyValue("health", Colored(string(s.Health), HealthColor(s.Health))) + "\n")
	b.WriteString(KeyValue("sync", Colored(string(s.Sync), SyncColor(s.Sync))) + "\n")
	if s.Revision != "" {
		b.WriteString(KeyValue("revision", models.ShortSHA(s.Revision)) + "\n")
	}
	if s.Message != "" {
		b.WriteString(KeyValue("message", s.Message) + "\n")
	}
	if url != "" {
		b.WriteString(KeyValue("url", Colored(url, ColorCyan)) + "\n")
	}
	return b.String()
}
