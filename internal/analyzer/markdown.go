package analyzer

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders a Report as Markdown in a table-plus-summary
// shape.
func RenderMarkdown(r Report) string {
	var sb strings.Builder

	sb.WriteString("# Post-Rollback Analysis Report\n\n")
	sb.WriteString(fmt.Sprintf("Report ID: %s\n\n", r.ReportID))
	sb.WriteString(fmt.Sprintf("Execution ID: %s | Deployment: %s | Generated: %s\n\n", r.ExecutionID, r.DeploymentID, r.GeneratedAt))

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- Rollback duration: %s\n", r.RollbackDuration))
	sb.WriteString(fmt.Sprintf("- Estimated loss: %s\n", r.EstimatedLoss.String()))
	sb.WriteString(fmt.Sprintf("- Actual loss: %s (%.1f%% accuracy)\n", r.ActualLoss.String(), r.AccuracyPercent))
	sb.WriteString(fmt.Sprintf("- Rollback efficiency score: %.1f\n", r.EfficiencyScore))
	sb.WriteString(fmt.Sprintf("- Compliance score: %.1f\n\n", r.ComplianceScore))

	sb.WriteString("## Findings\n\n")
	sb.WriteString("| # | Category | Severity | Title |\n")
	sb.WriteString("|---|----------|----------|-------|\n")
	for i, f := range r.Findings {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s |\n", i+1, f.Category, f.Severity, f.Title))
	}
	sb.WriteString("\n")

	for _, f := range r.Findings {
		sb.WriteString(fmt.Sprintf("### %s\n\n%s\n\n", f.Title, f.Description))
		for _, rec := range f.Recommendations {
			sb.WriteString(fmt.Sprintf("- %s\n", rec))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Top Recommendations\n\n")
	for i, rec := range r.Recommendations {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, rec))
	}

	return sb.String()
}
