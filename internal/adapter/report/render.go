package report

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"github.com/Jim-purch/jim-resume/internal/domain"
)

// Renderers are pure, stateless transforms of the compiled report, so all
// formats of a single run carry exactly the same information.

// RenderJSON is the structured rendering.
func RenderJSON(r *domain.Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// RenderMarkdown is the lightweight-markup rendering.
func RenderMarkdown(r *domain.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Portfolio Analysis Report\n\n")
	fmt.Fprintf(&b, "**Generated**: %s  \n", r.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "**Run**: %s\n\n", r.RunID)

	fmt.Fprintf(&b, "## Overview\n\n")
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Total projects | **%d** |\n", r.Stats.TotalProjects)
	fmt.Fprintf(&b, "| Recently updated | **%d** |\n", r.Stats.RecentUpdates)
	fmt.Fprintf(&b, "| Significant | **%d** |\n", r.Stats.SignificantUpdates)
	fmt.Fprintf(&b, "| AI-assisted | **%d** |\n", r.Stats.AIProjects)
	fmt.Fprintf(&b, "| Avg complexity | **%.2f** |\n\n", r.Stats.AvgComplexity)

	feat := r.FeaturedEntries()
	if len(feat) > 0 {
		fmt.Fprintf(&b, "## Featured Projects\n\n")
		for i, e := range feat {
			badge := ""
			if e.Analysis.AICollaboration {
				badge += " [AI]"
			}
			if e.Repo.IsPrivate {
				badge += " [private]"
			}
			fmt.Fprintf(&b, "### %d. %s%s\n\n", i+1, e.Repo.FullName, badge)
			fmt.Fprintf(&b, "**Type**: %s  \n", e.Analysis.ProjectType)
			fmt.Fprintf(&b, "**Complexity**: %.2f | **Business value**: %.2f | **Combined**: %.2f  \n",
				e.Analysis.Complexity, e.Analysis.BusinessValue, e.Analysis.CombinedScore)
			fmt.Fprintf(&b, "**Estimated effort**: %s\n\n", e.Analysis.EstimatedEffort)
			if e.Repo.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", e.Repo.Description)
			}
			if len(e.Analysis.TechStack) > 0 {
				fmt.Fprintf(&b, "**Tech stack**: %s\n\n", strings.Join(e.Analysis.TechStack, ", "))
			}
			if len(e.Analysis.KeyFeatures) > 0 {
				fmt.Fprintf(&b, "**Key features**:\n")
				for _, f := range e.Analysis.KeyFeatures {
					fmt.Fprintf(&b, "- %s\n", f)
				}
				b.WriteString("\n")
			}
			if len(e.Analysis.RoleSuggestions) > 0 {
				fmt.Fprintf(&b, "**Suggested roles**: %s\n\n", strings.Join(e.Analysis.RoleSuggestions, ", "))
			}
			b.WriteString("---\n\n")
		}
	}

	if len(r.Delta.Added)+len(r.Delta.Changed)+len(r.Delta.Removed) > 0 {
		fmt.Fprintf(&b, "## Changes Since Last Run\n\n")
		for _, name := range r.Delta.Added {
			fmt.Fprintf(&b, "- **%s**: new\n", name)
		}
		for _, c := range r.Delta.Changed {
			fmt.Fprintf(&b, "- **%s**: %s (%.2f -> %.2f)\n", c.FullName, c.Reason, c.PrevScore, c.NewScore)
		}
		for _, name := range r.Delta.Removed {
			fmt.Fprintf(&b, "- **%s**: removed\n", name)
		}
		b.WriteString("\n")
	}

	if len(r.SkillMatrix) > 0 && r.Stats.TotalProjects > 0 {
		fmt.Fprintf(&b, "## Skill Matrix\n\n")
		fmt.Fprintf(&b, "| Skill | Projects |\n|---|---|\n")
		for _, skill := range sortedSkills(r.SkillMatrix) {
			fmt.Fprintf(&b, "| %s | %d |\n", skill, r.SkillMatrix[skill])
		}
		b.WriteString("\n")
	}

	if len(r.Suggestions) > 0 {
		fmt.Fprintf(&b, "## Update Suggestions\n\n")
		for i, s := range r.Suggestions {
			fmt.Fprintf(&b, "%d. **%s**\n", i+1, s)
		}
		b.WriteString("\n")
	}

	if len(r.Recommendations) > 0 {
		fmt.Fprintf(&b, "## Recommendations\n\n")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
		b.WriteString("\n")
	}

	if len(r.Stats.Languages) > 0 {
		fmt.Fprintf(&b, "## Statistics\n\n### Languages\n\n")
		for _, lang := range sortedSkills(r.Stats.Languages) {
			count := r.Stats.Languages[lang]
			fmt.Fprintf(&b, "- **%s**: %d (%.1f%%)\n", lang, count,
				float64(count)/float64(r.Stats.TotalProjects)*100)
		}
		b.WriteString("\n### Project types\n\n")
		for _, pt := range sortedSkills(r.Stats.ProjectTypes) {
			fmt.Fprintf(&b, "- **%s**: %d\n", pt, r.Stats.ProjectTypes[pt])
		}
		b.WriteString("\n")
	}

	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, "## Skipped Repositories\n\n")
		for _, s := range r.Skipped {
			fmt.Fprintf(&b, "- **%s**: %s\n", s.FullName, s.Reason)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderHTML wraps the report in a self-contained HTML document for
// mail clients: a header, the headline statistics as cards, and the
// full markup body preformatted underneath.
func RenderHTML(r *domain.Report) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<title>Portfolio Analysis Report</title>\n")
	b.WriteString(`<style>
body { font-family: -apple-system, 'Segoe UI', sans-serif; line-height: 1.6; color: #333; max-width: 960px; margin: 0 auto; padding: 20px; }
.header { background: #24292f; color: white; padding: 24px; border-radius: 8px; }
.stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 16px; margin: 24px 0; }
.stat-card { background: #f6f8fa; padding: 16px; border-radius: 8px; text-align: center; }
.stat-number { font-size: 1.8em; font-weight: bold; color: #0969da; }
pre.report { white-space: pre-wrap; font-family: inherit; }
</style>
`)
	b.WriteString("</head>\n<body>\n")

	fmt.Fprintf(&b, "<div class=\"header\">\n<h1>Portfolio Analysis Report</h1>\n<p>%s | run %s</p>\n</div>\n",
		r.GeneratedAt.Format("2006-01-02 15:04 MST"), html.EscapeString(r.RunID))

	b.WriteString("<div class=\"stats\">\n")
	statCard(&b, fmt.Sprintf("%d", r.Stats.TotalProjects), "Total projects")
	statCard(&b, fmt.Sprintf("%d", r.Stats.RecentUpdates), "Recently updated")
	statCard(&b, fmt.Sprintf("%d", r.Stats.AIProjects), "AI-assisted")
	statCard(&b, fmt.Sprintf("%.2f", r.Stats.AvgComplexity), "Avg complexity")
	b.WriteString("</div>\n")

	fmt.Fprintf(&b, "<pre class=\"report\">%s</pre>\n", html.EscapeString(RenderMarkdown(r)))
	b.WriteString("</body>\n</html>\n")

	return b.String()
}

func statCard(b *strings.Builder, number, label string) {
	fmt.Fprintf(b, "<div class=\"stat-card\"><div class=\"stat-number\">%s</div><div>%s</div></div>\n", number, label)
}

var (
	mdHeading = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	mdBold    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	mdItalic  = regexp.MustCompile(`\*(.*?)\*`)
	mdLink    = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
	mdCode    = regexp.MustCompile("`(.*?)`")
)

// RenderText is the long-form plain rendering: the markup with the
// formatting stripped, so it stays informationally identical.
func RenderText(r *domain.Report) string {
	text := RenderMarkdown(r)
	text = mdHeading.ReplaceAllString(text, "")
	text = mdBold.ReplaceAllString(text, "$1")
	text = mdItalic.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdCode.ReplaceAllString(text, "$1")
	return text
}

// sortedSkills orders map keys by count descending, then name ascending,
// so renderings stay deterministic.
func sortedSkills(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
