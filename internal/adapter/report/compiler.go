// Package report compiles per-repository analyses into the portfolio
// report and renders it. Compilation is deterministic: the same entries,
// prior report and configuration always produce the same structured
// output apart from the run timestamp.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
)

// complexityBucketWidth partitions [0,1] into buckets; moving between
// buckets between two runs counts as a significant change.
const complexityBucketWidth = 0.25

// Compile builds the run's report. prior may be nil for the first run;
// when present the delta between the two runs is computed and recorded
// whether or not a notification later goes out.
func Compile(entries []domain.ReportEntry, prior *domain.Report, cfg config.Config, now time.Time) *domain.Report {
	ranked := make([]domain.ReportEntry, len(entries))
	copy(ranked, entries)
	rank(ranked)

	r := &domain.Report{
		RunID:       "run-" + now.UTC().Format("20060102-150405"),
		GeneratedAt: now.UTC(),
		Entries:     ranked,
		Outcome:     domain.OutcomeSuccess,
	}

	r.Stats = stats(ranked, cfg, now)
	r.Featured = featured(ranked, cfg.Report.FeaturedCount)
	r.SkillMatrix = skillMatrix(ranked)
	r.Delta = delta(ranked, prior, cfg.Thresholds)
	r.Suggestions = suggestions(ranked, cfg, now)
	r.Recommendations = recommendations(ranked)

	return r
}

// rank orders entries by combined score descending, then most recent push
// first, then name ascending. Fully deterministic.
func rank(entries []domain.ReportEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Analysis.CombinedScore != b.Analysis.CombinedScore {
			return a.Analysis.CombinedScore > b.Analysis.CombinedScore
		}
		if !a.Repo.PushedAt.Equal(b.Repo.PushedAt) {
			return a.Repo.PushedAt.After(b.Repo.PushedAt)
		}
		return a.Repo.FullName < b.Repo.FullName
	})
}

func stats(entries []domain.ReportEntry, cfg config.Config, now time.Time) domain.ReportStats {
	s := domain.ReportStats{
		TotalProjects: len(entries),
		Languages:     map[string]int{},
		ProjectTypes:  map[string]int{},
	}

	cutoff := now.AddDate(0, 0, -cfg.Report.RecentWindowDays)
	sum := 0.0
	for _, e := range entries {
		sum += e.Analysis.Complexity
		if e.Analysis.AICollaboration {
			s.AIProjects++
		}
		if e.Repo.PushedAt.After(cutoff) {
			s.RecentUpdates++
		}
		if e.Analysis.CombinedScore >= cfg.Thresholds.SignificantChange {
			s.SignificantUpdates++
		}
		if e.Repo.Language != "" {
			s.Languages[e.Repo.Language]++
		}
		s.ProjectTypes[e.Analysis.ProjectType]++
	}
	if len(entries) > 0 {
		s.AvgComplexity = sum / float64(len(entries))
	}
	return s
}

// featured picks the top-K names from the already ranked entries.
func featured(entries []domain.ReportEntry, k int) []string {
	if k <= 0 {
		k = config.Default().Report.FeaturedCount
	}
	if k > len(entries) {
		k = len(entries)
	}
	names := make([]string, 0, k)
	for _, e := range entries[:k] {
		names = append(names, e.Repo.FullName)
	}
	return names
}

// skillMatrix counts how often each skill or role shows up across the
// portfolio.
func skillMatrix(entries []domain.ReportEntry) map[string]int {
	matrix := map[string]int{}
	for _, e := range entries {
		for _, skill := range e.Analysis.TechStack {
			matrix[skill]++
		}
		if e.Analysis.AICollaboration {
			matrix["AI Collaboration"]++
		}
		for _, role := range e.Analysis.RoleSuggestions {
			matrix[role]++
		}
	}
	return matrix
}

func complexityBucket(score float64) int {
	return int(math.Floor(score / complexityBucketWidth))
}

// delta computes added/removed/changed between this run and the prior
// report. A repository counts as changed when its combined score crosses
// the high-value or significant threshold upward, or moves between
// complexity buckets.
func delta(entries []domain.ReportEntry, prior *domain.Report, th config.Thresholds) domain.Delta {
	d := domain.Delta{
		Added:   []string{},
		Removed: []string{},
		Changed: []domain.ChangedRepo{},
	}
	if prior == nil {
		for _, e := range entries {
			d.Added = append(d.Added, e.Repo.FullName)
		}
		sort.Strings(d.Added)
		return d
	}

	prevScores := map[string]float64{}
	for _, e := range prior.Entries {
		prevScores[e.Repo.FullName] = e.Analysis.CombinedScore
	}

	current := map[string]bool{}
	for _, e := range entries {
		name := e.Repo.FullName
		current[name] = true

		prev, existed := prevScores[name]
		if !existed {
			d.Added = append(d.Added, name)
			continue
		}

		score := e.Analysis.CombinedScore
		var reason domain.ChangeReason
		switch {
		case prev < th.HighValue && score >= th.HighValue:
			reason = domain.ChangeHighValue
		case prev < th.SignificantChange && score >= th.SignificantChange:
			reason = domain.ChangeSignificant
		case complexityBucket(prev) != complexityBucket(score):
			reason = domain.ChangeBucketShift
		default:
			continue
		}
		d.Changed = append(d.Changed, domain.ChangedRepo{
			FullName:  name,
			PrevScore: prev,
			NewScore:  score,
			Reason:    reason,
		})
	}

	for _, e := range prior.Entries {
		if !current[e.Repo.FullName] {
			d.Removed = append(d.Removed, e.Repo.FullName)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].FullName < d.Changed[j].FullName })
	return d
}

// suggestions are the concrete resume update hints derived from recent
// activity.
func suggestions(entries []domain.ReportEntry, cfg config.Config, now time.Time) []string {
	cutoff := now.AddDate(0, 0, -cfg.Report.RecentWindowDays)

	var recent []domain.ReportEntry
	for _, e := range entries {
		if e.Repo.PushedAt.After(cutoff) {
			recent = append(recent, e)
		}
	}

	var out []string
	if len(recent) > 0 {
		out = append(out, fmt.Sprintf("%d projects updated recently; refresh the project showcase section", len(recent)))
	}

	aiRecent := 0
	highValue := 0
	skillSet := map[string]bool{}
	for _, e := range recent {
		if e.Analysis.AICollaboration {
			aiRecent++
		}
		if e.Analysis.CombinedScore >= cfg.Thresholds.HighValue {
			highValue++
		}
		for _, skill := range e.Analysis.TechStack {
			skillSet[skill] = true
		}
	}
	if aiRecent > 0 {
		out = append(out, fmt.Sprintf("%d recently active AI-assisted projects; emphasize the AI collaboration angle", aiRecent))
	}
	if highValue > 0 {
		out = append(out, fmt.Sprintf("%d high-value projects worth featuring prominently", highValue))
	}
	if len(skillSet) > 0 {
		skills := make([]string, 0, len(skillSet))
		for s := range skillSet {
			skills = append(skills, s)
		}
		sort.Strings(skills)
		if len(skills) > 5 {
			skills = skills[:5]
		}
		out = append(out, "Active skill tags: "+strings.Join(skills, ", "))
	}
	return out
}

// recommendations are the portfolio-wide observations.
func recommendations(entries []domain.ReportEntry) []string {
	if len(entries) == 0 {
		return nil
	}

	var out []string
	total := float64(len(entries))

	aiCount := 0
	privateCount := 0
	sum := 0.0
	for _, e := range entries {
		if e.Analysis.AICollaboration {
			aiCount++
		}
		if e.Repo.IsPrivate {
			privateCount++
		}
		sum += e.Analysis.Complexity
	}

	if float64(aiCount)/total > 0.6 {
		out = append(out, "High share of AI-assisted projects; lead with an AI collaboration specialist positioning")
	}
	if sum/total > 0.6 {
		out = append(out, "Overall complexity is high; this demonstrates senior engineering depth")
	}
	if float64(privateCount)/total > 0.8 {
		out = append(out, "Most projects are private; consider open-sourcing the strongest ones for visibility")
	}
	return out
}
