// Package scoring turns a repository snapshot into an analysis result.
// Everything here is a pure function of the snapshot and the scoring
// configuration: no I/O, no ambient state, no randomness. The weighting
// table is versioned so scoring changes stay auditable.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"
	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
)

// Version is recorded on every AnalysisResult so cached results can be
// invalidated when the heuristics change.
const Version = "2.0"

// aiMarkers are the keyword signals for AI-assisted authorship. Matching
// is heuristic; confidence grows with the number of independent markers.
var aiMarkers = []string{
	"ai", "ml", "gpt", "claude", "llm", "ocr", "automation",
	"intelligent", "smart", "neural", "model", "openai",
	"chatgpt", "anthropic", "machine learning", "deep learning",
}

// aiConfidenceSaturation is the marker count at which confidence reaches 1.
const aiConfidenceSaturation = 4

// projectTypes maps a classification to its marker keywords. The slice
// order is the tie-break order, so classification stays deterministic.
var projectTypes = []struct {
	name     string
	keywords []string
}{
	{"AI Tool", []string{"ai", "ml", "ocr", "tts", "nlp", "cv"}},
	{"Automation", []string{"automation", "script", "tool", "process"}},
	{"Web Application", []string{"web", "app", "frontend", "backend", "api"}},
	{"Data Processing", []string{"data", "analysis", "etl", "database"}},
	{"Enterprise System", []string{"enterprise", "business", "management", "crm"}},
	{"Developer Tool", []string{"dev", "tool", "utility", "helper"}},
	{"Mobile App", []string{"mobile", "android", "ios", "app"}},
	{"Game", []string{"game", "unity", "engine"}},
	{"Blockchain", []string{"blockchain", "crypto", "web3", "defi"}},
	{"IoT", []string{"iot", "sensor", "embedded", "arduino"}},
}

// DefaultProjectType is used when no classification keywords match.
const DefaultProjectType = "Utility"

// techMapping expands a language into the skills it evidences.
var techMapping = map[string][]string{
	"Python":     {"AI/ML", "Data Processing", "Automation", "Web Development"},
	"JavaScript": {"Frontend", "Web Apps", "Node.js", "React"},
	"TypeScript": {"Frontend Frameworks", "Enterprise Apps", "Type Safety"},
	"HTML":       {"Web Frontend", "User Interfaces"},
	"CSS":        {"UI Design", "Responsive Layout"},
	"Go":         {"Microservices", "Cloud Native", "High Performance"},
	"Java":       {"Enterprise Apps", "Backend Services", "Spring"},
	"Rust":       {"Systems Programming", "High Performance"},
	"Dockerfile": {"Containerization", "DevOps", "Deployment Automation"},
	"Shell":      {"Ops Automation", "Scripting"},
}

// featureKeywords map a key feature label to its markers; slice order is
// the output order.
var featureKeywords = []struct {
	name     string
	keywords []string
}{
	{"Automated Processing", []string{"auto", "automatic", "batch", "process"}},
	{"AI Integration", []string{"ai", "gpt", "claude", "ml", "intelligent"}},
	{"Web Interface", []string{"web", "ui", "interface", "dashboard"}},
	{"API Endpoints", []string{"api", "rest", "endpoint", "service"}},
	{"Data Handling", []string{"data", "csv", "json", "database"}},
	{"Image Processing", []string{"image", "ocr", "cv", "vision"}},
	{"File Management", []string{"file", "folder", "document", "export"}},
	{"Real-Time Processing", []string{"real-time", "live", "monitor", "watch"}},
	{"Bulk Operations", []string{"batch", "bulk", "multiple", "mass"}},
	{"Cross-Platform", []string{"cross-platform", "multi-platform", "universal"}},
}

const maxKeyFeatures = 5
const maxRoles = 3

// projectTypeValue is the bounded business-value contribution per
// classification.
var projectTypeValue = map[string]float64{
	"AI Tool":           1.0,
	"Enterprise System": 0.9,
	"Web Application":   0.8,
	"Data Processing":   0.8,
	"Automation":        0.7,
	"Developer Tool":    0.6,
	"Blockchain":        0.6,
	"Mobile App":        0.6,
	"IoT":               0.5,
	"Game":              0.4,
	DefaultProjectType:  0.4,
}

// Engine scores repository snapshots. The clock only feeds the recency
// sub-factor and the AnalyzedAt stamp; it is injectable for tests.
type Engine struct {
	cfg     config.ScoringConfig
	nowFunc func() time.Time
}

// NewEngine creates a scoring engine for one configuration snapshot.
func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{
		cfg:     cfg,
		nowFunc: time.Now,
	}
}

// SetNowFunc injects the clock used for recency scoring.
func (e *Engine) SetNowFunc(f func() time.Time) {
	if f != nil {
		e.nowFunc = f
	}
}

// Score computes the full analysis for one snapshot. It is total for
// well-formed input; the only error is a repository without an identity.
func (e *Engine) Score(repo *domain.Repository) (domain.AnalysisResult, error) {
	if repo == nil || repo.FullName == "" {
		return domain.AnalysisResult{}, common.NewError(common.ErrCodeInvalidInput, "repository has no identity")
	}

	now := e.nowFunc()
	text := searchText(repo)

	complexity := e.complexity(repo, now)
	aiCollab, aiConfidence := detectAICollaboration(text)
	projectType := classifyProjectType(text)
	business := e.businessValue(repo, complexity, projectType)
	combined := clamp01(e.cfg.ComplexityBlend*complexity + (1-e.cfg.ComplexityBlend)*business)

	techStack := techStackFor(repo)

	return domain.AnalysisResult{
		RepoFullName:    repo.FullName,
		ScoringVersion:  Version,
		Complexity:      complexity,
		BusinessValue:   business,
		CombinedScore:   combined,
		AICollaboration: aiCollab,
		AIConfidence:    aiConfidence,
		ProjectType:     projectType,
		TechStack:       techStack,
		KeyFeatures:     keyFeatures(text),
		RoleSuggestions: suggestRoles(repo, techStack, aiCollab),
		EstimatedEffort: estimateEffort(complexity),
		AnalyzedAt:      now,
	}, nil
}

// complexity is the weighted sum of independently normalized sub-factors.
// Each sub-factor is clamped to [0,1] by a monotonic map before weighting,
// so no single raw metric can dominate unboundedly.
func (e *Engine) complexity(repo *domain.Repository, now time.Time) float64 {
	w := normalizeWeights(e.cfg.Weights)

	score := w.Size*logScale(float64(repo.SizeKB), 1_000_000) +
		w.Languages*clamp01(float64(len(repo.Languages))/6) +
		w.Stars*logScale(float64(repo.Stars), 500) +
		w.Forks*logScale(float64(repo.Forks), 100) +
		w.Readme*logScale(float64(repo.ReadmeLength), 20_000) +
		w.Topics*clamp01(float64(len(repo.Topics))/6) +
		w.Recency*recencyScore(repo.PushedAt, now)

	return clamp01(score)
}

// businessValue folds complexity with high-value language/topic membership
// and the project-type contribution, each term bounded.
func (e *Engine) businessValue(repo *domain.Repository, complexity float64, projectType string) float64 {
	langBonus := 0.0
	for _, lang := range e.cfg.HighValueLanguages {
		if strings.EqualFold(repo.Language, lang) {
			langBonus = 1.0
			break
		}
	}

	topicBonus := 0.0
	if len(repo.Topics) > 0 {
		matched := 0
		for _, topic := range repo.Topics {
			for _, hv := range e.cfg.HighValueTopics {
				if strings.EqualFold(topic, hv) {
					matched++
					break
				}
			}
		}
		topicBonus = clamp01(float64(matched) / 2)
	}

	typeBonus, ok := projectTypeValue[projectType]
	if !ok {
		typeBonus = projectTypeValue[DefaultProjectType]
	}

	return clamp01(0.5*complexity + 0.2*langBonus + 0.15*topicBonus + 0.15*typeBonus)
}

// normalizeWeights clamps negatives to zero and scales the table to sum
// to 1. A zero-sum table falls back to the documented defaults so the
// engine never fails on configuration drift.
func normalizeWeights(w config.Weights) config.Weights {
	vals := []float64{w.Size, w.Languages, w.Stars, w.Forks, w.Readme, w.Topics, w.Recency}
	sum := 0.0
	for i, v := range vals {
		if v < 0 {
			vals[i] = 0
			v = 0
		}
		sum += v
	}
	if sum == 0 {
		return config.Default().Scoring.Weights
	}
	return config.Weights{
		Size:      vals[0] / sum,
		Languages: vals[1] / sum,
		Stars:     vals[2] / sum,
		Forks:     vals[3] / sum,
		Readme:    vals[4] / sum,
		Topics:    vals[5] / sum,
		Recency:   vals[6] / sum,
	}
}

// logScale maps v monotonically into [0,1], saturating at sat.
func logScale(v, sat float64) float64 {
	if v <= 0 {
		return 0
	}
	return clamp01(math.Log1p(v) / math.Log1p(sat))
}

// recencyScore decays linearly from 1 (pushed today) to 0 (a year or
// more ago).
func recencyScore(pushedAt, now time.Time) float64 {
	if pushedAt.IsZero() || pushedAt.After(now) {
		return 0
	}
	days := now.Sub(pushedAt).Hours() / 24
	return clamp01(1 - days/365)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// searchText is the lowercase haystack for all keyword heuristics.
func searchText(repo *domain.Repository) string {
	// ReadmeLength is metadata; the README body itself is not cached, so
	// the text heuristics run over name, description and topics.
	parts := []string{repo.Name, repo.Description}
	parts = append(parts, repo.Topics...)
	return strings.ToLower(strings.Join(parts, " "))
}

// detectAICollaboration counts independent marker matches. One marker is
// enough to flag; confidence saturates at aiConfidenceSaturation markers.
func detectAICollaboration(text string) (bool, float64) {
	matched := 0
	for _, marker := range aiMarkers {
		if containsWord(text, marker) {
			matched++
		}
	}
	if matched == 0 {
		return false, 0
	}
	return true, clamp01(float64(matched) / aiConfidenceSaturation)
}

// containsWord matches marker as a whole token so "claude" does not match
// inside unrelated words. Multi-word markers use substring matching.
func containsWord(text, marker string) bool {
	if strings.Contains(marker, " ") {
		return strings.Contains(text, marker)
	}
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if tok == marker {
			return true
		}
	}
	return false
}

// classifyProjectType picks the type with the most keyword hits; ties go
// to the earlier table entry.
func classifyProjectType(text string) string {
	best := DefaultProjectType
	bestScore := 0
	for _, pt := range projectTypes {
		score := 0
		for _, kw := range pt.keywords {
			if containsWord(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best = pt.name
			bestScore = score
		}
	}
	return best
}

// techStackFor expands every detected language through the mapping and
// returns a sorted, deduplicated skill list.
func techStackFor(repo *domain.Repository) []string {
	seen := map[string]bool{}
	add := func(lang string) {
		for _, skill := range techMapping[lang] {
			seen[skill] = true
		}
	}
	add(repo.Language)
	for lang := range repo.Languages {
		add(lang)
	}

	out := make([]string, 0, len(seen))
	for skill := range seen {
		out = append(out, skill)
	}
	sort.Strings(out)
	return out
}

// keyFeatures extracts up to maxKeyFeatures labels in table order.
func keyFeatures(text string) []string {
	var out []string
	for _, f := range featureKeywords {
		for _, kw := range f.keywords {
			if containsWord(text, kw) {
				out = append(out, f.name)
				break
			}
		}
		if len(out) == maxKeyFeatures {
			break
		}
	}
	return out
}

// suggestRoles returns up to maxRoles role tags for resume framing.
func suggestRoles(repo *domain.Repository, techStack []string, aiCollab bool) []string {
	var roles []string

	if aiCollab {
		roles = append(roles, "AI Collaboration Specialist")
	}

	hasAny := func(wanted ...string) bool {
		for _, w := range wanted {
			for _, t := range techStack {
				if t == w {
					return true
				}
			}
		}
		return false
	}

	if hasAny("Frontend", "Web Apps", "React", "Frontend Frameworks") {
		roles = append(roles, "Frontend Engineer")
	}
	if hasAny("AI/ML", "Data Processing") {
		roles = append(roles, "AI Product Engineer")
	}
	if hasAny("Automation", "Ops Automation", "Scripting") {
		roles = append(roles, "Automation Specialist")
	}
	if repo.Stars > 10 || repo.Forks > 5 {
		roles = append(roles, "Tech Lead")
	}
	if len(roles) == 0 {
		roles = append(roles, "Software Engineer")
	}

	if len(roles) > maxRoles {
		roles = roles[:maxRoles]
	}
	return roles
}

// estimateEffort maps complexity to the ordinal duration ladder.
func estimateEffort(complexity float64) string {
	switch {
	case complexity > 0.8:
		return "2-6 months"
	case complexity > 0.6:
		return "1-3 months"
	case complexity > 0.4:
		return "2-6 weeks"
	case complexity > 0.2:
		return "1-2 weeks"
	default:
		return "a few days"
	}
}
