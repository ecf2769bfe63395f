// Package config defines the typed configuration schema for a run. The
// core never mutates a Config; every component receives the snapshot it
// was started with. Unknown or missing fields resolve to documented
// defaults; absent credentials are a configuration error.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Jim-purch/jim-resume/internal/common"
)

// GitHubConfig identifies whose repositories get inventoried.
type GitHubConfig struct {
	Token          string `json:"-"` // env only, never written to disk
	Username       string `json:"username"`
	IncludePrivate bool   `json:"include_private"`
}

// Weights are the complexity sub-factor weights. They must be
// non-negative; the scoring engine normalizes them to sum to 1 rather
// than failing, so drift in an edited config file is tolerated.
type Weights struct {
	Size      float64 `json:"size"`
	Languages float64 `json:"languages"`
	Stars     float64 `json:"stars"`
	Forks     float64 `json:"forks"`
	Readme    float64 `json:"readme"`
	Topics    float64 `json:"topics"`
	Recency   float64 `json:"recency"`
}

// ScoringConfig drives the scoring engine.
type ScoringConfig struct {
	Weights            Weights  `json:"weights"`
	HighValueLanguages []string `json:"high_value_languages"`
	HighValueTopics    []string `json:"high_value_topics"`

	// ComplexityBlend is the complexity share of the combined score;
	// the business-value share is its complement.
	ComplexityBlend float64 `json:"complexity_blend"`
}

// FilterConfig is the pre-scoring exclusion policy. Filtered repositories
// are not scored and never appear in aggregate statistics.
type FilterConfig struct {
	MinSizeKB       int  `json:"min_size_kb"`
	ExcludeForks    bool `json:"exclude_forks"`
	ExcludeArchived bool `json:"exclude_archived"`
}

// ReportConfig shapes the compiled report.
type ReportConfig struct {
	FeaturedCount    int `json:"featured_count"`
	RecentWindowDays int `json:"recent_window_days"`
}

// Thresholds gate notification dispatch. Both significant-change and
// high-value apply to absolute combined/business scores; they are
// deliberately configuration-exposed rather than hard-coded.
type Thresholds struct {
	MinUpdatesForNotification int     `json:"min_updates_for_notification"`
	MinSignificantUpdates     int     `json:"min_significant_updates"`
	SignificantChange         float64 `json:"significant_change"`
	HighValue                 float64 `json:"high_value"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled    bool     `json:"enabled"`
	SMTPServer string   `json:"smtp_server"`
	SMTPPort   int      `json:"smtp_port"`
	Sender     string   `json:"-"` // env only
	Password   string   `json:"-"` // env only
	Recipients []string `json:"recipients"`
}

// WebhookConfig configures the generic webhook channel.
type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"-"` // env only
}

// NotificationsConfig groups channel settings and suppression knobs.
type NotificationsConfig struct {
	Email   EmailConfig   `json:"email"`
	Webhook WebhookConfig `json:"webhook"`

	// Cooldown is the window inside which an equivalent notification is
	// suppressed instead of re-sent.
	Cooldown Duration `json:"cooldown"`

	// ChannelTimeout bounds each individual channel send.
	ChannelTimeout Duration `json:"channel_timeout"`
}

// CadenceConfig is one named recurring trigger in standard cron syntax.
type CadenceConfig struct {
	Name string `json:"name"`
	Spec string `json:"spec"`

	// ForceNotify makes runs fired by this cadence dispatch even when no
	// threshold triggers, matching the weekly full report behavior.
	ForceNotify bool `json:"force_notify"`
}

// ScheduleConfig drives the recurring scheduler.
type ScheduleConfig struct {
	Cadences       []CadenceConfig `json:"cadences"`
	InitialBackoff Duration        `json:"initial_backoff"`
	MaxBackoff     Duration        `json:"max_backoff"`
}

// StorageConfig locates the durable store.
type StorageConfig struct {
	DSN string `json:"-"` // env only
}

// Config is the complete per-run configuration snapshot.
type Config struct {
	GitHub        GitHubConfig        `json:"github"`
	Scoring       ScoringConfig       `json:"scoring"`
	Filter        FilterConfig        `json:"filter"`
	Report        ReportConfig        `json:"report"`
	Thresholds    Thresholds          `json:"thresholds"`
	Notifications NotificationsConfig `json:"notifications"`
	Schedule      ScheduleConfig      `json:"schedule"`
	Storage       StorageConfig       `json:"storage"`

	FetchTimeout Duration `json:"fetch_timeout"`
	RunTimeout   Duration `json:"run_timeout"`
}

// Duration is a time.Duration that (un)marshals as a string like "30m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the documented defaults. Daily check at 09:00 and the
// weekly full report on Monday 10:00 mirror the long-standing cadences.
func Default() Config {
	return Config{
		GitHub: GitHubConfig{
			Username:       "",
			IncludePrivate: true,
		},
		Scoring: ScoringConfig{
			Weights: Weights{
				Size:      0.30,
				Languages: 0.20,
				Stars:     0.10,
				Forks:     0.10,
				Readme:    0.10,
				Topics:    0.10,
				Recency:   0.10,
			},
			HighValueLanguages: []string{"Go", "Python", "TypeScript", "Rust"},
			HighValueTopics:    []string{"ai", "machine-learning", "llm", "automation", "saas"},
			ComplexityBlend:    0.5,
		},
		Filter: FilterConfig{
			MinSizeKB:       10,
			ExcludeForks:    true,
			ExcludeArchived: true,
		},
		Report: ReportConfig{
			FeaturedCount:    5,
			RecentWindowDays: 30,
		},
		Thresholds: Thresholds{
			MinUpdatesForNotification: 1,
			MinSignificantUpdates:     1,
			SignificantChange:         0.5,
			HighValue:                 0.75,
		},
		Notifications: NotificationsConfig{
			Email: EmailConfig{
				Enabled:    false,
				SMTPServer: "smtp.outlook.com",
				SMTPPort:   587,
			},
			Webhook: WebhookConfig{
				Enabled: false,
			},
			Cooldown:       Duration(6 * time.Hour),
			ChannelTimeout: Duration(30 * time.Second),
		},
		Schedule: ScheduleConfig{
			Cadences: []CadenceConfig{
				{Name: "daily-check", Spec: "0 9 * * *"},
				{Name: "weekly-report", Spec: "0 10 * * 1", ForceNotify: true},
			},
			InitialBackoff: Duration(1 * time.Minute),
			MaxBackoff:     Duration(1 * time.Hour),
		},
		FetchTimeout: Duration(5 * time.Minute),
		RunTimeout:   Duration(15 * time.Minute),
	}
}

// Load builds a Config from defaults, then the optional JSON file at
// path, then environment variables for credentials. Validation failures
// are configuration errors.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// missing file resolves to defaults
		case err != nil:
			return cfg, common.WrapError(common.ErrCodeConfiguration, "read config file", err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, common.WrapError(common.ErrCodeConfiguration, "parse config file", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GITHUB_USERNAME"); v != "" {
		cfg.GitHub.Username = v
	}
	if v := os.Getenv("EMAIL_USER"); v != "" {
		cfg.Notifications.Email.Sender = v
		if len(cfg.Notifications.Email.Recipients) == 0 {
			cfg.Notifications.Email.Recipients = []string{v}
		}
	}
	if v := os.Getenv("EMAIL_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// Validate checks the credential requirements and threshold sanity.
// Weight drift is not an error; the engine normalizes it.
func (c Config) Validate() error {
	if c.GitHub.Token == "" {
		return common.NewError(common.ErrCodeConfiguration, "GITHUB_TOKEN is not set")
	}
	if c.Storage.DSN == "" {
		return common.NewError(common.ErrCodeConfiguration, "DATABASE_DSN is not set")
	}
	if c.Notifications.Email.Enabled {
		e := c.Notifications.Email
		if e.Sender == "" || e.Password == "" || len(e.Recipients) == 0 {
			return common.NewError(common.ErrCodeConfiguration, "email channel enabled but EMAIL_USER/EMAIL_PASSWORD/recipients incomplete")
		}
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return common.NewError(common.ErrCodeConfiguration, "webhook channel enabled but WEBHOOK_URL is not set")
	}
	if c.Thresholds.SignificantChange < 0 || c.Thresholds.SignificantChange > 1 {
		return common.NewError(common.ErrCodeConfiguration, "thresholds.significant_change must be within [0,1]")
	}
	if c.Thresholds.HighValue < 0 || c.Thresholds.HighValue > 1 {
		return common.NewError(common.ErrCodeConfiguration, "thresholds.high_value must be within [0,1]")
	}
	if c.Scoring.ComplexityBlend < 0 || c.Scoring.ComplexityBlend > 1 {
		return common.NewError(common.ErrCodeConfiguration, "scoring.complexity_blend must be within [0,1]")
	}
	if len(c.Schedule.Cadences) == 0 {
		return common.NewError(common.ErrCodeConfiguration, "schedule.cadences must not be empty")
	}
	return nil
}
