package scoring

import (
	"github.com/Jim-purch/jim-resume/internal/config"
	"github.com/Jim-purch/jim-resume/internal/domain"
)

// Filter applies the exclusion policy before scoring. Excluded
// repositories are not scored and never appear in aggregate statistics.
// Filtering an already-filtered set yields the same set.
func Filter(repos []*domain.Repository, cfg config.FilterConfig) []*domain.Repository {
	kept := make([]*domain.Repository, 0, len(repos))
	for _, repo := range repos {
		if repo == nil {
			continue
		}
		if repo.SizeKB < cfg.MinSizeKB {
			continue
		}
		if cfg.ExcludeForks && repo.IsFork {
			continue
		}
		if cfg.ExcludeArchived && repo.IsArchived {
			continue
		}
		kept = append(kept, repo)
	}
	return kept
}
