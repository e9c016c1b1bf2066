package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"adosweep/internal/azdo"
	"adosweep/internal/config"
)

// RepoTarget is one resolved repository plus the branch this run will scan
// and commit to.
type RepoTarget struct {
	Ref azdo.RepoRef

	// Branch is the configured source branch, or the repository's default
	// branch when none is configured. Empty means the repository is bare and
	// has nothing to scan.
	Branch string
}

func (t RepoTarget) FullName() string {
	return t.Ref.Project.Name + "/" + t.Ref.Name
}

// ResolveScope expands the configured scope into a deduplicated ordered list
// of repository targets.
//
// An empty target list means the entire organization: every repository of
// every project. A project-only entry means every repository in that
// project. A project/repo entry must name an existing repository.
//
// Any resolution failure aborts the run (AuthenticationError or
// ScopeResolutionError); partial scopes are never processed.
func ResolveScope(ctx context.Context, api azdo.API, cfg *config.Config) ([]RepoTarget, error) {
	org := cfg.Targeting.Organization

	var refs []azdo.RepoRef
	if len(cfg.Targeting.Targets) == 0 {
		projects, err := api.ListProjects(ctx)
		if err != nil {
			return nil, scopeErr(org, "", err)
		}
		for _, p := range projects {
			repos, err := api.ListRepositories(ctx, p.Name)
			if err != nil {
				return nil, scopeErr(org, p.Name, err)
			}
			refs = append(refs, repos...)
		}
	} else {
		for _, t := range cfg.Targeting.Targets {
			if t.Repo == "" {
				repos, err := api.ListRepositories(ctx, t.Project)
				if err != nil {
					return nil, scopeErr(org, t.String(), err)
				}
				refs = append(refs, repos...)
				continue
			}
			repo, err := api.GetRepository(ctx, t.Project, t.Repo)
			if err != nil {
				return nil, scopeErr(org, t.String(), err)
			}
			refs = append(refs, repo)
		}
	}

	targets := dedupeTargets(refs, cfg.Commit.Branch)
	if limit := cfg.Targeting.MaxRepos; limit > 0 && len(targets) > limit {
		targets = targets[:limit]
	}
	return targets, nil
}

// dedupeTargets drops repeated repositories (same scope entry listed twice,
// or a project entry overlapping an explicit project/repo pair), keeping
// first occurrence order.
func dedupeTargets(refs []azdo.RepoRef, branchOverride string) []RepoTarget {
	seen := make(map[string]struct{}, len(refs))
	out := make([]RepoTarget, 0, len(refs))
	for _, ref := range refs {
		key := ref.ID.String()
		if ref.ID == uuid.Nil {
			// No UUID from the platform; fall back to names.
			key = fmt.Sprintf("%s/%s", ref.Project.Name, ref.Name)
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		branch := branchOverride
		if branch == "" {
			branch = ref.DefaultBranch
		}
		out = append(out, RepoTarget{Ref: ref, Branch: branch})
	}
	return out
}
