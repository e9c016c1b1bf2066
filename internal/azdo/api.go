package azdo

import (
	"context"

	"github.com/google/uuid"
)

// ProjectRef identifies one project in the organization.
type ProjectRef struct {
	ID   uuid.UUID
	Name string
}

// RepoRef identifies one Git repository. DefaultBranch is the short branch
// name ("main", not "refs/heads/main"); empty when the repository is bare.
type RepoRef struct {
	ID            uuid.UUID
	Name          string
	Project       ProjectRef
	DefaultBranch string
}

// ItemRef is one file tracked at a branch tip. Binary reflects the
// platform's own content-type classification when it provides one.
type ItemRef struct {
	Path   string
	Binary bool
}

// FileChange is one file edit inside a push: the file at Path is replaced
// wholesale with Content.
type FileChange struct {
	Path    string
	Content string
}

// API is the platform surface the engine consumes. The production
// implementation is *Client over the Azure DevOps REST SDK; tests substitute
// call-recording fakes. All methods are read-only except PushEdits.
//
// Implementations must be safe for concurrent use: one client is shared by
// every repository worker in a run.
type API interface {
	// ListProjects returns every project in the organization.
	ListProjects(ctx context.Context) ([]ProjectRef, error)

	// ListRepositories returns every Git repository in the named project.
	ListRepositories(ctx context.Context, project string) ([]RepoRef, error)

	// GetRepository resolves a single project/repository pair by name.
	GetRepository(ctx context.Context, project, repo string) (RepoRef, error)

	// ListItems enumerates all files (not folders) at the tip of branch.
	ListItems(ctx context.Context, repo RepoRef, branch string) ([]ItemRef, error)

	// GetItemContent returns the full content of one file at the tip of branch.
	GetItemContent(ctx context.Context, repo RepoRef, path, branch string) (string, error)

	// GetBranchHead returns the commit object ID at the tip of branch.
	GetBranchHead(ctx context.Context, repo RepoRef, branch string) (string, error)

	// PushEdits applies all changes as a single commit pushed to branch,
	// conditioned on the branch head still being oldObjectID. Returns the new
	// head object ID. The platform applies the push atomically: on any
	// rejection the branch is untouched.
	PushEdits(ctx context.Context, repo RepoRef, branch, oldObjectID, comment string, changes []FileChange) (string, error)
}
