package azdo

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
)

// DefaultBaseURL is the hosted Azure DevOps endpoint. On-prem and
// sovereign-cloud installs override it via ado_base_url in settings.
const DefaultBaseURL = "https://dev.azure.com"

// Client is a thin wrapper over the Azure DevOps SDK's core and git clients.
// All SDK types stay behind this package; the engine sees only the API
// interface. One Client is shared read-mostly by every worker in a run.
type Client struct {
	core core.Client
	git  git.Client

	verbose bool
	logw    io.Writer
}

var _ API = (*Client)(nil)

type options struct {
	verbose bool
	// writer controls where verbose API call logs go (typically stderr) so
	// structured output on stdout stays clean and tests can capture logs.
	writer io.Writer
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

// OrganizationURL joins the platform base URL and the organization name.
// An empty baseURL means the hosted service.
func OrganizationURL(baseURL, organization string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + organization
}

// NewClient builds the SDK connection for the organization and instantiates
// the core and git REST clients. The credential decides the Authorization
// scheme: PATs go over basic auth, Entra tokens from the az CLI as Bearer.
func NewClient(ctx context.Context, organizationURL string, cred Credential, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("azdo client: ctx is nil")
	}
	if cred.Token == "" {
		return nil, fmt.Errorf("azdo client: no credential (set --pat, AZURE_DEVOPS_EXT_PAT, or log in with az)")
	}

	o := &options{}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}

	var conn *azuredevops.Connection
	switch cred.Source {
	case CredentialSourceAzureCLI:
		conn = &azuredevops.Connection{
			AuthorizationString: "Bearer " + cred.Token,
			BaseUrl:             strings.ToLower(strings.TrimSuffix(organizationURL, "/")),
		}
	default:
		conn = azuredevops.NewPatConnection(organizationURL, cred.Token)
	}

	coreClient, err := core.NewClient(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("azdo client: core client: %w", err)
	}
	gitClient, err := git.NewClient(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("azdo client: git client: %w", err)
	}

	return &Client{
		core:    coreClient,
		git:     gitClient,
		verbose: o.verbose,
		logw:    o.writer,
	}, nil
}

// logCall emits one line when the call starts and one with latency when it
// finishes, mirroring verbose HTTP logging. No-op unless verbose.
func (c *Client) logCall(what string) func(err error) {
	if !c.verbose || c.logw == nil {
		return func(error) {}
	}
	start := time.Now()
	_, _ = fmt.Fprintf(c.logw, "[verbose] azdo api: %s\n", what)
	return func(err error) {
		dur := time.Since(start).Truncate(time.Millisecond)
		if err != nil {
			_, _ = fmt.Fprintf(c.logw, "[verbose] azdo api: %s: error after %s: %v\n", what, dur, err)
			return
		}
		_, _ = fmt.Fprintf(c.logw, "[verbose] azdo api: %s: ok (%s)\n", what, dur)
	}
}

func (c *Client) ListProjects(ctx context.Context) ([]ProjectRef, error) {
	var out []ProjectRef
	var continuation *int
	for {
		done := c.logCall("list projects")
		resp, err := c.core.GetProjects(ctx, core.GetProjectsArgs{ContinuationToken: continuation})
		done(err)
		if err != nil {
			return nil, err
		}
		for _, p := range resp.Value {
			ref := ProjectRef{Name: deref(p.Name)}
			if p.Id != nil {
				ref.ID = *p.Id
			}
			out = append(out, ref)
		}
		if resp.ContinuationToken == "" {
			break
		}
		tok, convErr := strconv.Atoi(resp.ContinuationToken)
		if convErr != nil {
			return nil, fmt.Errorf("unexpected projects continuation token %q", resp.ContinuationToken)
		}
		continuation = &tok
	}
	return out, nil
}

func (c *Client) ListRepositories(ctx context.Context, project string) ([]RepoRef, error) {
	done := c.logCall("list repositories in " + project)
	repos, err := c.git.GetRepositories(ctx, git.GetRepositoriesArgs{Project: &project})
	done(err)
	if err != nil {
		return nil, err
	}

	out := make([]RepoRef, 0, len(*repos))
	for _, r := range *repos {
		out = append(out, repoRefFrom(r))
	}
	return out, nil
}

func (c *Client) GetRepository(ctx context.Context, project, repo string) (RepoRef, error) {
	done := c.logCall("get repository " + project + "/" + repo)
	r, err := c.git.GetRepository(ctx, git.GetRepositoryArgs{RepositoryId: &repo, Project: &project})
	done(err)
	if err != nil {
		return RepoRef{}, err
	}
	return repoRefFrom(*r), nil
}

func (c *Client) ListItems(ctx context.Context, repo RepoRef, branch string) ([]ItemRef, error) {
	repoID := repo.ID.String()
	recursion := git.VersionControlRecursionTypeValues.Full
	includeMeta := true

	done := c.logCall(fmt.Sprintf("list items in %s/%s@%s", repo.Project.Name, repo.Name, branch))
	items, err := c.git.GetItems(ctx, git.GetItemsArgs{
		RepositoryId:           &repoID,
		Project:                &repo.Project.Name,
		RecursionLevel:         &recursion,
		IncludeContentMetadata: &includeMeta,
		VersionDescriptor:      branchDescriptor(branch),
	})
	done(err)
	if err != nil {
		return nil, err
	}

	var out []ItemRef
	for _, it := range *items {
		if it.IsFolder != nil && *it.IsFolder {
			continue
		}
		if it.GitObjectType != nil && *it.GitObjectType != git.GitObjectTypeValues.Blob {
			continue
		}
		ref := ItemRef{Path: deref(it.Path)}
		if it.ContentMetadata != nil && it.ContentMetadata.IsBinary != nil {
			ref.Binary = *it.ContentMetadata.IsBinary
		}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (c *Client) GetItemContent(ctx context.Context, repo RepoRef, path, branch string) (string, error) {
	repoID := repo.ID.String()
	includeContent := true

	done := c.logCall(fmt.Sprintf("get item %s/%s:%s@%s", repo.Project.Name, repo.Name, path, branch))
	item, err := c.git.GetItem(ctx, git.GetItemArgs{
		RepositoryId:      &repoID,
		Project:           &repo.Project.Name,
		Path:              &path,
		IncludeContent:    &includeContent,
		VersionDescriptor: branchDescriptor(branch),
	})
	done(err)
	if err != nil {
		return "", err
	}
	return deref(item.Content), nil
}

func (c *Client) GetBranchHead(ctx context.Context, repo RepoRef, branch string) (string, error) {
	repoID := repo.ID.String()

	done := c.logCall(fmt.Sprintf("get branch %s/%s@%s", repo.Project.Name, repo.Name, branch))
	stats, err := c.git.GetBranch(ctx, git.GetBranchArgs{
		RepositoryId: &repoID,
		Project:      &repo.Project.Name,
		Name:         &branch,
	})
	done(err)
	if err != nil {
		return "", err
	}
	if stats.Commit == nil || stats.Commit.CommitId == nil {
		return "", fmt.Errorf("branch %q of %s/%s has no commit", branch, repo.Project.Name, repo.Name)
	}
	return *stats.Commit.CommitId, nil
}

func (c *Client) PushEdits(ctx context.Context, repo RepoRef, branch, oldObjectID, comment string, changes []FileChange) (string, error) {
	repoID := repo.ID.String()
	refName := "refs/heads/" + branch

	gitChanges := make([]interface{}, 0, len(changes))
	for _, ch := range changes {
		path := ch.Path
		content := ch.Content
		gitChanges = append(gitChanges, git.GitChange{
			ChangeType: &git.VersionControlChangeTypeValues.Edit,
			Item:       git.GitItem{Path: &path},
			NewContent: &git.ItemContent{
				Content:     &content,
				ContentType: &git.ItemContentTypeValues.RawText,
			},
		})
	}

	push := git.GitPush{
		RefUpdates: &[]git.GitRefUpdate{{
			Name:        &refName,
			OldObjectId: &oldObjectID,
		}},
		Commits: &[]git.GitCommitRef{{
			Comment: &comment,
			Changes: &gitChanges,
		}},
	}

	done := c.logCall(fmt.Sprintf("push %d change(s) to %s/%s@%s", len(changes), repo.Project.Name, repo.Name, branch))
	res, err := c.git.CreatePush(ctx, git.CreatePushArgs{
		Push:         &push,
		RepositoryId: &repoID,
		Project:      &repo.Project.Name,
	})
	done(err)
	if err != nil {
		return "", err
	}

	if res.RefUpdates != nil && len(*res.RefUpdates) > 0 {
		if id := (*res.RefUpdates)[0].NewObjectId; id != nil {
			return *id, nil
		}
	}
	if res.Commits != nil && len(*res.Commits) > 0 {
		if id := (*res.Commits)[0].CommitId; id != nil {
			return *id, nil
		}
	}
	return "", nil
}

func repoRefFrom(r git.GitRepository) RepoRef {
	ref := RepoRef{Name: deref(r.Name)}
	if r.Id != nil {
		ref.ID = *r.Id
	}
	if r.Project != nil {
		ref.Project.Name = deref(r.Project.Name)
		if r.Project.Id != nil {
			ref.Project.ID = *r.Project.Id
		}
	}
	if r.DefaultBranch != nil {
		ref.DefaultBranch = strings.TrimPrefix(*r.DefaultBranch, "refs/heads/")
	}
	return ref
}

func branchDescriptor(branch string) *git.GitVersionDescriptor {
	versionType := git.GitVersionTypeValues.Branch
	return &git.GitVersionDescriptor{
		Version:     &branch,
		VersionType: &versionType,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
