package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"

	"adosweep/internal/azdo"
)

// fakeAPI is an in-memory, call-recording stand-in for the platform. Every
// method appends to calls, so tests can assert things like "a dry run never
// issues a mutating call".
type fakeAPI struct {
	mu sync.Mutex

	projects []azdo.ProjectRef
	repos    map[string][]*fakeRepo // keyed by project name

	listProjectsErr error
	listReposErr    map[string]error // by project name
	getRepoErr      map[string]error // by "project/repo"
	headErrs        map[string][]error
	listItemsErrs   map[string][]error
	readErrs        map[string][]error // by "repo:path", consumed per call
	pushErrs        map[string][]error // by repo name, consumed per call
	readStalls      map[string]int     // by "repo:path", stalled calls remaining

	calls   []string
	pushSeq int
}

type fakeRepo struct {
	ref    azdo.RepoRef
	head   string
	files  map[string]string
	binary map[string]bool
	pushes []fakePush
}

type fakePush struct {
	branch  string
	old     string
	comment string
	changes []azdo.FileChange
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		repos:         make(map[string][]*fakeRepo),
		listReposErr:  make(map[string]error),
		getRepoErr:    make(map[string]error),
		headErrs:      make(map[string][]error),
		listItemsErrs: make(map[string][]error),
		readErrs:      make(map[string][]error),
		pushErrs:      make(map[string][]error),
		readStalls:    make(map[string]int),
	}
}

func (f *fakeAPI) addRepo(project, name, branch string, files map[string]string) *fakeRepo {
	f.mu.Lock()
	defer f.mu.Unlock()

	var projRef azdo.ProjectRef
	for _, p := range f.projects {
		if p.Name == project {
			projRef = p
		}
	}
	if projRef.Name == "" {
		projRef = azdo.ProjectRef{ID: uuid.New(), Name: project}
		f.projects = append(f.projects, projRef)
	}

	if files == nil {
		files = make(map[string]string)
	}
	r := &fakeRepo{
		ref: azdo.RepoRef{
			ID:            uuid.New(),
			Name:          name,
			Project:       projRef,
			DefaultBranch: branch,
		},
		head:   "head-0",
		files:  files,
		binary: make(map[string]bool),
	}
	f.repos[project] = append(f.repos[project], r)
	return r
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) findRepo(name string) *fakeRepo {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, repos := range f.repos {
		for _, r := range repos {
			if r.ref.Name == name {
				return r
			}
		}
	}
	return nil
}

// popStall consumes one pending read stall for key; a stalled call hangs
// until its context is done.
func (f *fakeAPI) popStall(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readStalls[key] == 0 {
		return false
	}
	f.readStalls[key]--
	return true
}

// popErr consumes the next queued error for key, if any.
func popErr(m map[string][]error, mu *sync.Mutex, key string) error {
	mu.Lock()
	defer mu.Unlock()
	queue := m[key]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m[key] = queue[1:]
	return err
}

func (f *fakeAPI) ListProjects(ctx context.Context) ([]azdo.ProjectRef, error) {
	f.record("ListProjects")
	if f.listProjectsErr != nil {
		return nil, f.listProjectsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]azdo.ProjectRef(nil), f.projects...), nil
}

func (f *fakeAPI) ListRepositories(ctx context.Context, project string) ([]azdo.RepoRef, error) {
	f.record("ListRepositories:" + project)
	if err := f.listReposErr[project]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	repos, ok := f.repos[project]
	if !ok {
		return nil, notFoundErr()
	}
	out := make([]azdo.RepoRef, 0, len(repos))
	for _, r := range repos {
		out = append(out, r.ref)
	}
	return out, nil
}

func (f *fakeAPI) GetRepository(ctx context.Context, project, repo string) (azdo.RepoRef, error) {
	f.record("GetRepository:" + project + "/" + repo)
	if err := f.getRepoErr[project+"/"+repo]; err != nil {
		return azdo.RepoRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos[project] {
		if r.ref.Name == repo {
			return r.ref, nil
		}
	}
	return azdo.RepoRef{}, notFoundErr()
}

func (f *fakeAPI) ListItems(ctx context.Context, repo azdo.RepoRef, branch string) ([]azdo.ItemRef, error) {
	f.record("ListItems:" + repo.Name)
	if err := popErr(f.listItemsErrs, &f.mu, repo.Name); err != nil {
		return nil, err
	}
	r := f.findRepo(repo.Name)
	if r == nil {
		return nil, notFoundErr()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]azdo.ItemRef, 0, len(r.files))
	for path := range r.files {
		out = append(out, azdo.ItemRef{Path: path, Binary: r.binary[path]})
	}
	return out, nil
}

func (f *fakeAPI) GetItemContent(ctx context.Context, repo azdo.RepoRef, path, branch string) (string, error) {
	f.record("GetItemContent:" + repo.Name + ":" + path)
	if f.popStall(repo.Name + ":" + path) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := popErr(f.readErrs, &f.mu, repo.Name+":"+path); err != nil {
		return "", err
	}
	r := f.findRepo(repo.Name)
	if r == nil {
		return "", notFoundErr()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := r.files[path]
	if !ok {
		return "", notFoundErr()
	}
	return content, nil
}

func (f *fakeAPI) GetBranchHead(ctx context.Context, repo azdo.RepoRef, branch string) (string, error) {
	f.record("GetBranchHead:" + repo.Name)
	if err := popErr(f.headErrs, &f.mu, repo.Name); err != nil {
		return "", err
	}
	r := f.findRepo(repo.Name)
	if r == nil {
		return "", notFoundErr()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return r.head, nil
}

func (f *fakeAPI) PushEdits(ctx context.Context, repo azdo.RepoRef, branch, oldObjectID, comment string, changes []azdo.FileChange) (string, error) {
	f.record("PushEdits:" + repo.Name)
	if err := popErr(f.pushErrs, &f.mu, repo.Name); err != nil {
		return "", err
	}
	r := f.findRepo(repo.Name)
	if r == nil {
		return "", notFoundErr()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if oldObjectID != r.head {
		return "", conflictErr()
	}
	// Atomic: all files land together with the new head.
	for _, ch := range changes {
		r.files[ch.Path] = ch.Content
	}
	f.pushSeq++
	r.head = fmt.Sprintf("head-%d", f.pushSeq)
	r.pushes = append(r.pushes, fakePush{
		branch:  branch,
		old:     oldObjectID,
		comment: comment,
		changes: append([]azdo.FileChange(nil), changes...),
	})
	return r.head, nil
}

func wrappedStatusErr(code int) error {
	return azuredevops.WrappedError{StatusCode: &code}
}

func notFoundErr() error     { return wrappedStatusErr(404) }
func unauthorizedErr() error { return wrappedStatusErr(401) }
func transientErr() error    { return wrappedStatusErr(503) }
func conflictErr() error     { return wrappedStatusErr(409) }
