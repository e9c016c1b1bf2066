package engine

import (
	"context"
	"errors"
	"fmt"

	"adosweep/internal/azdo"
	"adosweep/internal/retry"
)

// Executor applies a non-empty plan to its repository as exactly one push
// carrying one commit that touches every planned file. The platform applies
// a push atomically, so a rejected push leaves the branch untouched; a
// partially applied plan is not a reachable state.
type Executor struct {
	api     azdo.API
	retry   retry.Policy
	message string
}

func NewExecutor(api azdo.API, policy retry.Policy, commitMessage string) *Executor {
	return &Executor{api: api, retry: policy, message: commitMessage}
}

// Apply pushes the plan and returns the new commit ID.
//
// Before each attempt the branch head is re-read; if it advanced since
// scanning, the push targets the fresh head (the plan's contents are
// whole-file replacements, not patches, so no rebase is needed). A push the
// platform still rejects as conflicting, and any transient failure, is
// retried under the policy; a terminal error fails only this repository.
func (e *Executor) Apply(ctx context.Context, plan ChangePlan) (string, error) {
	if plan.Empty() {
		return "", errors.New("refusing to apply an empty plan")
	}

	changes := make([]azdo.FileChange, 0, len(plan.Files))
	for _, m := range plan.Files {
		changes = append(changes, azdo.FileChange{Path: m.Path, Content: m.NewContent})
	}

	var commitID string
	err := e.retry.Do(ctx, retryableApply, func(ctx context.Context) error {
		head, err := e.api.GetBranchHead(ctx, plan.Target.Ref, plan.Target.Branch)
		if err != nil {
			return err
		}
		pushed, err := e.api.PushEdits(ctx, plan.Target.Ref, plan.Target.Branch, head, e.message, changes)
		if err != nil {
			return err
		}
		commitID = pushed
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("push %d file(s) to %s@%s: %w", len(changes), plan.Target.FullName(), plan.Target.Branch, err)
	}
	return commitID, nil
}

func retryableApply(err error) bool {
	return azdo.IsTransient(err) || azdo.IsConflict(err)
}
