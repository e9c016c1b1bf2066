package engine

import (
	"fmt"

	"adosweep/internal/azdo"
)

// AuthenticationError means the platform rejected the run's credential.
// Fatal: the run aborts before any repository work begins.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ScopeResolutionError means a configured organization, project, or
// repository could not be resolved. Fatal: an invalid scope is a
// configuration mistake to fix, not something to skip past silently.
type ScopeResolutionError struct {
	Organization string
	// Target is the scope entry that failed ("Project" or "Project/repo");
	// empty when organization-level discovery itself failed.
	Target string
	Err    error
}

func (e *ScopeResolutionError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("cannot resolve scope entry %q in organization %q: %v", e.Target, e.Organization, e.Err)
	}
	return fmt.Sprintf("cannot resolve organization %q: %v", e.Organization, e.Err)
}

func (e *ScopeResolutionError) Unwrap() error { return e.Err }

// scopeErr classifies a platform error raised during scope resolution.
// Unauthorized on these first calls of the run means the credential itself
// is bad, which outranks the scope complaint.
func scopeErr(organization, target string, err error) error {
	if azdo.IsUnauthorized(err) {
		return &AuthenticationError{Err: err}
	}
	return &ScopeResolutionError{Organization: organization, Target: target, Err: err}
}
