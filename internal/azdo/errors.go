package azdo

import (
	"errors"
	"net/http"
	"strings"

	"github.com/microsoft/azure-devops-go-api/azuredevops/v7"
)

// Error classification over the SDK's WrappedError. The engine keys its
// retry and isolation decisions off these helpers instead of inspecting SDK
// types directly.

func statusCode(err error) (int, bool) {
	var wrapped azuredevops.WrappedError
	if errors.As(err, &wrapped) && wrapped.StatusCode != nil {
		return *wrapped.StatusCode, true
	}
	var wrappedPtr *azuredevops.WrappedError
	if errors.As(err, &wrappedPtr) && wrappedPtr != nil && wrappedPtr.StatusCode != nil {
		return *wrappedPtr.StatusCode, true
	}
	return 0, false
}

func typeKey(err error) string {
	var wrapped azuredevops.WrappedError
	if errors.As(err, &wrapped) && wrapped.TypeKey != nil {
		return *wrapped.TypeKey
	}
	var wrappedPtr *azuredevops.WrappedError
	if errors.As(err, &wrappedPtr) && wrappedPtr != nil && wrappedPtr.TypeKey != nil {
		return *wrappedPtr.TypeKey
	}
	return ""
}

// IsUnauthorized reports an authentication or authorization rejection.
// Never retryable; on the run's first call it is fatal for the whole run.
func IsUnauthorized(err error) bool {
	code, ok := statusCode(err)
	return ok && (code == http.StatusUnauthorized || code == http.StatusForbidden)
}

// IsNotFound reports an unknown organization, project, repository, or path.
func IsNotFound(err error) bool {
	code, ok := statusCode(err)
	return ok && code == http.StatusNotFound
}

// IsTransient reports throttling, timeouts, and 5xx-class responses: worth
// retrying under the run's backoff policy.
func IsTransient(err error) bool {
	code, ok := statusCode(err)
	if !ok {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 504
}

// IsConflict reports a push rejected because the branch head moved (the
// expected old object ID is stale) or a concurrent ref update won.
func IsConflict(err error) bool {
	if code, ok := statusCode(err); ok && code == http.StatusConflict {
		return true
	}
	key := typeKey(err)
	return strings.Contains(key, "GitReferenceStale") || strings.Contains(key, "InvalidGitRefUpdate")
}
