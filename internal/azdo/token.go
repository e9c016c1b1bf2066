package azdo

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

type CredentialSource string

const (
	CredentialSourceExplicit CredentialSource = "explicit"
	CredentialSourceEnv      CredentialSource = "env:AZURE_DEVOPS_EXT_PAT"
	CredentialSourceAzureCLI CredentialSource = "az"
)

// adoResourceID is the Azure DevOps service principal; az tokens must be
// requested against it to be accepted by dev.azure.com.
const adoResourceID = "499b84ac-1321-427f-aa17-267ca6975798"

// Credential is a resolved access token plus where it came from. The source
// decides the Authorization scheme (PAT sources use basic auth, the az CLI
// yields an Entra bearer token).
type Credential struct {
	Token  string
	Source CredentialSource
}

// ResolveCredential resolves an Azure DevOps credential.
//
// Precedence:
//  1. provided (if non-empty), treated as a PAT
//  2. AZURE_DEVOPS_EXT_PAT env var (the same variable the az devops
//     extension reads)
//  3. Azure CLI: `az account get-access-token` for the Azure DevOps resource
//
// It never prints the token.
func ResolveCredential(ctx context.Context, provided string) (Credential, error) {
	if tok := strings.TrimSpace(provided); tok != "" {
		return Credential{Token: tok, Source: CredentialSourceExplicit}, nil
	}

	if env := strings.TrimSpace(os.Getenv("AZURE_DEVOPS_EXT_PAT")); env != "" {
		return Credential{Token: env, Source: CredentialSourceEnv}, nil
	}

	tok, ok, err := tokenFromAzureCLI(ctx)
	if err != nil {
		return Credential{}, err
	}
	if ok {
		return Credential{Token: tok, Source: CredentialSourceAzureCLI}, nil
	}
	return Credential{}, nil
}

func tokenFromAzureCLI(ctx context.Context) (token string, ok bool, err error) {
	_, lookErr := exec.LookPath("az")
	if lookErr != nil {
		return "", false, nil
	}

	// Keep this bounded so a broken az config or credential helper doesn't
	// hang runs. Token minting can hit the network, so allow more than a
	// couple of seconds.
	cmdCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "az", "account", "get-access-token",
		"--resource", adoResourceID, "--output", "json")
	out, runErr := cmd.Output()
	if runErr != nil {
		// If the context was canceled or timed out, surface that to callers.
		if cmdCtx.Err() != nil {
			return "", false, cmdCtx.Err()
		}
		// az present but not logged in, or otherwise failing: treat as "no
		// credential". The raw az output is not surfaced to avoid leaking
		// account context.
		return "", false, nil
	}

	var payload struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return "", false, nil
	}

	tok := strings.TrimSpace(payload.AccessToken)
	if tok == "" {
		return "", false, nil
	}
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", false, errors.New("invalid token returned by az: contains whitespace")
	}
	return tok, true, nil
}
