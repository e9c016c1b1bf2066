package azdo

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/core"
	"github.com/microsoft/azure-devops-go-api/azuredevops/v7/git"
)

func TestOrganizationURL(t *testing.T) {
	tests := []struct {
		base string
		org  string
		want string
	}{
		{"", "contoso", "https://dev.azure.com/contoso"},
		{"https://dev.azure.com", "contoso", "https://dev.azure.com/contoso"},
		{"https://dev.azure.com/", "contoso", "https://dev.azure.com/contoso"},
		{"https://ado.internal.example", "ops", "https://ado.internal.example/ops"},
	}
	for _, tt := range tests {
		if got := OrganizationURL(tt.base, tt.org); got != tt.want {
			t.Errorf("OrganizationURL(%q, %q) = %q, want %q", tt.base, tt.org, got, tt.want)
		}
	}
}

func TestNewClient_NilContextReturnsError(t *testing.T) {
	var nilCtx context.Context
	_, err := NewClient(nilCtx, "https://dev.azure.com/contoso", Credential{Token: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ctx is nil") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewClient_EmptyCredentialReturnsError(t *testing.T) {
	_, err := NewClient(context.Background(), "https://dev.azure.com/contoso", Credential{})
	if err == nil {
		t.Fatal("expected error for missing credential")
	}
}

func TestRepoRefFrom(t *testing.T) {
	repoID := uuid.New()
	projID := uuid.New()
	name := "infra"
	projName := "Platform"
	branch := "refs/heads/main"

	ref := repoRefFrom(git.GitRepository{
		Id:            &repoID,
		Name:          &name,
		DefaultBranch: &branch,
		Project:       &core.TeamProjectReference{Id: &projID, Name: &projName},
	})

	if ref.ID != repoID || ref.Name != "infra" {
		t.Errorf("unexpected repo ref: %+v", ref)
	}
	if ref.Project.ID != projID || ref.Project.Name != "Platform" {
		t.Errorf("unexpected project ref: %+v", ref.Project)
	}
	if ref.DefaultBranch != "main" {
		t.Errorf("default branch must be the short name, got %q", ref.DefaultBranch)
	}
}

func TestRepoRefFrom_BareRepository(t *testing.T) {
	name := "empty"
	ref := repoRefFrom(git.GitRepository{Name: &name})
	if ref.DefaultBranch != "" {
		t.Errorf("bare repo must have empty default branch, got %q", ref.DefaultBranch)
	}
}

func TestLogCall_Verbose(t *testing.T) {
	var buf bytes.Buffer
	c := &Client{verbose: true, logw: &buf}

	done := c.logCall("list projects")
	done(nil)
	out := buf.String()
	if !strings.Contains(out, "[verbose] azdo api: list projects") {
		t.Fatalf("expected start line, got %q", out)
	}
	if !strings.Contains(out, "ok (") {
		t.Fatalf("expected completion line, got %q", out)
	}

	buf.Reset()
	done = c.logCall("push")
	done(errors.New("boom"))
	if !strings.Contains(buf.String(), "error after") {
		t.Fatalf("expected error line, got %q", buf.String())
	}
}

func TestLogCall_QuietByDefault(t *testing.T) {
	var buf bytes.Buffer
	c := &Client{logw: &buf}

	done := c.logCall("list projects")
	done(nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
