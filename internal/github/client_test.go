package github

import (
	"errors"
	"strings"
	"testing"

	"github.com/numberone-ai/previewctl/internal/execrun"
	"github.com/numberone-ai/previewctl/internal/models"
)

const prJSON = `{
  "number": 91,
  "title": "Preview: docproc-extraction-pipeline",
  "state": "OPEN",
  "headRefName": "preview/docproc-extraction-pipeline",
  "baseRefName": "main",
  "url": "https://github.com/NumberOne-AI/dem2-infra/pull/91",
  "author": {"login": "octocat"},
  "createdAt": "2025-11-02T10:00:00Z",
  "mergedAt": null,
  "closedAt": null
}`

func TestGetPRDecodesRecord(t *testing.T) {
	fake := &execrun.Fake{Handler: func(c execrun.Call) (execrun.Result, error) {
		return execrun.Stdout(prJSON)
	}}
	client := NewClient("NumberOne-AI", fake, nil)

	pr, err := client.GetPR(t.Context(), "dem2-infra", 91)
	if err != nil {
		t.Fatalf("GetPR: %v", err)
	}
	if pr.Number != 91 || pr.State != models.PROpen || pr.Author != "octocat" || pr.Repo != "dem2-infra" {
		t.Fatalf("unexpected record: %+v", pr)
	}
	if pr.MergedAt != nil || pr.ClosedAt != nil {
		t.Fatal("null timestamps should stay nil")
	}

	call := fake.Calls()[0].String()
	if !strings.Contains(call, "pr view 91 --repo NumberOne-AI/dem2-infra --json ") {
		t.Fatalf("unexpected call %q", call)
	}
}

func TestGetPRNotFoundIsDistinctFromUnreachable(t *testing.T) {
	cases := []struct {
		name        string
		handler     func(execrun.Call) (execrun.Result, error)
		notFound    bool
		unreachable bool
	}{
		{
			name: "missing PR",
			handler: func(c execrun.Call) (execrun.Result, error) {
				return execrun.Fail(c, "GraphQL: Could not resolve to a PullRequest with the number of 9999.")
			},
			notFound: true,
		},
		{
			name: "not authenticated",
			handler: func(c execrun.Call) (execrun.Result, error) {
				return execrun.Fail(c, "To get started with GitHub CLI, please run:  gh auth login")
			},
			unreachable: true,
		},
		{
			name: "gh not installed",
			handler: func(c execrun.Call) (execrun.Result, error) {
				return execrun.Result{}, &execrun.NotInstalledError{Name: "gh"}
			},
			unreachable: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewClient("NumberOne-AI", &execrun.Fake{Handler: tc.handler}, nil)
			_, err := client.GetPR(t.Context(), "dem2-infra", 9999)

			if got := errors.Is(err, ErrPRNotFound); got != tc.notFound {
				t.Fatalf("errors.Is(ErrPRNotFound) = %v for %v", got, err)
			}
			var unreachable *UnreachableError
			if got := errors.As(err, &unreachable); got != tc.unreachable {
				t.Fatalf("errors.As(UnreachableError) = %v for %v", got, err)
			}
		})
	}
}

func TestListPRsPassesStateAndHead(t *testing.T) {
	fake := &execrun.Fake{Handler: func(c execrun.Call) (execrun.Result, error) {
		return execrun.Stdout("[" + prJSON + "]")
	}}
	client := NewClient("NumberOne-AI", fake, nil)

	prs, err := client.ListPRs(t.Context(), "dem2-infra", "preview/docproc-extraction-pipeline", StateAll)
	if err != nil {
		t.Fatalf("ListPRs: %v", err)
	}
	if len(prs) != 1 || prs[0].HeadBranch != "preview/docproc-extraction-pipeline" {
		t.Fatalf("unexpected prs: %+v", prs)
	}
	call := fake.Calls()[0].String()
	for _, want := range []string{"--state all", "--head preview/docproc-extraction-pipeline", "--repo NumberOne-AI/dem2-infra"} {
		if !strings.Contains(call, want) {
			t.Fatalf("call %q missing %q", call, want)
		}
	}
}

func TestListPRsEmpty(t *testing.T) {
	fake := &execrun.Fake{Handler: func(c execrun.Call) (execrun.Result, error) {
		return execrun.Stdout("[]")
	}}
	prs, err := NewClient("NumberOne-AI", fake, nil).ListPRs(t.Context(), "dem2", "", StateOpen)
	if err != nil || len(prs) != 0 {
		t.Fatalf("ListPRs = %v, %v", prs, err)
	}
}

func TestClosePRToleratesAlreadyClosed(t *testing.T) {
	fake := &execrun.Fake{Handler: func(c execrun.Call) (execrun.Result, error) {
		return execrun.Fail(c, "! Pull request #91 (Preview) is already closed")
	}}
	if err := NewClient("NumberOne-AI", fake, nil).ClosePR(t.Context(), "dem2-infra", 91, "bye"); err != nil {
		t.Fatalf("ClosePR: %v", err)
	}
	if call := fake.Calls()[0].String(); !strings.Contains(call, "pr close 91") || !strings.Contains(call, "--comment bye") {
		t.Fatalf("unexpected call %q", call)
	}
}
