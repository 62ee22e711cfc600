package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/numberone-ai/previewctl/internal/argocd"
	"github.com/numberone-ai/previewctl/internal/config"
	"github.com/numberone-ai/previewctl/internal/execrun"
	"github.com/numberone-ai/previewctl/internal/git"
	"github.com/numberone-ai/previewctl/internal/github"
	"github.com/numberone-ai/previewctl/internal/models"
	"github.com/numberone-ai/previewctl/internal/preview"
	"github.com/numberone-ai/previewctl/internal/testutil"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

const testID = "docproc-extraction-pipeline"

// fixture is an App backed by real local repos and a scripted gh/argocd runner
type fixture struct {
	app    *App
	app1   *testutil.Repo
	infra  *testutil.Repo
	runner *execrun.Fake
	// argocd answers "argocd app get"
	argocd func(call execrun.Call) (execrun.Result, error)
	// gh replaces the default PR answers when set
	gh func(call execrun.Call) (execrun.Result, error)
	// builds counts how often the App was requested
	builds int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{app1: testutil.InitRepo(t), infra: testutil.InitRepo(t)}
	f.argocd = func(call execrun.Call) (execrun.Result, error) {
		return execrun.Fail(call, "rpc error: code = NotFound desc = applications.argoproj.io \"x\" not found")
	}
	f.runner = &execrun.Fake{Handler: func(call execrun.Call) (execrun.Result, error) {
		switch {
		case call.Name == "argocd":
			return f.argocd(call)
		case f.gh != nil:
			return f.gh(call)
		case len(call.Args) > 1 && call.Args[1] == "list":
			return execrun.Stdout("[]")
		case len(call.Args) > 1 && call.Args[1] == "view":
			return execrun.Fail(call, "GraphQL: Could not resolve to a PullRequest with the number of 1.")
		}
		return execrun.Stdout("")
	}}

	cfg := config.DefaultConfig()
	cfg.Workspace.Root = ""
	cfg.Repos = []models.RepoTarget{
		{Name: "dem2", Path: f.app1.Path, DefaultBranch: "master", Role: models.RoleApp},
		{Name: "dem2-infra", Path: f.infra.Path, DefaultBranch: "master", Role: models.RoleInfra},
	}
	cfg.Watch.PollInterval = config.Duration(1)

	logger := slog.New(slog.DiscardHandler)
	f.app = &App{
		Config: cfg,
		Logger: logger,
		VCS:    git.NewLocal(),
		GitHub: github.NewClient(cfg.GitHub.Org, f.runner, logger),
		Clock:  preview.RealClock,
	}
	f.app.SetArgoCD(argocd.NewCLIClient("", false, f.runner, logger))
	return f
}

func (f *fixture) build(Options, io.Writer, io.Writer) (*App, error) {
	f.builds++
	return f.app, nil
}

func (f *fixture) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(t.Context(), f.build, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func appDoc(health, sync string) string {
	return `{"metadata":{"name":"x"},"status":{"health":{"status":"` + health + `"},"sync":{"status":"` + sync + `"}}}`
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&models.ValidationError{Field: "preview id"}, ExitValidation},
		{fmt.Errorf("wrap: %w", &models.ValidationError{}), ExitValidation},
		{fmt.Errorf("%w: %w", preview.ErrAborted, context.Canceled), ExitCancelled},
		{context.Canceled, ExitCancelled},
		{errReported, ExitFailure},
		{&preview.DeploymentDegradedError{App: "x"}, ExitFailure},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.want {
			t.Errorf("ExitCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, true, "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hello", "app", "preview-pr-91")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil || line["app"] != "preview-pr-91" {
		t.Fatalf("json log line %q: %v", buf.String(), err)
	}

	var verr *models.ValidationError
	if _, err := NewLogger(&buf, false, "xml"); !errors.As(err, &verr) {
		t.Fatalf("NewLogger(xml) error = %v", err)
	}
}

func TestValidationErrorsExitTwo(t *testing.T) {
	cases := []struct {
		args []string
		// needsConfig is set when validation depends on the configured repos
		needsConfig bool
	}{
		{[]string{"create-preview", "Not_Valid"}, false},
		{[]string{"create-preview"}, false},
		{[]string{"create-preview", testID, "--repos", "unknown-repo"}, true},
		{[]string{"inspect-preview", testID, "--format", "xml"}, false},
		{[]string{"inspect-preview", testID, "--from", "sha"}, false},
		{[]string{"inspect-preview", "Bad_ID"}, false},
		{[]string{"delete-preview", "release-1", "--from", "git-tag"}, false},
		{[]string{"track-preview", testID, "--timeout", "-1"}, false},
		{[]string{"track-preview", "Bad_ID"}, false},
		{[]string{"monitor-preview", testID, "--no-such-flag"}, false},
	}
	for _, c := range cases {
		f := newFixture(t)
		code, _, stderr := f.run(t, c.args...)
		if code != ExitValidation {
			t.Errorf("%v: exit %d, want %d (stderr %q)", c.args, code, ExitValidation, stderr)
		}
		if len(f.runner.Calls()) != 0 {
			t.Errorf("%v: validation failure ran %v", c.args, f.runner.Calls())
		}
		if !c.needsConfig && f.builds != 0 {
			t.Errorf("%v: app built before the arguments were validated", c.args)
		}
	}
}

func TestRejectedArgumentsLeaveConfigUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "previewctl.toml")
	t.Setenv(config.EnvConfigPath, path)

	for _, args := range [][]string{
		{"create-preview", "Not_Valid"},
		{"monitor-preview", "Not_Valid"},
		{"inspect-preview", "preview/x", "--from", "git-tag"},
	} {
		var stdout, stderr bytes.Buffer
		if code := Execute(t.Context(), Build, args, &stdout, &stderr); code != ExitValidation {
			t.Fatalf("%v: exit %d, want %d (stderr %q)", args, code, ExitValidation, stderr.String())
		}
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("%v: default config written to %s (stat err %v)", args, path, err)
		}
	}
}

func TestCreatePreviewNoPush(t *testing.T) {
	f := newFixture(t)
	code, stdout, _ := f.run(t, "create-preview", testID, "--no-push")
	if code != ExitOK {
		t.Fatalf("exit %d\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "1 of 1 repos succeeded") || !strings.Contains(stdout, "local only") {
		t.Fatalf("output:\n%s", stdout)
	}

	info, err := git.NewLocal().TagInfo(f.app1.Path, "preview-"+testID)
	if err != nil || !info.Exists || info.Commit != f.app1.Head() {
		t.Fatalf("tag not created at HEAD: %+v, %v", info, err)
	}
	// the infra repo is never tagged
	info, err = git.NewLocal().TagInfo(f.infra.Path, "preview-"+testID)
	if err != nil || info.Exists {
		t.Fatalf("infra repo tagged: %+v, %v", info, err)
	}

	code, stdout, _ = f.run(t, "create-preview", testID, "--no-push")
	if code != ExitOK || !strings.Contains(stdout, "tag already exists") {
		t.Fatalf("second run exit %d:\n%s", code, stdout)
	}
}

func TestCreatePreviewUnknownBranchFails(t *testing.T) {
	f := newFixture(t)
	code, stdout, stderr := f.run(t, "create-preview", testID, "--no-push", "--branch", "feature/missing")
	if code != ExitFailure {
		t.Fatalf("exit %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(stdout, "0 of 1 repos succeeded") {
		t.Fatalf("output:\n%s", stdout)
	}
	if stderr != "" {
		t.Fatalf("failure was already rendered, stderr = %q", stderr)
	}
}

func TestInspectPreviewJSON(t *testing.T) {
	f := newFixture(t)
	if code, out, _ := f.run(t, "create-preview", testID, "--no-push"); code != ExitOK {
		t.Fatalf("create exit %d\n%s", code, out)
	}

	code, stdout, _ := f.run(t, "inspect-preview", "preview-"+testID, "--from", "git-tag", "--format", "json")
	if code != ExitOK {
		t.Fatalf("exit %d\n%s", code, stdout)
	}
	var report models.PreviewReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if report.ID != testID || len(report.Repos) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if !report.Repos[0].Tag.Exists {
		t.Fatal("tag should be reported")
	}
	if report.Deployment.App != "preview-"+testID || report.Deployment.Exists {
		t.Fatalf("deployment = %+v", report.Deployment)
	}
	if report.Recommendation.Verdict != models.VerdictNeedsCleanup {
		t.Fatalf("verdict = %s", report.Recommendation.Verdict)
	}
}

func TestInspectPreviewWithoutController(t *testing.T) {
	f := newFixture(t)
	f.app.argoErr = errors.New("no kubeconfig")

	code, stdout, _ := f.run(t, "inspect-preview", testID, "--format", "yaml")
	if code != ExitOK {
		t.Fatalf("exit %d\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "unavailable: no kubeconfig") || !strings.Contains(stdout, "verdict: incomplete") {
		t.Fatalf("output:\n%s", stdout)
	}
}

func TestInspectPreviewFromNamespace(t *testing.T) {
	f := newFixture(t)
	code, stdout, _ := f.run(t, "inspect-preview", "tusdi-preview-91", "--from", "gke-namespace", "--format", "json")
	if code != ExitOK {
		t.Fatalf("exit %d\n%s", code, stdout)
	}
	var report models.PreviewReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	// the infra PR is gone, so its number stands in for the id
	if report.ID != "91" || report.Deployment.App != "preview-pr-91" || report.Deployment.InfraPR != 91 {
		t.Fatalf("report = %+v", report)
	}
}

func TestInspectPreviewFromBranchWithoutPR(t *testing.T) {
	f := newFixture(t)
	code, _, stderr := f.run(t, "inspect-preview", "feature/search", "--from", "git-branch")
	if code != ExitFailure {
		t.Fatalf("exit %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(stderr, "no PR with head feature/search") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestDeletePreviewDryRun(t *testing.T) {
	f := newFixture(t)
	f.run(t, "create-preview", testID, "--no-push")

	code, stdout, _ := f.run(t, "delete-preview", testID, "--dry-run")
	if code != ExitOK {
		t.Fatalf("exit %d\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "(dry run)") {
		t.Fatalf("output:\n%s", stdout)
	}
	info, _ := git.NewLocal().TagInfo(f.app1.Path, "preview-"+testID)
	if !info.Exists {
		t.Fatal("dry run deleted the tag")
	}
	for _, call := range f.runner.Calls() {
		if strings.Contains(call.String(), "pr close") {
			t.Fatalf("dry run closed a PR: %s", call)
		}
	}
}

func TestTrackPreviewStatus(t *testing.T) {
	f := newFixture(t)
	f.argocd = func(call execrun.Call) (execrun.Result, error) {
		return execrun.Stdout(appDoc("Progressing", "OutOfSync"))
	}

	code, stdout, _ := f.run(t, "track-preview", testID, "--pr", "91")
	if code != ExitOK {
		t.Fatalf("exit %d\n%s", code, stdout)
	}
	if !strings.Contains(stdout, "APP preview-pr-91") || !strings.Contains(stdout, "Progressing") {
		t.Fatalf("output:\n%s", stdout)
	}
}

func TestTrackPreviewMissingApp(t *testing.T) {
	f := newFixture(t)
	code, _, stderr := f.run(t, "track-preview", testID)
	if code != ExitFailure {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stderr, "application not found") {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestTrackPreviewFailsWhenPRServiceUnreachable(t *testing.T) {
	for _, cmd := range []string{"track-preview", "monitor-preview"} {
		f := newFixture(t)
		f.gh = func(call execrun.Call) (execrun.Result, error) {
			return execrun.Fail(call, "To get started with GitHub CLI, please run:  gh auth login")
		}
		code, stdout, stderr := f.run(t, cmd, testID, "--plain")
		if code != ExitFailure {
			t.Fatalf("%s: exit %d, want %d\n%s", cmd, code, ExitFailure, stdout)
		}
		if !strings.Contains(stderr, "pass --pr N") || !strings.Contains(stderr, "gh auth login") {
			t.Fatalf("%s: stderr = %q", cmd, stderr)
		}
		for _, call := range f.runner.Calls() {
			if call.Name == "argocd" {
				t.Fatalf("%s: queried the controller with a guessed name: %s", cmd, call)
			}
		}
	}
}

func TestInspectPreviewUnreachablePRService(t *testing.T) {
	f := newFixture(t)
	f.gh = func(call execrun.Call) (execrun.Result, error) {
		return execrun.Fail(call, "To get started with GitHub CLI, please run:  gh auth login")
	}
	code, stdout, _ := f.run(t, "inspect-preview", testID, "--format", "json")
	if code != ExitOK {
		t.Fatalf("exit %d\n%s", code, stdout)
	}
	var report models.PreviewReport
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout)
	}
	if report.Deployment.Exists || !strings.HasPrefix(report.Deployment.Unavailable, "infra PR lookup unavailable") {
		t.Fatalf("deployment = %+v", report.Deployment)
	}
	if report.Recommendation.Verdict != models.VerdictIncomplete {
		t.Fatalf("verdict = %s, want incomplete", report.Recommendation.Verdict)
	}
}

func TestMonitorPreviewPollOnly(t *testing.T) {
	cases := []struct {
		health, sync string
		want         int
		text         string
	}{
		{"Healthy", "Synced", ExitOK, "Healthy and Synced"},
		{"Degraded", "Synced", ExitFailure, "is Degraded"},
	}
	for _, c := range cases {
		f := newFixture(t)
		f.argocd = func(call execrun.Call) (execrun.Result, error) {
			return execrun.Stdout(appDoc(c.health, c.sync))
		}
		code, stdout, stderr := f.run(t, "monitor-preview", testID, "--pr", "91", "--poll-only", "--plain")
		if code != c.want {
			t.Errorf("%s/%s: exit %d, want %d\n%s", c.health, c.sync, code, c.want, stdout)
		}
		if !strings.Contains(stdout, c.text) {
			t.Errorf("%s/%s: output missing %q:\n%s", c.health, c.sync, c.text, stdout)
		}
		if stderr != "" {
			t.Errorf("%s/%s: watch result printed twice: %q", c.health, c.sync, stderr)
		}
	}
}

func TestMonitorPreviewCreationTimeout(t *testing.T) {
	f := newFixture(t)
	f.app.Config.Watch.PollInterval = config.Duration(200 * time.Millisecond)

	code, stdout, stderr := f.run(t, "monitor-preview", testID, "--pr", "91", "--creation-timeout", "1", "--poll-only", "--plain")
	if code != ExitFailure {
		t.Fatalf("exit %d, want %d\n%s", code, ExitFailure, stdout)
	}
	if !strings.Contains(stdout, "was not created") {
		t.Fatalf("output missing creation timeout:\n%s", stdout)
	}
	if stderr != "" {
		t.Fatalf("watch result printed twice: %q", stderr)
	}
	for _, call := range f.runner.Calls() {
		if call.Name == "argocd" && call.Args[1] != "get" {
			t.Fatalf("deployment wait started for a missing application: %s", call)
		}
	}
}

func TestMonitorPreviewCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var stdout, stderr bytes.Buffer
	code := Execute(ctx, f.build, []string{"monitor-preview", testID, "--pr", "91", "--plain"}, &stdout, &stderr)
	if code != ExitCancelled {
		t.Fatalf("exit %d, want %d\n%s", code, ExitCancelled, stdout.String())
	}
}
