package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/numberone-ai/previewctl/internal/argocd"
	"github.com/numberone-ai/previewctl/internal/models"
	"github.com/numberone-ai/previewctl/internal/preview"
	"github.com/numberone-ai/previewctl/internal/ui"

	"github.com/spf13/cobra"
)

// Exit codes
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitCancelled  = 130
)

// errReported marks a failure whose details were already rendered
var errReported = errors.New("see results above")

// ExitCode maps a command error to the process exit status
func ExitCode(err error) int {
	var verr *models.ValidationError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &verr):
		return ExitValidation
	case errors.Is(err, preview.ErrAborted), errors.Is(err, context.Canceled):
		return ExitCancelled
	default:
		return ExitFailure
	}
}

// Execute runs the command line and returns the exit code
func Execute(ctx context.Context, build Builder, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(build, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		fmt.Fprintln(stderr, ErrorMessage(err))
	}
	return ExitCode(err)
}

type cli struct {
	opts   Options
	build  Builder
	stdout io.Writer
	stderr io.Writer
	app    *App
}

// NewRootCommand returns the previewctl command tree
func NewRootCommand(build Builder, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{build: build, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "previewctl",
		Short:         "Create, watch, inspect and tear down preview environments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &models.ValidationError{Field: "flags", Value: strings.Join(cmd.Flags().Args(), " "), Reason: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&c.opts.ConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/previewctl.toml)")
	flags.BoolVarP(&c.opts.Verbose, "verbose", "v", false, "Debug logging to stderr")
	flags.StringVar(&c.opts.LogFormat, "log-format", "text", "Log format: text or json")
	flags.BoolVar(&c.opts.NoColor, "no-color", false, "Disable colours and the live view")

	root.AddCommand(
		c.createCommand(),
		c.trackCommand(),
		c.monitorCommand(),
		c.inspectCommand(),
		c.deleteCommand(),
	)
	return root
}

// load builds the App once the arguments are known to be valid, so a
// rejected command never touches the config file
func (c *cli) load() error {
	if c.app != nil {
		return nil
	}
	a, err := c.build(c.opts, c.stdout, c.stderr)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

// previewArg accepts exactly one identifier
func previewArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return &models.ValidationError{
			Field:  "arguments",
			Value:  strings.Join(args, " "),
			Reason: "expected exactly one preview identifier",
		}
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func nonNegative(name string, n int) error {
	if n < 0 {
		return &models.ValidationError{Field: name, Value: strconv.Itoa(n), Reason: "must not be negative"}
	}
	return nil
}

// aborted wraps a cancellation so it maps to the cancelled exit code
func aborted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", preview.ErrAborted, err)
	}
	return nil
}

func (c *cli) createCommand() *cobra.Command {
	var (
		repos  []string
		branch string
		noPush bool
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "create-preview <id>",
		Short: "Tag the application repos and push the preview tags",
		Args:  previewArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParsePreviewID(args[0])
			if err != nil {
				return err
			}
			if err := c.load(); err != nil {
				return err
			}
			targets, err := c.app.Config.SelectRepos(repos)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return &models.ValidationError{Field: "repos", Value: "", Reason: "no application repos configured"}
			}

			ctx := cmd.Context()
			batch := c.app.Coordinator().CreateTags(ctx, preview.TagRequest{
				ID:     id,
				Repos:  targets,
				Branch: branch,
				Force:  force,
				DryRun: noPush,
			})
			fmt.Fprint(c.stdout, ui.RenderTagBatch(id, batch))

			if err := aborted(ctx); err != nil {
				return err
			}
			if !batch.OK() {
				return errReported
			}
			if !noPush && batch.Created() > 0 {
				fmt.Fprintln(c.stdout, ui.Hint("follow the deployment with: previewctl monitor-preview "+id.String()))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&repos, "repos", nil, "Repos to tag (default: all application repos)")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to tag (default: each repo's current branch)")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "Create local tags only")
	cmd.Flags().BoolVar(&force, "force", false, "Move existing tags")
	return cmd
}

func (c *cli) trackCommand() *cobra.Command {
	var (
		watch   bool
		timeout int
		pr      uint64
		plain   bool
	)
	cmd := &cobra.Command{
		Use:   "track-preview <id>",
		Short: "Show the deployment status, optionally polling until it settles",
		Args:  previewArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParsePreviewID(args[0])
			if err != nil {
				return err
			}
			if err := nonNegative("timeout", timeout); err != nil {
				return err
			}
			if err := c.load(); err != nil {
				return err
			}
			backend, err := c.app.ArgoCD()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, _, err := c.app.AppFor(ctx, id, pr)
			if err != nil {
				if aerr := aborted(ctx); aerr != nil {
					return aerr
				}
				return err
			}
			url := c.app.Config.AppURL(app)

			if !watch {
				status, err := backend.GetStatus(ctx, app)
				if err != nil {
					if aerr := aborted(ctx); aerr != nil {
						return aerr
					}
					return fmt.Errorf("status of %s: %w", app, err)
				}
				fmt.Fprint(c.stdout, ui.RenderStatus(status, url))
				return nil
			}

			w := c.app.Watcher(backend, 0, timeout)
			_, err = ui.RunWatch(ctx, c.stdout, app, url, c.app.Interactive && !plain,
				func(ctx context.Context, observe func(preview.Observation)) (preview.Result, error) {
					w.OnObserve = observe
					return w.Watch(ctx, app)
				})
			return watchError(err)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until healthy and synced, degraded, missing or timed out")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Deployment timeout in seconds (default from config)")
	cmd.Flags().Uint64Var(&pr, "pr", 0, "Infra PR number (selects the preview-pr-N application)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Line output instead of the live view")
	return cmd
}

func (c *cli) monitorCommand() *cobra.Command {
	var (
		pr              uint64
		timeout         int
		creationTimeout int
		pollOnly        bool
		plain           bool
	)
	cmd := &cobra.Command{
		Use:   "monitor-preview <id>",
		Short: "Wait for the application to appear and reach a terminal state",
		Args:  previewArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParsePreviewID(args[0])
			if err != nil {
				return err
			}
			if err := nonNegative("timeout", timeout); err != nil {
				return err
			}
			if err := nonNegative("creation-timeout", creationTimeout); err != nil {
				return err
			}
			if err := c.load(); err != nil {
				return err
			}
			backend, err := c.app.ArgoCD()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			app, _, err := c.app.AppFor(ctx, id, pr)
			if err != nil {
				if aerr := aborted(ctx); aerr != nil {
					return aerr
				}
				return err
			}
			mode := preview.ModeDelegated
			if pollOnly {
				mode = preview.ModePoll
			}

			w := c.app.Watcher(backend, creationTimeout, timeout)
			c.app.Logger.Info("monitoring deployment", "app", app, "mode", mode)
			_, err = ui.RunWatch(ctx, c.stdout, app, c.app.Config.AppURL(app), c.app.Interactive && !plain,
				func(ctx context.Context, observe func(preview.Observation)) (preview.Result, error) {
					w.OnObserve = observe
					return w.Await(ctx, app, mode)
				})
			return watchError(err)
		},
	}
	cmd.Flags().Uint64Var(&pr, "pr", 0, "Infra PR number (selects the preview-pr-N application)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Deployment timeout in seconds (default from config)")
	cmd.Flags().IntVar(&creationTimeout, "creation-timeout", 0, "Seconds to wait for the application to appear (default from config)")
	cmd.Flags().BoolVar(&pollOnly, "poll-only", false, "Poll status instead of waiting inside the controller")
	cmd.Flags().BoolVar(&plain, "plain", false, "Line output instead of the live view")
	return cmd
}

// watchError keeps the watch failure for the exit code; the watch view has
// already shown it
func watchError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

func parseKind(s string) (preview.IdentifierKind, error) {
	for _, k := range preview.IdentifierKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &models.ValidationError{Field: "from", Value: s, Reason: "must be one of " + kindList()}
}

// checkIdentifier rejects malformed identifiers of the kinds that resolve
// without any lookup
func checkIdentifier(ctx context.Context, kind preview.IdentifierKind, value string) error {
	switch kind {
	case preview.KindID, preview.KindGitTag, preview.KindInfraBranch:
		_, err := preview.NewResolver(nil, nil, nil, preview.ResolverConfig{}, nil).Resolve(ctx, kind, value)
		return err
	}
	return nil
}

func kindList() string {
	kinds := make([]string, len(preview.IdentifierKinds))
	for i, k := range preview.IdentifierKinds {
		kinds[i] = string(k)
	}
	return strings.Join(kinds, ", ")
}

func (c *cli) inspectCommand() *cobra.Command {
	var (
		from   string
		format string
		pr     uint64
	)
	cmd := &cobra.Command{
		Use:   "inspect-preview <identifier>",
		Short: "Report every artifact of a preview and whether it needs cleanup",
		Args:  previewArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(from)
			if err != nil {
				return err
			}
			f, err := ui.ParseFormat(format)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := checkIdentifier(ctx, kind, args[0]); err != nil {
				return err
			}
			if err := c.load(); err != nil {
				return err
			}

			res, err := c.app.Resolver().Resolve(ctx, kind, args[0])
			if err != nil {
				return err
			}
			if pr == 0 {
				pr = res.PRNumber
			}

			var status argocd.StatusClient
			if backend, err := c.app.ArgoCD(); err != nil {
				status = unavailableArgoCD{err: err}
			} else {
				status = backend
			}

			report := c.app.Inspector(status).Inspect(ctx, res.ID, preview.InspectOptions{PRNumber: pr})
			if err := aborted(ctx); err != nil {
				return err
			}
			out, err := ui.RenderReport(report, f)
			if err != nil {
				return err
			}
			fmt.Fprint(c.stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", string(preview.KindID), "Identifier kind: "+kindList())
	cmd.Flags().StringVar(&format, "format", string(ui.FormatTerminal), "Output format: terminal, json, markdown or yaml")
	cmd.Flags().Uint64Var(&pr, "pr", 0, "Infra PR number (selects the preview-pr-N application)")
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	var (
		from   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "delete-preview <identifier>",
		Short: "Close the infra PR and delete the preview tags",
		Args:  previewArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(from)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := checkIdentifier(ctx, kind, args[0]); err != nil {
				return err
			}
			if err := c.load(); err != nil {
				return err
			}

			res, err := c.app.Resolver().Resolve(ctx, kind, args[0])
			if err != nil {
				return err
			}

			report := c.app.Cleaner().Delete(ctx, res.ID, preview.DeleteOptions{DryRun: dryRun})
			fmt.Fprint(c.stdout, ui.RenderCleanup(report))
			if err := aborted(ctx); err != nil {
				return err
			}
			if report.Failed() > 0 {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", string(preview.KindID), "Identifier kind: "+kindList())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be removed")
	return cmd
}
