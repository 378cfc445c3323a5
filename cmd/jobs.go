package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// JobsSubmit submits a URL as a new job.
func (r *Runner) JobsSubmit(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}

	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("%w: url is required", shared.ErrMissingArgument)
	}

	req := models.CreateJobRequest{
		URL:         url,
		Kind:        models.JobKind(cmd.String("kind")),
		MaxItems:    int(cmd.Int("max-items")),
		AudioFormat: cmd.String("format"),
	}
	id, err := api.SubmitJob(ctx, req)
	if err != nil {
		return err
	}

	r.logger.Debug("job submitted", "id", id, "url", url)
	if cmd.Bool("watch") {
		return r.runWatcher(ctx, id, false, "")
	}
	return r.writePlain("%s\n", id)
}

// JobsList lists jobs in admission order.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}

	list, err := api.ListJobs(ctx, cmd.Bool("active"))
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(list, false)
	}
	if len(list) == 0 {
		return r.writePlain("no jobs\n")
	}

	w := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tKIND\tPROGRESS\tCREATED\tSOURCE")
	for _, j := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n", j.ID, j.Status, j.Kind, j.Progress, humanize.Time(j.CreatedAt), jobName(j))
	}
	return w.Flush()
}

// JobsShow prints one job with its result.
func (r *Runner) JobsShow(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}

	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}
	job, err := api.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(job, true)
	}

	r.writePlainHeader(jobName(job))
	r.writePlain("ID:        %s\n", job.ID)
	r.writePlain("Kind:      %s\n", job.Kind)
	r.writePlain("Status:    %s (%d%%)\n", job.Status, job.Progress)
	r.writePlain("Created:   %s\n", humanize.Time(job.CreatedAt))
	if job.SubscriptionID != "" {
		r.writePlain("Subscription: %s\n", job.SubscriptionID)
	}
	if job.StartedAt != nil {
		end := time.Now()
		if job.FinishedAt != nil {
			end = *job.FinishedAt
		}
		r.writePlain("Duration:  %s\n", end.Sub(*job.StartedAt).Round(time.Second))
	}
	if job.Error != "" {
		r.writePlain("Error:     %s\n", job.Error)
	}

	if !job.Status.IsFinished() {
		return nil
	}

	res := job.Result
	r.writePlainln("Result: %d succeeded, %d skipped, %d failed", res.Succeeded, res.Skipped, res.Failed)
	for _, p := range res.OutputPaths {
		r.writePlain("  ✓ %s\n", p)
	}
	if res.PlaylistPath != "" {
		r.writePlain("  ♫ %s\n", res.PlaylistPath)
	}
	for _, f := range res.Failures {
		r.writePlain("  ✗ %s: %s\n", f.Title, f.Error)
	}
	return nil
}

// JobsCancel cancels a pending or running job.
func (r *Runner) JobsCancel(ctx context.Context, cmd *cli.Command) error {
	return r.jobAction(ctx, cmd, "cancelled", func(ctx context.Context, id string) error {
		return r.api.CancelJob(ctx, id)
	})
}

// JobsDelete deletes a finished job.
func (r *Runner) JobsDelete(ctx context.Context, cmd *cli.Command) error {
	return r.jobAction(ctx, cmd, "deleted", func(ctx context.Context, id string) error {
		return r.api.DeleteJob(ctx, id)
	})
}

func (r *Runner) jobAction(ctx context.Context, cmd *cli.Command, verb string, fn func(context.Context, string) error) error {
	if _, err := r.client(); err != nil {
		return err
	}
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: job id is required", shared.ErrMissingArgument)
	}
	if err := fn(ctx, id); err != nil {
		if active := shared.ActiveJobID(err); active != "" {
			return fmt.Errorf("%w (see: ytlib jobs show %s)", err, active)
		}
		return err
	}
	return r.writePlain("✓ %s %s\n", verb, id)
}

// JobsClear deletes every finished job.
func (r *Runner) JobsClear(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}
	n, err := api.ClearJobs(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ cleared %s finished %s\n", humanize.Comma(int64(n)), plural(n, "job", "jobs"))
}

func jobName(j *models.Job) string {
	if j.Result.Title != "" {
		return j.Result.Title
	}
	return j.URL
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}
