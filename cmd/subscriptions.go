package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// SubscriptionsList lists subscriptions.
func (r *Runner) SubscriptionsList(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}
	subs, err := api.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(subs, false)
	}
	if len(subs) == 0 {
		return r.writePlain("no subscriptions\n")
	}

	w := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENABLED\tMAX\tLAST SYNC\tURL")
	for _, s := range subs {
		last := "never"
		if s.LastSyncedAt != nil {
			last = humanize.Time(*s.LastSyncedAt)
		}
		limit := "all"
		if s.MaxItems > 0 {
			limit = fmt.Sprint(s.MaxItems)
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%s\n", s.ID, truncate(s.Name, 40), s.Enabled, limit, last, s.URL)
	}
	return w.Flush()
}

// SubscriptionsAdd creates a subscription.
func (r *Runner) SubscriptionsAdd(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}
	url := cmd.StringArg("url")
	if url == "" {
		return fmt.Errorf("%w: url is required", shared.ErrMissingArgument)
	}

	enabled := !cmd.Bool("disabled")
	sub, err := api.CreateSubscription(ctx, models.CreateSubscriptionRequest{
		URL:      url,
		Name:     cmd.String("name"),
		MaxItems: int(cmd.Int("max-items")),
		Enabled:  &enabled,
	})
	if err != nil {
		return err
	}
	return r.writePlain("✓ subscribed to %q (%s)\n", sub.Name, sub.ID)
}

// SubscriptionsUpdate changes the fields given as flags.
func (r *Runner) SubscriptionsUpdate(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: subscription id is required", shared.ErrMissingArgument)
	}

	var patch models.SubscriptionPatch
	if cmd.IsSet("name") {
		name := cmd.String("name")
		patch.Name = &name
	}
	if cmd.IsSet("max-items") {
		n := int(cmd.Int("max-items"))
		patch.MaxItems = &n
	}
	switch {
	case cmd.Bool("enable") && cmd.Bool("disable"):
		return fmt.Errorf("%w: --enable and --disable are exclusive", shared.ErrInvalidArgument)
	case cmd.Bool("enable"):
		v := true
		patch.Enabled = &v
	case cmd.Bool("disable"):
		v := false
		patch.Enabled = &v
	}
	if patch == (models.SubscriptionPatch{}) {
		return fmt.Errorf("%w: nothing to update", shared.ErrMissingArgument)
	}

	sub, err := api.UpdateSubscription(ctx, id, patch)
	if err != nil {
		return err
	}
	return r.writePlain("✓ updated %q (enabled: %t)\n", sub.Name, sub.Enabled)
}

// SubscriptionsRemove deletes a subscription.
func (r *Runner) SubscriptionsRemove(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: subscription id is required", shared.ErrMissingArgument)
	}
	if err := api.DeleteSubscription(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ removed %s\n", id)
}

// SubscriptionsSync syncs one subscription, or all enabled ones.
func (r *Runner) SubscriptionsSync(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}

	if id := cmd.StringArg("id"); id != "" {
		jobID, err := api.SyncSubscription(ctx, id)
		if err != nil {
			if active := shared.ActiveJobID(err); active != "" {
				return fmt.Errorf("%w (see: ytlib jobs show %s)", err, active)
			}
			return err
		}
		return r.writePlain("✓ sync enqueued as job %s\n", jobID)
	}

	res, err := api.SyncAll(ctx)
	if err != nil {
		return err
	}
	for _, id := range res.JobIDs {
		r.writePlain("✓ enqueued %s\n", id)
	}
	for _, c := range res.Conflicts {
		r.writePlain("• %s already syncing in job %s\n", c.SubscriptionID, c.ActiveJobID)
	}
	return r.writePlainln("%d enqueued, %d already active", len(res.JobIDs), len(res.Conflicts))
}

// SchedulerStatus prints the periodic sync loop state.
func (r *Runner) SchedulerStatus(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}
	status, err := api.SchedulerStatus(ctx)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(status, true)
	}

	r.writePlain("Running:  %t\n", status.Running)
	r.writePlain("Enabled:  %t\n", status.Enabled)
	r.writePlain("Interval: %s\n", humanizeMinutes(status.IntervalMinutes))
	if status.LastRunAt != nil {
		r.writePlain("Last run: %s\n", humanize.Time(*status.LastRunAt))
	}
	if status.NextRunAt != nil {
		r.writePlain("Next run: %s\n", humanize.Time(*status.NextRunAt))
	}
	return nil
}

func humanizeMinutes(m int) string {
	switch {
	case m%(24*60) == 0:
		return fmt.Sprintf("%dd", m/(24*60))
	case m%60 == 0:
		return fmt.Sprintf("%dh", m/60)
	default:
		return fmt.Sprintf("%dm", m)
	}
}
