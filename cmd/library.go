package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/desertthunder/ytlib/internal/formatter"
	"github.com/desertthunder/ytlib/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// LibraryTracks lists the dedup index in the requested format.
func (r *Runner) LibraryTracks(ctx context.Context, cmd *cli.Command) error {
	api, err := r.client()
	if err != nil {
		return err
	}
	res, err := api.LibraryTracks(ctx, cmd.String("album"), cmd.String("artist"))
	if err != nil {
		return err
	}

	var data []byte
	switch format := cmd.String("format"); format {
	case "json":
		if out := cmd.String("output"); out == "" {
			return r.writeJSON(res, true)
		}
		return fmt.Errorf("%w: --output supports csv and text", shared.ErrInvalidArgument)
	case "csv":
		if data, err = formatter.ExportToCSV(res.Tracks); err != nil {
			return err
		}
	case "text":
		data = formatter.ExportToText(res.Tracks)
	case "table", "":
		if cmd.String("output") != "" {
			return fmt.Errorf("%w: --output supports csv and text", shared.ErrInvalidArgument)
		}
		w := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tINDEXED\tPATH")
		for _, t := range res.Tracks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.Key, humanize.Time(t.CreatedAt), t.Path)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		return r.writePlainln("%s %s", humanize.Comma(int64(res.Count)), plural(res.Count, "track", "tracks"))
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}

	if out := cmd.String("output"); out != "" {
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		r.logger.Info("library exported", "path", out, "tracks", res.Count, "size", humanize.Bytes(uint64(len(data))))
		return nil
	}
	_, err = r.output.Write(data)
	return err
}
