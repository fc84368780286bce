// Package episodes implements the episodes command.
package episodes

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/threshcorder/internal/catalog"
	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/errors"
)

// Command creates the episodes command.
func Command() *cobra.Command {
	var opts catalog.ListOptions
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "List recorded episodes",
		Long:  "List episodes from the catalogue, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.Setting()
			if !settings.Catalog.Enabled {
				return errors.Newf("episode catalog is disabled; set catalog.enabled in the config").
					Component("episodes").
					Category(errors.CategoryConfiguration).
					Build()
			}
			if since > 0 {
				opts.Since = time.Now().Add(-since)
			}

			store, err := catalog.Open(&settings.Catalog)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return list(cmd.Context(), os.Stdout, store, opts)
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "session", "", "Only list episodes of this session")
	cmd.Flags().DurationVar(&since, "since", 0, "Only list episodes started within this duration, e.g. 24h")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of episodes")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of episodes to skip")

	return cmd
}

// lister is implemented by *catalog.Store.
type lister interface {
	List(ctx context.Context, opts catalog.ListOptions) ([]catalog.Episode, error)
}

func list(ctx context.Context, w io.Writer, store lister, opts catalog.ListOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	eps, err := store.List(ctx, opts)
	if err != nil {
		return err
	}
	if len(eps) == 0 {
		_, err := fmt.Fprintln(w, "no episodes")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tEPISODE\tSTARTED\tDURATION\tBYTES\tFLAGS\tPATH")
	for i := range eps {
		ep := &eps[i]
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			shortID(ep.SessionID), ep.EpisodeID,
			ep.StartedAt.Local().Format(time.DateTime),
			ep.Duration().Round(time.Millisecond),
			ep.Bytes, flags(ep), ep.Path)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func flags(ep *catalog.Episode) string {
	f := ""
	if ep.Forced {
		f += "F"
	}
	if ep.Degraded {
		f += "D"
	}
	if ep.Error != "" {
		f += "E"
	}
	if ep.Archived {
		f += "A"
	}
	if f == "" {
		return "-"
	}
	return f
}
