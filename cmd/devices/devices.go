// Package devices implements the devices command.
package devices

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/conf"

	// Capture backends register themselves.
	_ "github.com/tphakala/threshcorder/internal/audiocore/sources/malgo"
	_ "github.com/tphakala/threshcorder/internal/audiocore/sources/replay"
)

const listTimeout = 10 * time.Second

// Command creates the devices command.
func Command() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Long:  "List the capture devices of a backend. Uses the configured backend unless --backend is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := backend
			if name == "" {
				name = conf.Setting().Device.Backend
			}
			ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
			defer cancel()
			return list(ctx, os.Stdout, name)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "", fmt.Sprintf("Capture backend %v", capture.Backends()))

	return cmd
}

func list(ctx context.Context, w io.Writer, backendName string) error {
	backend, err := capture.NewBackend(backendName, capture.Options{})
	if err != nil {
		return err
	}

	devices, err := backend.Devices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		_, err := fmt.Fprintf(w, "no capture devices found for backend %s\n", backend.Name())
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tNAME\tID\tDEFAULT")
	for _, d := range devices {
		def := ""
		if d.Default {
			def = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, d.Name, d.ID, def)
	}
	return tw.Flush()
}
