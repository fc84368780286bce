// Package record implements the record command: one capture session with
// its episode sinks and optional status server.
package record

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/threshcorder/internal/archive"
	"github.com/tphakala/threshcorder/internal/buildinfo"
	"github.com/tphakala/threshcorder/internal/catalog"
	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/diskmanager"
	"github.com/tphakala/threshcorder/internal/httpserver"
	"github.com/tphakala/threshcorder/internal/logger"
	"github.com/tphakala/threshcorder/internal/mqtt"
	"github.com/tphakala/threshcorder/internal/observability"
	"github.com/tphakala/threshcorder/internal/session"
	"github.com/tphakala/threshcorder/internal/telemetry"

	// Capture backends register themselves.
	_ "github.com/tphakala/threshcorder/internal/audiocore/sources/malgo"
	_ "github.com/tphakala/threshcorder/internal/audiocore/sources/replay"
)

const shutdownTimeout = 5 * time.Second

// Command creates the record command.
func Command(build *buildinfo.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record threshold-triggered episodes",
		Long:  "Capture audio continuously and write an episode file each time the input level crosses the threshold.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), conf.Setting(), build)
		},
	}

	// Set up flags specific to the 'record' command
	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags binds record flags to their settings keys.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("backend", "", "Capture backend (malgo, replay, portaudio)")
	flags.String("device", "", "Capture device name")
	flags.String("replay-file", "", "WAV file to read with the replay backend")
	flags.String("output", "", "Directory for episode files")
	flags.Float64("threshold", 0, "Trigger threshold in the detector unit")
	flags.Bool("realtime", false, "Pace replay at wall-clock speed")

	bindings := map[string]string{
		"backend":     "device.backend",
		"device":      "device.name",
		"replay-file": "device.replay_file",
		"output":      "output.directory",
		"threshold":   "detector.threshold",
		"realtime":    "device.replay_realtime",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// exitError reports a session exit code that is not clean.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("session ended with exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// ExitCode returns the process exit code.
func (e *exitError) ExitCode() int { return e.code }

func run(ctx context.Context, settings *conf.Settings, build *buildinfo.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Global().Module("record")

	flush, err := telemetry.Init(&settings.Telemetry, build.Release(conf.AppName))
	if err != nil {
		return err
	}
	defer flush()

	cfg, err := session.FromSettings(settings)
	if err != nil {
		return err
	}

	src := &statusRef{}
	m, err := observability.NewMetrics(src)
	if err != nil {
		return err
	}

	sinks, store, cleanup, err := buildSinks(settings, cfg, m)
	if err != nil {
		return err
	}
	defer cleanup()

	sess, err := session.New(cfg, session.WithSinks(sinks...))
	if err != nil {
		return err
	}
	src.set(sess)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil {
		return &exitError{code: session.ExitFatal, err: err}
	}

	var server *httpserver.Server
	if settings.Web.Enabled {
		opts := []httpserver.Option{httpserver.WithMetrics(m.Handler())}
		if store != nil {
			opts = append(opts, httpserver.WithCatalog(store))
		}
		server = httpserver.New(settings.Web.Listen, sess, opts...)
		if err := server.Start(); err != nil {
			log.Error("status server failed to start", logger.Error(err))
			server = nil
		}
	}

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case <-sess.Done():
	}

	sessErr := sess.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("status server shutdown failed", logger.Error(err))
		}
		cancel()
	}

	stats := sess.Stats()
	log.Info("session ended",
		logger.Uint64("frames_processed", stats.FramesProcessed),
		logger.Uint64("episodes_closed", stats.EpisodesClosed),
		logger.Uint64("episodes_discarded", stats.EpisodesDiscarded),
		logger.Uint64("episodes_forced", stats.EpisodesForced),
		logger.Uint64("overruns", stats.CaptureOverruns+stats.DeviceOverruns),
		logger.Uint64("handoff_drops", stats.HandoffDrops),
		logger.Int("exit_code", sess.ExitCode()))

	if code := sess.ExitCode(); code != session.ExitClean {
		return &exitError{code: code, err: sessErr}
	}
	return nil
}

// buildSinks creates the enabled episode sinks in dispatch order: metrics,
// catalogue, MQTT, archive, retention. The catalogue store is returned for
// the status server; it is nil when the catalogue is disabled.
func buildSinks(settings *conf.Settings, cfg session.Config, m *observability.Metrics) ([]session.Sink, *catalog.Store, func(), error) {
	log := logger.Global().Module("record")
	sinks := []session.Sink{m.Session}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store *catalog.Store
	if settings.Catalog.Enabled {
		var err error
		store, err = catalog.Open(&settings.Catalog)
		if err != nil {
			return nil, nil, func() {}, err
		}
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				log.Warn("failed to close catalog", logger.Error(err))
			}
		})
		sinks = append(sinks, catalog.NewSink(store, cfg.Device.Format, m.Sinks))
	}

	if settings.MQTT.Enabled {
		mqttCfg := mqtt.ConfigFromSettings(&settings.MQTT, buildinfo.ClientID(conf.AppName))
		client, err := mqtt.NewClient(mqttCfg)
		if err != nil {
			cleanup()
			return nil, nil, func() {}, err
		}
		closers = append(closers, client.Disconnect)
		sinks = append(sinks, mqtt.NewSink(client, mqttCfg, m.Sinks))
	}

	if settings.Archive.Enabled {
		opts := []archive.Option{archive.WithMetrics(m.Sinks)}
		if store != nil {
			opts = append(opts, archive.WithMarker(store))
		}
		sink, err := archive.NewSink(archive.ConfigFromSettings(&settings.Archive), opts...)
		if err != nil {
			cleanup()
			return nil, nil, func() {}, err
		}
		sinks = append(sinks, sink)
	}

	if settings.Output.Retention.Enabled {
		var opts []diskmanager.Option
		if store != nil {
			opts = append(opts, diskmanager.WithRemover(store))
		}
		pruner := diskmanager.NewPruner(settings.Output.Directory, []string{".wav", ".pcm"},
			diskmanager.PolicyFromSettings(&settings.Output.Retention), opts...)
		sinks = append(sinks, diskmanager.NewSink(pruner, m.Sinks))
	}

	return sinks, store, cleanup, nil
}

// statusRef lets the metrics collector be created before the session it
// reports on.
type statusRef struct {
	sess *session.Session
}

func (r *statusRef) set(s *session.Session) { r.sess = s }

// Status implements metrics.StatusSource.
func (r *statusRef) Status() session.Status {
	if r.sess == nil {
		return session.Status{}
	}
	return r.sess.Status()
}
