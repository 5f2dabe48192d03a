package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dmeireles/writeback/internal/adminapi"
	"github.com/dmeireles/writeback/internal/deadletter"
	"github.com/dmeireles/writeback/internal/logging"
	"github.com/dmeireles/writeback/internal/metrics"
	"github.com/dmeireles/writeback/internal/netmon"
	syncpkg "github.com/dmeireles/writeback/internal/sync"
	"github.com/dmeireles/writeback/internal/sync/trigger"
	"github.com/dmeireles/writeback/internal/tracing"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the write-back daemon",
	Long: `Run the daemon: watch connectivity, drain the queue against the
backend whenever it is reachable, and serve the local admin API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}

		logging.Setup("writebackd", cfg.Log.Level, cfg.Log.Pretty)
		logger := logging.Component("daemon")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		shutdownTracing, err := tracing.Init(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
		if err != nil {
			return err
		}
		defer shutdownTracing(context.Background())

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		var sink syncpkg.DeadLetterSink
		if cfg.DeadLetter.Enabled {
			fileSink, err := deadletter.NewFileSink(cfg.DeadLetter.Path)
			if err != nil {
				return err
			}
			defer fileSink.Close()
			sink = fileSink
		}

		eng := syncpkg.New(st, buildExecutor(cfg), &syncpkg.Config{
			MaxAttempts: cfg.Sync.MaxAttempts,
			DeadLetter:  sink,
		})

		reg := prometheus.NewRegistry()
		metrics.MustRegister(reg)
		if depth, err := st.Count(ctx); err == nil {
			metrics.QueueDepth.Set(float64(depth))
		}

		var monitor netmon.Monitor
		if cfg.Probe.Enabled {
			prober := netmon.NewProber(netmon.ProberConfig{
				URL:      cfg.Probe.URL,
				Interval: cfg.Probe.Interval,
				Timeout:  cfg.Probe.Timeout,
			})
			prober.Start(ctx)
			defer prober.Stop()
			monitor = prober
		} else {
			// No prober: treat the backend as always reachable and let the
			// interval passes find out.
			manual := netmon.NewManual()
			manual.SetOnline(true)
			monitor = manual
		}

		tr := trigger.New(eng, monitor, &trigger.Config{Interval: cfg.Sync.Interval})
		tr.Start(ctx)
		defer tr.Stop()

		var adminSrv *http.Server
		if cfg.Admin.Enabled {
			api := &adminapi.Server{Engine: eng, Store: st, Monitor: monitor, Registry: reg}
			adminSrv = &http.Server{
				Addr:         cfg.Admin.Addr,
				Handler:      api.Routes(),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 60 * time.Second,
			}
			go func() {
				logger.Info().Str("addr", adminSrv.Addr).Msg("admin API listening")
				if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("admin API failed")
				}
			}()
		}

		logger.Info().
			Str("backend", cfg.API.BaseURL).
			Str("store_driver", cfg.Store.Driver).
			Str("data_dir", cfg.Store.Path).
			Int("max_attempts", cfg.Sync.MaxAttempts).
			Msg("write-back daemon started")

		// Graceful stop
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
		<-stop

		logger.Info().Msg("shutting down")
		cancel()
		if adminSrv != nil {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = adminSrv.Shutdown(shutdownCtx)
		}
		logger.Info().Msg("write-back daemon stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
