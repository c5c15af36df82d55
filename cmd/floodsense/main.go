// Command floodsense runs the flood-risk prediction and alert dispatch
// engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/floodsense/floodsense-go/internal/alerting"
	"github.com/floodsense/floodsense-go/internal/conf"
	"github.com/floodsense/floodsense-go/internal/datastore"
	"github.com/floodsense/floodsense-go/internal/datastore/entities"
	"github.com/floodsense/floodsense-go/internal/datastore/repository"
	"github.com/floodsense/floodsense-go/internal/engine"
	"github.com/floodsense/floodsense-go/internal/ensemble"
	"github.com/floodsense/floodsense-go/internal/features"
	"github.com/floodsense/floodsense-go/internal/ingest"
	"github.com/floodsense/floodsense-go/internal/logger"
	"github.com/floodsense/floodsense-go/internal/notification"
	"github.com/floodsense/floodsense-go/internal/telemetry"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "floodsense",
		Short:         "Flood-risk prediction and alert dispatch engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config file")
	root.AddCommand(serveCommand(&configFile))
	root.AddCommand(evaluateCommand(&configFile))
	root.AddCommand(statsCommand(&configFile))
	return root
}

// app holds the wired service graph.
type app struct {
	settings   *conf.Settings
	log        logger.Logger
	db         *gorm.DB
	eng        *engine.Engine
	scheduler  *engine.Scheduler
	dispatcher *alerting.Dispatcher
	ledger     *alerting.Ledger
	bridge     *ingest.MQTTBridge
}

func buildApp(configFile string) (*app, error) {
	settings, err := conf.Load(configFile)
	if err != nil {
		return nil, err
	}
	log := logger.NewSlogLogger(os.Stdout, logger.LogLevel(settings.LogLevel), nil)

	db, err := datastore.Open(&settings.Database)
	if err != nil {
		return nil, err
	}

	regions := repository.NewRegionRepository(db)
	observations := repository.NewObservationRepository(db)
	predictions := repository.NewPredictionRepository(db)
	subscriptions := repository.NewSubscriptionRepository(db)
	events := repository.NewAlertEventRepository(db)

	metrics := telemetry.NewMetrics()
	clock := clockwork.NewRealClock()

	registry := notification.NewRegistry()
	if err := registerNotifiers(registry, &settings.Notify); err != nil {
		return nil, err
	}

	aggregator := features.NewAggregator(observations, regions, &settings.Features, log)
	ens := ensemble.New(&settings.Ensemble, log, ensemble.DefaultScorers()...)
	evaluator := alerting.NewEvaluator(subscriptions, events, metrics, log)
	dispatcher := alerting.NewDispatcher(events, registry, metrics, settings.Dispatch, clock, log)
	ledger := alerting.NewLedger(events)

	eng := engine.New(aggregator, ens, predictions, evaluator, ledger, dispatcher, metrics, settings.Engine, clock, log)
	scheduler := engine.NewScheduler(eng, regions, settings.Engine, clock, log)

	a := &app{
		settings:   settings,
		log:        log,
		db:         db,
		eng:        eng,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		ledger:     ledger,
	}
	if settings.Ingest.Enabled {
		recorder := ingest.NewRecorder(observations, regions, log)
		a.bridge = ingest.NewMQTTBridge(recorder, settings.Ingest, log)
	}
	return a, nil
}

// registerNotifiers binds a shoutrrr notifier to every channel with a
// configured service URL. Channels without one stay unregistered; their
// events fail terminally at dispatch with a clear error.
func registerNotifiers(registry *notification.Registry, settings *conf.NotifySettings) error {
	const sendTimeout = 20 * time.Second
	for channel, url := range map[string]string{
		entities.ChannelEmail: settings.EmailURL,
		entities.ChannelSMS:   settings.SMSURL,
	} {
		if url == "" {
			continue
		}
		notifier, err := notification.NewShoutrrrNotifier(url, sendTimeout)
		if err != nil {
			return fmt.Errorf("channel %s: %w", channel, err)
		}
		registry.Register(channel, notifier)
	}
	return nil
}

func serveCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run evaluation cycles and alert dispatch until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.bridge != nil {
				if err := a.bridge.Start(ctx); err != nil {
					return err
				}
				defer a.bridge.Stop()
			}

			var metricsSrv *http.Server
			if a.settings.Telemetry.Enabled {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				metricsSrv = &http.Server{Addr: a.settings.Telemetry.Listen, Handler: mux}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("metrics server failed", logger.Error(err))
					}
				}()
			}

			a.dispatcher.Start(ctx)
			a.scheduler.Start(ctx)
			a.log.Info("engine started",
				logger.String("cycle_interval", a.settings.Engine.CycleInterval.Std().String()),
				logger.Int("horizons", len(a.settings.Engine.Horizons)))

			<-ctx.Done()
			a.log.Info("shutting down")
			a.scheduler.Stop()
			a.dispatcher.Stop()
			if metricsSrv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
}

func evaluateCommand(configFile *string) *cobra.Command {
	var regionID uint
	var horizon string
	var force bool
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run a single evaluation cycle for one region and horizon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configFile)
			if err != nil {
				return err
			}
			pred, created, err := a.eng.EvaluateRegion(cmd.Context(), regionID, entities.Horizon(horizon), time.Now(), force)
			if err != nil {
				return err
			}
			if !created {
				fmt.Fprintln(os.Stderr, "cycle already evaluated; returning existing prediction")
			}
			a.dispatcher.Drain(cmd.Context())

			out, err := json.MarshalIndent(pred, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().UintVar(&regionID, "region", 0, "region to evaluate")
	cmd.Flags().StringVar(&horizon, "horizon", string(entities.Horizon24h), "prediction horizon (24h, 48h, 72h)")
	cmd.Flags().BoolVar(&force, "force", false, "re-run alert evaluation when the cycle already has a prediction")
	_ = cmd.MarkFlagRequired("region")
	return cmd
}

func statsCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print alert event counts by delivery status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(*configFile)
			if err != nil {
				return err
			}
			stats, err := a.ledger.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
