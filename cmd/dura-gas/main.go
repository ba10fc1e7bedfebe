package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jkaberg/dura-gas/internal/app"
	"github.com/jkaberg/dura-gas/internal/command"
	"github.com/jkaberg/dura-gas/internal/config"
	"github.com/jkaberg/dura-gas/internal/metrics"
	"github.com/jkaberg/dura-gas/internal/mqtt"
	"github.com/jkaberg/dura-gas/internal/notify"
	"github.com/jkaberg/dura-gas/internal/scheduler"
	"github.com/jkaberg/dura-gas/internal/store"
	"github.com/jkaberg/dura-gas/internal/tank"
	"github.com/jkaberg/dura-gas/internal/transmission"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(version).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// flags holds the raw command line values. Empty values leave the
// configuration file (or its defaults) untouched.
type flags struct {
	configPath          string
	mqttURL             string
	deviceID            string
	discoveryPrefix     string
	storagePath         string
	metricsAddr         string
	notifyCommand       string
	pollInterval        string
	mqttInterval        string
	forceUpdateInterval string
	verbose             bool
}

func newRootCmd(ver string) *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:     "dura-gas",
		Short:   "LP gas tank monitor for Home Assistant",
		Version: ver,
		Long: `dura-gas tracks the level, consumption and running costs of a stationary
LP gas tank and publishes them to Home Assistant via MQTT discovery.

Without a subcommand the service runs until interrupted.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Verbose)
			if err := runService(cmd.Context(), cfg, logger); err != nil {
				logger.WithError(err).Error("dura-gas stopped with error")
				return err
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", getEnv("DURA_GAS_CONFIG", ""), "Configuration file (.yaml or .toml)")
	pf.StringVar(&f.mqttURL, "mqtt-url", getEnv("DURA_GAS_MQTT_URL", ""), "MQTT URL")
	pf.StringVar(&f.deviceID, "device-id", getEnv("DURA_GAS_DEVICE_ID", ""), "Device identifier")
	pf.StringVar(&f.discoveryPrefix, "discovery-prefix", getEnv("DURA_GAS_DISCOVERY_PREFIX", ""), "HA discovery prefix")
	pf.StringVar(&f.storagePath, "storage-path", getEnv("DURA_GAS_STORAGE_PATH", ""), "State storage (*.db = SQLite, otherwise a directory)")
	pf.StringVar(&f.metricsAddr, "metrics-addr", getEnv("DURA_GAS_METRICS_ADDR", ""), "Prometheus listen address (e.g. :9110)")
	pf.StringVar(&f.notifyCommand, "notify-command", getEnv("DURA_GAS_NOTIFY_COMMAND", ""), "Command run on alert changes (e.g. notify-send)")
	pf.StringVar(&f.pollInterval, "poll-interval", getEnv("DURA_GAS_POLL_INTERVAL", ""), "Evaluation interval (e.g. 5m)")
	pf.StringVar(&f.mqttInterval, "mqtt-interval", getEnv("DURA_GAS_MQTT_INTERVAL", ""), "MQTT interval (e.g. 60s)")
	pf.StringVar(&f.forceUpdateInterval, "force-update-interval", getEnv("DURA_GAS_FORCE_UPDATE_INTERVAL", ""), "Force update all entities at this interval even if unchanged (e.g. 1h, 0 = disabled)")
	pf.BoolVar(&f.verbose, "verbose", getEnv("DURA_GAS_VERBOSE", "false") == "true", "Verbose logging")

	cmd.AddCommand(
		newStatusCmd(f),
		newRefillCmd(f),
		newLevelCmd(f),
		newPriceCmd(f),
		newHeatingModeCmd(f),
		newStrategyCmd(f),
	)
	return cmd
}

// load reads the configuration file and applies command line overrides.
func (f *flags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}

	if f.mqttURL != "" {
		cfg.MQTTUrl = f.mqttURL
	}
	if f.deviceID != "" {
		cfg.DeviceID = f.deviceID
	}
	if f.discoveryPrefix != "" {
		cfg.DiscoveryPrefix = f.discoveryPrefix
	}
	if f.storagePath != "" {
		cfg.StoragePath = f.storagePath
	}
	if f.metricsAddr != "" {
		cfg.MetricsAddr = f.metricsAddr
	}
	if f.notifyCommand != "" {
		cfg.NotifyCommand = f.notifyCommand
	}
	if f.verbose {
		cfg.Verbose = true
	}

	if d, ok := parseInterval(f.pollInterval); ok && d > 0 {
		cfg.PollInterval = d
	}
	if d, ok := parseInterval(f.mqttInterval); ok && d > 0 {
		cfg.MQTTInterval = d
	}
	if d, ok := parseInterval(f.forceUpdateInterval); ok && d >= 0 {
		cfg.ForceUpdateInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// parseInterval accepts Go durations and plain seconds.
func parseInterval(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if v, err := strconv.Atoi(s); err == nil {
		return time.Duration(v) * time.Second, true
	}
	return 0, false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// openMonitor opens the configured store and loads the tank state.
func openMonitor(ctx context.Context, cfg *config.Config, observer tank.Observer, logger *logrus.Logger) (*tank.Monitor, store.Store, error) {
	engCfg, err := cfg.Tank.Engine()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid tank configuration: %w", err)
	}
	loc, err := cfg.Tank.Location()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.StoragePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	mon := tank.NewMonitor(engCfg, cfg.Tank.InitialState(), st, cfg.StorageKey, logger, tank.Options{
		Location:        loc,
		RetryMaxElapsed: config.StorageRetryMaxElapsed,
		Observer:        observer,
	})

	loadCtx, cancel := context.WithTimeout(ctx, config.StorageTimeout)
	defer cancel()
	if err := mon.Load(loadCtx); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("load tank state: %w", err)
	}
	return mon, st, nil
}

func runService(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	logFields := logrus.Fields{
		"version":   version,
		"device_id": cfg.DeviceID,
		"poll":      cfg.PollInterval,
		"mqtt_int":  cfg.MQTTInterval,
		"storage":   cfg.StoragePath,
	}
	if cfg.ForceUpdateInterval > 0 {
		logFields["force_update_int"] = cfg.ForceUpdateInterval
	}
	logger.WithFields(logFields).Info("Starting dura-gas")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.New(reg)

	mon, st, err := openMonitor(ctx, cfg, promMetrics, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	loc, _ := cfg.Tank.Location()
	sched, err := scheduler.New(cfg.PollInterval, loc, logger)
	if err != nil {
		return err
	}

	metricsHandler := metrics.Handler(reg, promMetrics, 3*cfg.PollInterval, time.Now)

	// Transmitters ---------------------------------------------------------------
	var (
		tx         transmission.Transmitter
		mqttTx     *transmission.MQTTTransmitter
		mqttClient *mqtt.Client
	)
	if cfg.HasMQTT() {
		mqttClient, err = mqtt.NewClient(cfg.MQTTUrl, cfg.DeviceID, logger)
		if err != nil {
			return fmt.Errorf("failed to create MQTT client: %w", err)
		}
		mqttTx = transmission.NewMQTTTransmitter(mqttClient, mqttClient.Topics, cfg.DiscoveryPrefix, cfg.Tank.HasSolar, version, logger)
		tx = mqttTx
		logger.Info("MQTT transmitter ready")
	} else {
		logger.Warn("No MQTT broker configured; state is only logged and exported as metrics")
	}

	a := app.New(cfg, mon, sched.Triggers(), tx, metricsHandler, logger)

	// Alert notifications --------------------------------------------------------
	var notifiers []notify.Notifier
	if cfg.HasNotifyCommand() {
		parts := strings.Fields(cfg.NotifyCommand)
		notifiers = append(notifiers, notify.NewCommandNotifier(parts[0], parts[1:], logger))
	}
	if mqttClient != nil {
		notifiers = append(notifiers, notify.NewMQTTNotifier(mqttClient, mqttClient.EventTopic()))
	}
	if len(notifiers) > 0 {
		a.OnResult(notify.NewWatcher(logger, notifiers...))
	}

	if mqttClient != nil {
		handler := command.NewHandler(mon, mqttClient.Topics, cfg.Tank.CustomStrategyAmount, config.StorageTimeout, a.PublishResult, logger)
		if err := mqttClient.Subscribe(mqttClient.CommandFilter(), handler.HandleMessage); err != nil {
			return err
		}
		// Home Assistant announces restarts on <prefix>/status; discovery has
		// to be sent again afterwards.
		statusTopic := cfg.DiscoveryPrefix + "/status"
		if err := mqttClient.Subscribe(statusTopic, func(_ string, payload []byte) {
			if strings.TrimSpace(string(payload)) != "online" {
				return
			}
			logger.Info("Home Assistant came online, republishing discovery")
			mqttTx.ResetDiscovery()
			a.PublishResult(mon.Last())
		}); err != nil {
			logger.WithError(err).Warn("Failed to subscribe to Home Assistant status")
		}
	}

	sched.Start()
	runErr := a.Run(ctx)
	sched.Stop()

	if mqttClient != nil {
		if err := mqttClient.PublishAvailability(false); err != nil {
			logger.WithError(err).Debug("Failed to publish offline availability")
		}
		mqttClient.Disconnect(250)
	}

	logger.Info("dura-gas stopped")
	return runErr
}
