// Package main wires the Business-Critical Health Validation and
// Automated Rollback Platform: Baseline Store, Evidence Log, Metrics
// Collectors, Health Probe Executor, Decision Engine, Rollback
// Executor, Post-Rollback Analyzer and the Orchestrator that drives
// them, plus the Prometheus /metrics endpoint. Configuration comes in
// through flags; the storage, Redis, notification, deployment-id,
// enabled-industries and kubeconfig flags default to environment
// variables, the rest to fixed values. Every component is constructed
// here and handed to the pieces that need it.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"rollback-guard/internal/analyzer"
	"rollback-guard/internal/baseline"
	"rollback-guard/internal/collector"
	"rollback-guard/internal/collector/finance"
	"rollback-guard/internal/collector/pharma"
	"rollback-guard/internal/decision"
	"rollback-guard/internal/domain"
	"rollback-guard/internal/evidencelog"
	"rollback-guard/internal/executor"
	"rollback-guard/internal/health"
	"rollback-guard/internal/health/probes"
	"rollback-guard/internal/notification"
	"rollback-guard/internal/notification/transport"
	"rollback-guard/internal/observability"
	"rollback-guard/internal/orchestrator"
	"rollback-guard/internal/regression"
	"rollback-guard/internal/storage"
	chstore "rollback-guard/internal/storage/clickhouse"
	"rollback-guard/internal/storage/memory"
	"rollback-guard/internal/storage/migrations"
	pgstore "rollback-guard/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string for evidence/baseline persistence")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for health/metric time series")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for baseline snapshot warm-start cache; empty disables it")
	useMemory := flag.Bool("use-memory", os.Getenv("POSTGRES_DSN") == "" && os.Getenv("CLICKHOUSE_DSN") == "", "use in-memory stores instead of Postgres/ClickHouse")
	natsURL := flag.String("nats-url", os.Getenv("NATS_URL"), "NATS URL for notification dispatch; empty disables the NATS transport")
	websocketEndpoint := flag.String("notify-ws-endpoint", os.Getenv("NOTIFY_WS_ENDPOINT"), "WebSocket endpoint for notification dispatch; empty disables the WebSocket transport")
	deploymentID := flag.String("deployment-id", envOr("DEPLOYMENT_ID", "default"), "identifier of the deployment being monitored")
	monitoringInterval := flag.Duration("monitoring-interval", 30*time.Second, "how often the orchestrator runs a monitoring cycle")
	probeCycleEvery := flag.Int("probe-cycle-every", 5, "run ancillary health probes every N monitoring cycles")
	baselineWindowHours := flag.Int("baseline-window-hours", 24, "how far back baseline samples are retained")
	baselineMinimumSamples := flag.Int("baseline-minimum-samples", 50, "samples required before a baseline becomes usable")
	regressionThresholdPercent := flag.Float64("regression-threshold-percent", 10.0, "percent deviation beyond which a regression is flagged")
	confidenceThreshold := flag.Float64("confidence-threshold", 0.8, "minimum confidence before a rollback is recommended")
	executionTimeout := flag.Duration("execution-timeout", 600*time.Second, "hard ceiling on a complete rollback execution")
	probeTimeout := flag.Duration("probe-timeout", 30*time.Second, "per-probe execution timeout")
	enabledIndustries := flag.String("enabled-industries", envOr("ENABLED_INDUSTRIES", "finance,pharma"), "comma-separated subset of {finance, pharma} to monitor")
	kubeconfig := flag.String("kubeconfig", os.Getenv("KUBECONFIG"), "kubeconfig path for the cluster health probe; empty disables it")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	flag.Parse()

	logger := stdr.New(log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds))
	stdr.SetVerbosity(1)
	rootLog := logr.Logger(logger).WithName("rollback-guard")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.New("rollback_guard", prometheus.DefaultRegisterer)

	evidenceSink, baselineSnapshots, healthStore, metricStore := buildStores(ctx, rootLog, *useMemory, *postgresDSN, *clickhouseDSN)
	if *redisAddr != "" {
		cache, err := baseline.NewRedisCache(ctx, baseline.DefaultRedisCacheConfig(*redisAddr))
		if err != nil {
			rootLog.Error(err, "connect redis baseline cache, continuing without warm start")
		} else {
			defer cache.Close()
			baselineSnapshots = cache
		}
	}

	evidenceLog := evidencelog.New(rootLog, evidenceSink, evidencelog.WithMetrics(metrics))

	baselineCfg := baseline.DefaultConfig()
	baselineCfg.BaselineWindow = time.Duration(*baselineWindowHours) * time.Hour
	baselineCfg.MinimumSamples = *baselineMinimumSamples
	baselines := baseline.New(baselineCfg)
	warmStartBaselines(ctx, rootLog, baselines, baselineSnapshots)

	regressionCfg := regression.DefaultConfig()
	regressionCfg.RegressionThresholdPercent = *regressionThresholdPercent
	healthExecutor := health.New(rootLog, baselines, regressionCfg, *probeTimeout, health.WithMetrics(metrics))
	probePhases := registerProbes(rootLog, healthExecutor, *kubeconfig)

	collectors := buildCollectors(ctx, rootLog, *enabledIndustries, *baselineWindowHours, baselines)

	decisionEngine := decision.NewEngine(decision.Config{ConfidenceThreshold: *confidenceThreshold})

	dispatcher := buildDispatcher(rootLog, *natsURL, *websocketEndpoint)
	runner := executor.NewRunner(rootLog, executor.Config{ExecutionTimeout: *executionTimeout}, executor.SimulatedDriver{}, evidenceLog, dispatcher)

	cost := analyzer.DefaultExecutionCost()

	orch := orchestrator.New(orchestrator.Deps{
		Log:     rootLog,
		Metrics: metrics,
		Config: orchestrator.Config{
			MonitoringInterval: *monitoringInterval,
			ProbeCycleEvery:    *probeCycleEvery,
			CollectorTimeout:   10 * time.Second,
			CycleGuard:         2 * *monitoringInterval,
			ShutdownGrace:      30 * time.Second,
			CycleBackoff:       5 * time.Second,
			DeploymentID:       *deploymentID,
		},
		Collectors:     collectors,
		Baselines:      baselines,
		Evidence:       evidenceLog,
		DecisionEngine: decisionEngine,
		HealthExecutor: healthExecutor,
		Runner:         runner,
		HealthStore:    healthStore,
		MetricStore:    metricStore,
		Snapshots:      baselineSnapshots,
		ProbePhases:    probePhases,
		Analyze: func(exec domain.RollbackExecution, now time.Time) orchestrator.Report {
			report := analyzer.Analyze(exec, cost, now)
			return orchestrator.Report{
				ReportID:        report.ReportID,
				ExecutionID:     report.ExecutionID,
				ComplianceScore: report.ComplianceScore,
				Findings:        len(report.Findings),
			}
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	httpServer := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		rootLog.Info("metrics server listening", "addr", *metricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rootLog.Error(err, "metrics server failed")
		}
	}()

	rootLog.Info("starting rollback-guard platform", "deploymentId", *deploymentID, "interval", *monitoringInterval)
	orch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	rootLog.Info("platform stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildStores constructs the durable or in-memory storage
// implementations per the configured backend, and runs migrations
// when a real database is targeted.
func buildStores(ctx context.Context, log logr.Logger, useMemory bool, postgresDSN, clickhouseDSN string) (storage.EvidenceSink, storage.BaselineSnapshotStore, storage.HealthCheckStore, storage.MetricStore) {
	if useMemory || (postgresDSN == "" && clickhouseDSN == "") {
		log.Info("using in-memory stores")
		return memory.NewEvidenceStore(), memory.NewBaselineSnapshotStore(), memory.NewHealthCheckStore(), memory.NewMetricStore()
	}

	var evidenceSink storage.EvidenceSink = memory.NewEvidenceStore()
	var baselines storage.BaselineSnapshotStore = memory.NewBaselineSnapshotStore()
	var healthStore storage.HealthCheckStore = memory.NewHealthCheckStore()
	var metricStore storage.MetricStore = memory.NewMetricStore()

	if postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			log.Error(err, "connect postgres, falling back to in-memory evidence/baseline stores")
		} else {
			if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
				log.Error(err, "run postgres migrations")
			}
			evidenceSink = pgstore.NewEvidenceStore(pool)
			baselines = pgstore.NewBaselineSnapshotStore(pool)
		}
	}

	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			log.Error(err, "connect/migrate clickhouse, falling back to in-memory health/metric stores")
		} else {
			healthStore = chstore.NewHealthCheckStore(conn)
			metricStore = chstore.NewMetricStore(conn)
		}
	}

	return evidenceSink, baselines, healthStore, metricStore
}

// warmStartBaselines pre-seeds the in-process Baseline Store's EWMA
// fields from the last persisted summaries. The sliding window itself
// is rebuilt only from live samples; the snapshots are a drift-state
// cache, not a substitute for the window.
func warmStartBaselines(ctx context.Context, log logr.Logger, store *baseline.Store, snapshots storage.BaselineSnapshotStore) {
	all, err := snapshots.LoadAll(ctx)
	if err != nil {
		log.Error(err, "load baseline snapshots for warm start")
		return
	}
	for _, b := range all {
		store.SeedEWMA(b.MetricName, b.EWMAMean, b.EWMAStdDev)
	}
	log.Info("recovered baseline snapshots", "metrics", len(all))
}

// buildCollectors constructs one collector per enabled industry and
// seeds each one's baselines before monitoring starts.
func buildCollectors(ctx context.Context, log logr.Logger, enabled string, hoursBack int, baselines *baseline.Store) []collector.Collector {
	var collectors []collector.Collector
	for _, industry := range strings.Split(enabled, ",") {
		switch strings.TrimSpace(industry) {
		case "finance":
			collectors = append(collectors, finance.New(syntheticFinanceSource{}, baselines))
		case "pharma":
			collectors = append(collectors, pharma.New(syntheticPharmaSource{}, baselines))
		case "":
		default:
			log.Info("ignoring unknown industry", "industry", industry)
		}
	}
	for _, c := range collectors {
		if err := c.EstablishBaseline(ctx, hoursBack); err != nil {
			log.Error(err, "establish collector baseline", "collector", c.Name())
		}
	}
	return collectors
}

// registerProbes registers the infrastructure probes (phase one) and,
// when a kubeconfig is supplied, the cluster probe (phase two, gated
// behind the infrastructure phase).
func registerProbes(log logr.Logger, executor *health.Executor, kubeconfig string) [][]string {
	probeList := []health.Probe{
		probes.NewSystemResourceProbe("system-resources"),
		probes.NewNetworkReachabilityProbe("network-reachability", "localhost:443", 5*time.Second),
	}
	phases := [][]string{{"system-resources", "network-reachability"}}

	if kubeconfig != "" {
		config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			log.Error(err, "load kubeconfig, skipping cluster probe")
		} else if clientset, err := kubernetes.NewForConfig(config); err != nil {
			log.Error(err, "build kubernetes client, skipping cluster probe")
		} else {
			probeList = append(probeList, probes.NewClusterHealthProbe("cluster-health", clientset, ""))
			phases = append(phases, []string{"cluster-health"})
		}
	}

	for _, p := range probeList {
		if err := executor.Register(p); err != nil {
			log.Error(err, "register probe", "probe", p.Name())
		}
	}
	return phases
}

func buildDispatcher(log logr.Logger, natsURL, wsEndpoint string) notification.Dispatcher {
	var dispatchers []notification.Dispatcher
	if natsURL != "" {
		cfg := transport.DefaultNATSConfig()
		cfg.URL = natsURL
		d, err := transport.NewNATSDispatcher(log, cfg)
		if err != nil {
			log.Error(err, "connect NATS notification dispatcher")
		} else {
			dispatchers = append(dispatchers, d)
		}
	}
	if wsEndpoint != "" {
		dispatchers = append(dispatchers, transport.NewWebSocketDispatcher(wsEndpoint, transport.DefaultWebSocketConfig()))
	}
	if len(dispatchers) == 0 {
		return notification.NoopDispatcher{}
	}
	return notification.MultiDispatcher{Dispatchers: dispatchers}
}

// syntheticFinanceSource stands in for a real trading engine's live
// telemetry feed.
type syntheticFinanceSource struct{}

func (syntheticFinanceSource) Snapshot(ctx context.Context) (pnlPerMinute, latencyMS, errorRatePercent float64, err error) {
	return 5000 + rand.Float64()*500, 45 + rand.Float64()*10, 0.1 + rand.Float64()*0.2, nil
}

// syntheticPharmaSource stands in for a real manufacturing execution
// system's live telemetry feed.
type syntheticPharmaSource struct{}

func (syntheticPharmaSource) Snapshot(ctx context.Context) (efficiencyPercent, temperatureC, pressureKPa, humidityPercent, particleCount float64, err error) {
	return 98.5 + rand.Float64(), 21 + rand.Float64()*2, 101 + rand.Float64()*2, 45 + rand.Float64()*5, 50 + rand.Float64()*20, nil
}
