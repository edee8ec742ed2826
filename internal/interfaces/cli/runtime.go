package cli

import (
	"context"
	stderrors "errors"
	"net"

	"github.com/turtacn/doctalk/internal/config"
	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres"
	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/doctalk/internal/infrastructure/database/redis"
	"github.com/turtacn/doctalk/internal/infrastructure/database/sqlite"
	"github.com/turtacn/doctalk/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/doctalk/internal/infrastructure/storage/glossaryfile"
	"github.com/turtacn/doctalk/internal/infrastructure/storage/minio"
	"github.com/turtacn/doctalk/internal/intelligence/acronym"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/internal/intelligence/negation"
	"github.com/turtacn/doctalk/internal/intelligence/ner"
	"github.com/turtacn/doctalk/internal/intelligence/spandetect"
	opshttp "github.com/turtacn/doctalk/internal/interfaces/http"
	"github.com/turtacn/doctalk/internal/interfaces/stream"
	"github.com/turtacn/doctalk/pkg/errors"
)

// Runtime owns the components a command needs.  Close releases them in
// reverse order of acquisition.
type Runtime struct {
	Config    *config.Config
	Logger    logging.Logger
	Postgres  *postgres.Connection
	Redis     *redis.Client
	Objects   *minio.Client
	Index     *glossary.Index
	Detector  *spandetect.Detector
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.DetectionMetrics

	closers []func() error
}

func (r *Runtime) onClose(fn func() error) { r.closers = append(r.closers, fn) }

// Close releases every resource and writes the metrics textfile when
// configured.
func (r *Runtime) Close() error {
	var errs []error
	if r.Collector != nil && r.Config.Metrics.Textfile != "" {
		if err := r.Collector.WriteToTextfile(r.Config.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = r.Logger.Sync()
	return stderrors.Join(errs...)
}

func newRuntime(cliCtx *CLIContext) *Runtime {
	return &Runtime{Config: cliCtx.Config, Logger: cliCtx.Logger}
}

// openPostgres connects and health-checks the database once per runtime.
func (r *Runtime) openPostgres(ctx context.Context) (*postgres.Connection, error) {
	if r.Postgres != nil {
		return r.Postgres, nil
	}
	conn, err := postgres.NewConnection(r.Config.Database, r.Logger)
	if err != nil {
		return nil, err
	}
	if err := conn.HealthCheck(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	r.Postgres = conn
	r.onClose(conn.Close)
	return conn, nil
}

func (r *Runtime) initMetrics() error {
	if !r.Config.Metrics.Enabled || r.Collector != nil {
		return nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:       r.Config.Metrics.Namespace,
		EnableGoMetrics: true,
	}, r.Logger)
	if err != nil {
		return err
	}
	r.Collector = collector
	r.Metrics = prometheus.NewDetectionMetrics(collector)
	return nil
}

// objectStore creates the object storage client once per runtime.
func (r *Runtime) objectStore() (*minio.Client, error) {
	if r.Objects != nil {
		return r.Objects, nil
	}
	c, err := minio.NewClient(r.Config.ObjectStore, r.Logger)
	if err != nil {
		return nil, err
	}
	r.Objects = c
	return c, nil
}

func (r *Runtime) glossaryObject() (*minio.GlossaryStore, error) {
	c, err := r.objectStore()
	if err != nil {
		return nil, err
	}
	return minio.NewGlossaryStore(c, r.Config.Glossary.Object, r.Logger), nil
}

func (r *Runtime) glossaryProvider(ctx context.Context) (glossary.Provider, error) {
	switch r.Config.Glossary.Source {
	case config.GlossarySourcePostgres:
		conn, err := r.openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		return repositories.NewGlossaryRepository(conn, r.Logger), nil
	case config.GlossarySourceObject:
		return r.glossaryObject()
	default:
		return glossaryfile.NewProvider(r.Config.Glossary.Path, r.Logger), nil
	}
}

// loadIndex builds the glossary index and performs the initial load.  With
// watch enabled the file watcher runs until the runtime is closed.
func (r *Runtime) loadIndex(ctx context.Context, watch bool) (*glossary.Index, error) {
	if r.Index != nil {
		return r.Index, nil
	}
	if err := r.initMetrics(); err != nil {
		return nil, err
	}
	provider, err := r.glossaryProvider(ctx)
	if err != nil {
		return nil, err
	}

	opts := []glossary.IndexOption{
		glossary.WithLogger(r.Logger),
		glossary.WithBuildOptions(glossary.WithTextNormalization(r.Config.Detect.NormalizeUnicode)),
	}
	if r.Metrics != nil {
		opts = append(opts, glossary.WithReloadObserver(r.Metrics))
	}
	idx := glossary.NewIndex(provider, opts...)
	if _, err := idx.Reload(ctx); err != nil {
		return nil, err
	}
	r.Index = idx

	if watch && r.Config.Glossary.Watch && r.Config.Glossary.Source == config.GlossarySourceFile {
		w, err := glossaryfile.NewWatcher(r.Config.Glossary.Path, idx, glossaryfile.WithWatcherLogger(r.Logger))
		if err != nil {
			return nil, err
		}
		wctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(wctx)
		}()
		r.onClose(func() error {
			cancel()
			<-done
			return nil
		})
	}
	return idx, nil
}

// acronymMemory wires the configured store and lock backend.
func (r *Runtime) acronymMemory(ctx context.Context) (*acronym.Memory, error) {
	cfg := r.Config
	var (
		store  acronym.Store
		locker acronym.Locker
	)
	switch cfg.Acronym.Backend {
	case config.AcronymBackendRedis:
		client, err := redis.NewClient(&cfg.Redis, r.Logger)
		if err != nil {
			return nil, err
		}
		r.onClose(client.Close)
		r.Redis = client
		store = redis.NewAcronymStore(client, cfg.Acronym.KeyPrefix)
		locker = redis.NewLocker(client, r.Logger,
			redis.WithLockTTL(cfg.Acronym.LockTTL),
			redis.WithRetryDelay(cfg.Acronym.LockRetryDelay),
			redis.WithRetryCount(cfg.Acronym.LockRetryCount),
			redis.WithKeyPrefix(cfg.Acronym.KeyPrefix),
		)
	case config.AcronymBackendPostgres:
		conn, err := r.openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		advisory := repositories.NewAdvisoryLocker(conn, r.Logger)
		store = repositories.NewAcronymRepository(conn, repositories.WithAdvisoryLocker(advisory))
		locker = advisory
	case config.AcronymBackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Acronym.SQLitePath, r.Logger)
		if err != nil {
			return nil, err
		}
		r.onClose(s.Close)
		store = s
	default:
		store = acronym.NewMemoryStore()
	}

	opts := []acronym.MemoryOption{acronym.WithMemoryLogger(r.Logger)}
	if locker != nil {
		opts = append(opts, acronym.WithLocker(locker))
	}
	return acronym.NewMemory(store, opts...), nil
}

func (r *Runtime) nerSource() (ner.Source, error) {
	cfg := r.Config.NER
	if !cfg.Enabled {
		return nil, nil
	}
	return ner.NewHTTPSource(cfg.Endpoint,
		ner.WithTimeout(cfg.Timeout),
		ner.WithLabels(ner.NewLabelMap(cfg.Labels)),
		ner.WithRetry(cfg.MaxRetries, cfg.RetryWait),
		ner.WithLogger(r.Logger),
	)
}

// buildDetector wires the full span collector.
func (r *Runtime) buildDetector(ctx context.Context, watch bool) (*spandetect.Detector, error) {
	idx, err := r.loadIndex(ctx, watch)
	if err != nil {
		return nil, err
	}
	scorer, err := negation.NewScorer(r.Config.Negation.ScorerConfig())
	if err != nil {
		return nil, err
	}
	memory, err := r.acronymMemory(ctx)
	if err != nil {
		return nil, err
	}

	opts := []spandetect.Option{
		spandetect.WithMemory(memory),
		spandetect.WithLogger(r.Logger),
		spandetect.WithBatchConcurrency(r.Config.Detect.BatchConcurrency),
	}
	src, err := r.nerSource()
	if err != nil {
		return nil, err
	}
	if src != nil {
		opts = append(opts, spandetect.WithNER(src))
	}
	if r.Metrics != nil {
		opts = append(opts, spandetect.WithMetrics(r.Metrics))
	}
	d, err := spandetect.NewDetector(idx, scorer, opts...)
	if err != nil {
		return nil, err
	}
	r.Detector = d
	return d, nil
}

// streamConsumer wires the detector between the document topic and the
// result topic.  The result producer also carries dead letters.
func (r *Runtime) streamConsumer(ctx context.Context) (*kafka.Consumer, error) {
	d, err := r.buildDetector(ctx, true)
	if err != nil {
		return nil, err
	}
	cfg := r.Config.Stream
	producer, err := kafka.NewProducer(cfg.ProducerConfig(), r.Logger)
	if err != nil {
		return nil, err
	}
	r.onClose(producer.Close)

	handler := stream.NewHandler(d, producer, cfg.OutputTopic, r.Logger)
	opts := []kafka.ConsumerOption{kafka.WithDeadLetter(producer)}
	if r.Metrics != nil {
		opts = append(opts, kafka.WithObserver(r.Metrics))
	}
	consumer, err := kafka.NewConsumer(cfg.ConsumerConfig(), handler.Handle, r.Logger, opts...)
	if err != nil {
		return nil, err
	}
	r.onClose(consumer.Close)
	return consumer, nil
}

// withRuntime runs fn with a fresh runtime and closes it afterwards.
// setupCtx carries the --timeout deadline and is meant for backend setup.
func withRuntime(ctx context.Context, cliCtx *CLIContext, fn func(setupCtx context.Context, r *Runtime) error) (err error) {
	r := newRuntime(cliCtx)
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, errors.ErrCodeInternal, "failed to release resources")
		}
	}()
	setupCtx, cancel := context.WithTimeout(ctx, cliCtx.Timeout)
	defer cancel()
	return fn(setupCtx, r)
}

// opsServer binds metrics.listen and mounts the probes and /metrics.
// Readiness checks every backend this runtime has opened.
func (r *Runtime) opsServer() (*opshttp.Server, net.Listener, error) {
	if err := r.initMetrics(); err != nil {
		return nil, nil, err
	}
	sc := r.Config.Stream
	checks := []opshttp.HealthChecker{
		opshttp.CheckFunc{Component: "glossary", Fn: func(context.Context) error {
			if r.Index == nil || r.Index.Snapshot().Stats().Patterns == 0 {
				return errors.New(errors.ErrCodeGlossaryNotLoaded, "glossary has no patterns")
			}
			return nil
		}},
		opshttp.CheckFunc{Component: "kafka", Fn: func(ctx context.Context) error {
			return kafka.PingBrokers(ctx, sc.Brokers, sc.Security)
		}},
	}
	if r.Postgres != nil {
		checks = append(checks, opshttp.CheckFunc{Component: "postgres", Fn: r.Postgres.HealthCheck})
	}
	if r.Redis != nil {
		checks = append(checks, opshttp.CheckFunc{Component: "redis", Fn: r.Redis.Ping})
	}
	if r.Objects != nil {
		checks = append(checks, opshttp.CheckFunc{Component: "object_store", Fn: r.Objects.HealthCheck})
	}

	routerCfg := opshttp.RouterConfig{
		Health: opshttp.NewHealthHandler(Version, checks...),
		Logger: r.Logger,
	}
	if r.Collector != nil {
		routerCfg.Metrics = r.Collector.Handler()
	}
	srv := opshttp.NewServer(r.Config.Metrics.Listen, opshttp.NewRouter(routerCfg), r.Logger)
	ln, err := srv.Listen()
	if err != nil {
		return nil, nil, err
	}
	return srv, ln, nil
}
