package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bartek5186/pricebridge/internal/api"
	"github.com/bartek5186/pricebridge/internal/blob"
	"github.com/bartek5186/pricebridge/internal/cloud"
	conf "github.com/bartek5186/pricebridge/internal/config"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/draft"
	"github.com/bartek5186/pricebridge/internal/importer"
	logs "github.com/bartek5186/pricebridge/internal/logs"
	"github.com/bartek5186/pricebridge/internal/queue"
	"github.com/bartek5186/pricebridge/internal/store"
	"github.com/bartek5186/pricebridge/internal/worker"
)

// wersję możesz nadpisać przez: -ldflags "-X 'main.ver=1.0.1'"
var ver = "1.0.0"

var (
	cfgPath string
	envFile string
	console bool
)

var (
	errJobDropped  = errors.New("job dropped on shutdown before processing")
	errAsyncInProc = errors.New("--async wymaga jobs.backend=sqs albo http (kolejka inproc żyje tylko w 'serve')")
)

func main() {
	// kontekst sterujący życiem procesu (CTRL+C / SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:           "pricebridge",
		Short:         "Import i uzgadnianie cenników z bazą",
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", filepath.Join(mustAppDataDir("pricebridge"), "config.json"), "ścieżka do config.json")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "plik .env (opcjonalny)")
	root.PersistentFlags().BoolVar(&console, "console", true, "logi także na konsolę")

	root.AddCommand(newServeCmd(), newWorkerCmd(), newImportCmd(), newBatchCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app to poskładane zależności procesu.
type app struct {
	cfg *conf.Config
	log zerolog.Logger
	dbh *db.Handle
	aws aws.Config

	store      *store.Store
	blobs      blob.Store
	dispatcher queue.Dispatcher
	inproc     *queue.InProc
	drafts     draft.Store

	planner   *importer.Planner
	local     *importer.LocalExecutor
	remote    *importer.RemoteExecutor
	processor *importer.Processor
	replacer  *importer.Replacer

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, firstRun, err := conf.LoadOrCreate(cfgPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(envFile)

	log := logs.New(cfg.LogFile, console, cfg.LogLevel)
	if firstRun {
		log.Info().Msgf("Utworzono domyślną konfigurację: %s", cfgPath)
	}

	dbh, err := db.Open(cfg.Database.Driver, cfg.Database.DSN, db.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		Verbose:      cfg.LogLevel == "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("DB open: %w", err)
	}
	if err := dbh.Migrate(); err != nil {
		_ = dbh.Close()
		return nil, fmt.Errorf("DB migrate: %w", err)
	}
	log.Info().Str("driver", dbh.Driver).Msg("DB ready")

	a := &app{cfg: cfg, log: log, dbh: dbh}
	a.closers = append(a.closers, func() { _ = dbh.Close() })
	a.store = store.New(dbh.DB, log, cfg.Import.LookupPageSize)

	if err := a.wireJobs(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wireDrafts(ctx); err != nil {
		a.Close()
		return nil, err
	}

	opt := importer.Options{ChunkSize: cfg.Import.InsertChunkSize, MaxReportedErrors: cfg.Import.MaxReportedErrors}
	a.planner = importer.NewPlanner(a.store, log)
	a.local = importer.NewLocalExecutor(a.planner, a.store, opt, log)
	a.remote = importer.NewRemoteExecutor(a.store, a.blobs, a.dispatcher, cfg.Blob.Prefix, log)
	a.processor = importer.NewProcessor(a.planner, a.store, a.blobs, opt, log)
	a.replacer = importer.NewReplacer(a.store, opt, log)
	return a, nil
}

// wireJobs wybiera magazyn plików i kolejkę zleceń według configu.
func (a *app) wireJobs(ctx context.Context) error {
	cfg := a.cfg
	needAWS := cfg.Blob.Backend == "s3" || cfg.Jobs.Backend == "sqs"

	if needAWS {
		awsCfg, err := cloud.LoadAWSConfig(ctx, cfg.AWS.Region, a.log)
		if err != nil {
			return err
		}
		a.aws = awsCfg
	}

	switch cfg.Blob.Backend {
	case "s3":
		if cfg.Blob.Bucket == "" {
			return errors.New("blob.bucket is required for the s3 backend")
		}
		a.blobs = blob.NewS3Store(cloud.NewS3Client(a.aws, cfg.AWS.Endpoint), cfg.Blob.Bucket)
	case "", "local":
		local, err := blob.NewLocalStore(cfg.Blob.Dir)
		if err != nil {
			return fmt.Errorf("blob dir: %w", err)
		}
		a.blobs = local
	default:
		return fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}

	switch cfg.Jobs.Backend {
	case "", "inproc":
		a.inproc = queue.NewInProc(64, a.log)
		a.dispatcher = a.inproc
	case "sqs":
		if cfg.Jobs.QueueURL == "" {
			return errors.New("jobs.queue_url is required for the sqs backend")
		}
		a.dispatcher = queue.NewSQSDispatcher(cloud.NewSQSClient(a.aws, cfg.AWS.Endpoint), cfg.Jobs.QueueURL)
	case "http":
		if cfg.Jobs.FunctionsURL == "" {
			return errors.New("jobs.functions_url is required for the http backend")
		}
		d := queue.NewHTTPDispatcher(cfg.Jobs.FunctionsURL, cfg.Auth.WebhookSecret, a.log)
		d.OnFailure = func(m queue.Message, err error) {
			a.store.FailBatch(context.Background(), m.BatchID, err)
		}
		a.dispatcher = d
	default:
		return fmt.Errorf("unknown jobs backend %q", cfg.Jobs.Backend)
	}
	a.log.Info().Str("blob", cfg.Blob.Backend).Str("jobs", cfg.Jobs.Backend).Msg("jobs wired")
	return nil
}

func (a *app) wireDrafts(ctx context.Context) error {
	ttl := time.Duration(a.cfg.Drafts.TTLHours) * time.Hour
	switch a.cfg.Drafts.Backend {
	case "", "memory":
		a.drafts = draft.NewMemoryStore()
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: a.cfg.Drafts.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis %s: %w", a.cfg.Drafts.RedisAddr, err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.drafts = draft.NewRedisStore(client, ttl)
	case "db":
		a.drafts = draft.NewDBStore(a.dbh.DB, ttl)
	default:
		return fmt.Errorf("unknown drafts backend %q", a.cfg.Drafts.Backend)
	}
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Uruchom API HTTP (i worker w procesie przy jobs.backend=inproc)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	srv := api.NewServer(api.Options{
		AllowedOrigins:    a.cfg.HTTP.AllowedOrigins,
		MaxUploadBytes:    a.cfg.HTTP.MaxUploadMB << 20,
		MaxReportedErrors: a.cfg.Import.MaxReportedErrors,
		JWTSecret:         a.cfg.Auth.JWTSecret,
		WebhookSecret:     a.cfg.Auth.WebhookSecret,
	}, api.Deps{
		Batches:    a.store,
		Planner:    a.planner,
		Apply:      a.local,
		ApplyAsync: a.remote,
		Processor:  a.processor,
		Replacer:   a.replacer,
		Drafts:     a.drafts,
	}, a.log)

	if a.inproc != nil {
		w := worker.New(a.log, a.inproc, a.processor.Process)
		// zlecenia z pamięci nie przeżyją restartu: batch idzie w failed, nie wisi w pending
		w.Dropped = func(ctx context.Context, m queue.Message) {
			a.store.FailBatch(ctx, m.BatchID, errJobDropped)
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}
	if d, ok := a.drafts.(*draft.DBStore); ok {
		go purgeDrafts(ctx, d, a.log)
	}

	httpSrv := &http.Server{
		Addr:              ":" + a.cfg.HTTP.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("port", a.cfg.HTTP.Port).Str("version", ver).Msg("HTTP start")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info().Msg("Zamykanie serwera...")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		a.log.Error().Err(err).Msg("wymuszone zamknięcie serwera")
		return err
	}
	a.log.Info().Msg("Serwer zatrzymany")
	return nil
}

// purgeDrafts co godzinę usuwa wygasłe szkice z tabeli kv.
func purgeDrafts(ctx context.Context, d *draft.DBStore, log zerolog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := d.Purge(ctx); err != nil {
				log.Warn().Err(err).Msg("purge drafts")
			} else if n > 0 {
				log.Info().Int64("purged", n).Msg("expired drafts removed")
			}
		}
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Przetwarzaj zlecenia importu z kolejki SQS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.Jobs.Backend != "sqs" {
				return fmt.Errorf("worker needs jobs.backend=sqs (got %q)", a.cfg.Jobs.Backend)
			}

			consumer := queue.NewSQSConsumer(cloud.NewSQSClient(a.aws, a.cfg.AWS.Endpoint), a.cfg.Jobs.QueueURL, a.cfg.Jobs.PollWaitSeconds, a.log)
			w := worker.New(a.log, consumer, a.processor.Process)
			if err := w.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			w.Stop()
			a.log.Info().Uint64("jobs", w.Jobs()).Uint64("failed", w.Failed()).Msg("worker stopped")
			return nil
		},
	}
}

func mustAppDataDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	p := filepath.Join(base, name)
	_ = os.MkdirAll(p, 0o755)
	return p
}
