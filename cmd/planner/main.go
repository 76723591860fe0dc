package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/devinleonhart/minerva/internal/application/planner"
	"github.com/devinleonhart/minerva/internal/config"
	"github.com/devinleonhart/minerva/internal/domain"
	"github.com/devinleonhart/minerva/internal/infrastructure/catalogfile"
	"github.com/devinleonhart/minerva/internal/infrastructure/observability"
	"github.com/devinleonhart/minerva/internal/infrastructure/persistence/sqlstore"
	"github.com/devinleonhart/minerva/internal/storage/fs"
	"github.com/devinleonhart/minerva/internal/storage/gcs"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		// slog may not be initialized if config fails, so print to stderr
		fmt.Fprintf(os.Stderr, "minerva: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet("minerva", flag.ContinueOnError)
	weekFlag := flags.String("week", "", "operate on the stored week starting at `YYYY-MM-DD` instead of the current one")
	flags.Usage = func() { printUsage(flags.Output(), flags) }
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	rest := flags.Args()
	if len(rest) == 0 || rest[0] == "help" {
		printUsage(stdout, flags)
		return nil
	}

	cfg, err := config.LoadPlannerConfig()
	if err != nil {
		return err
	}
	level, err := cfg.Observability.Level()
	if err != nil {
		return err
	}

	// Root context for all normal operations, cancelled on SIGTERM/SIGINT.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logs go to stderr; stdout carries command output.
	obsCfg := observability.Config{
		Enabled:     cfg.Observability.OTelEnabled,
		ServiceName: cfg.Observability.ServiceName,
		Level:       level,
		Output:      os.Stderr,
	}

	lp, logger, err := observability.InitLogger(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() {
		// Use a timeout to prevent hanging if collector is unreachable
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown logger provider", "error", err)
		}
	}()
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("failed to init tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown tracer provider", "error", err)
		}
	}()

	mp, err := observability.InitMeterProvider(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("failed to init meter provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown meter provider", "error", err)
		}
	}()

	store, err := sqlstore.Open(ctx, sqlstore.DBConfig{
		Dialect:         sqlstore.Dialect(cfg.Database.Driver),
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	slog.InfoContext(ctx, "storage initialized", "driver", cfg.Database.Driver, "dsn", maskPassword(cfg.Database.DSN))

	catalog, err := buildCatalog(cfg.Catalog)
	if err != nil {
		store.Close()
		return err
	}

	archive, archiveCloser, err := openArchive(ctx, cfg.Archive)
	if err != nil {
		store.Close()
		return err
	}

	// The watcher only pays off for a long-running session.
	var watcher io.Closer
	if cfg.Catalog.Watch && rest[0] == "session" {
		w, err := catalogfile.Watch(ctx, cfg.Catalog.File, catalog)
		if err != nil {
			slog.WarnContext(ctx, "catalog hot reload disabled", "error", err)
		} else {
			watcher = w
		}
	}

	persister := planner.NewPersister(ctx, store, planner.PersisterConfig{SaveTimeout: cfg.Persistence.SaveTimeout})
	defer newCleanup(cfg.ShutdownTimeout, persister, watcher, archiveCloser, store)()

	a := newApp(store, catalog, archive, persister, time.Now, stdout)

	switch rest[0] {
	case "init", "load", "cleanup":
	default:
		criterion := domain.CurrentWeek(time.Now())
		if *weekFlag != "" {
			date, err := domain.ParseDate(*weekFlag)
			if err != nil {
				return fmt.Errorf("%w: -week: %v", errUsage, err)
			}
			criterion = domain.WeekByDate(date)
		}
		if err := a.autoload(ctx, criterion); err != nil {
			return err
		}
	}

	if rest[0] == "session" {
		return a.session(ctx, stdin)
	}
	return a.execute(ctx, rest)
}

// buildCatalog seeds the catalog from the YAML file when one is configured,
// otherwise from the built-in definitions.
func buildCatalog(cfg config.CatalogConfig) (*planner.Catalog, error) {
	defs := planner.DefaultDefinitions()
	if cfg.File != "" {
		loaded, err := catalogfile.Load(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog file: %w", err)
		}
		defs = loaded
	}

	catalog, err := planner.NewCatalog(defs...)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}
	return catalog, nil
}

// openArchive returns a nil store when archiving is disabled. The closer is
// non-nil only for backends holding a client.
func openArchive(ctx context.Context, cfg config.ArchiveConfig) (planner.ArchiveStore, io.Closer, error) {
	switch cfg.Type {
	case config.ArchiveFS:
		store, err := fs.NewStore(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open archive: %w", err)
		}
		slog.InfoContext(ctx, "archive initialized", "type", cfg.Type, "dir", cfg.Dir)
		return store, nil, nil
	case config.ArchiveGCS:
		store, err := gcs.NewStore(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open archive: %w", err)
		}
		slog.InfoContext(ctx, "archive initialized", "type", cfg.Type, "bucket", cfg.Bucket, "prefix", cfg.Prefix)
		return store, store, nil
	default:
		return nil, nil, nil
	}
}

func printUsage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintf(w, "usage: minerva [-week YYYY-MM-DD] <command> [args]\n\ncommands:\n")

	names := make([]string, 0, len(commands)+1)
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
	fmt.Fprintf(w, "  session (read commands from stdin, one per line)\n\nflags:\n")

	flags.SetOutput(w)
	flags.PrintDefaults()
}

// maskPassword redacts the password in URL-shaped DSNs for logging.
func maskPassword(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
