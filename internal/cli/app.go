package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jladan/glacier-upload/internal/archiveindex"
	"github.com/jladan/glacier-upload/internal/config"
	"github.com/jladan/glacier-upload/internal/filex"
	"github.com/jladan/glacier-upload/internal/journal"
	"github.com/jladan/glacier-upload/internal/logging"
	"github.com/jladan/glacier-upload/internal/remote"
	"github.com/jladan/glacier-upload/internal/remote/awsconf"
	"github.com/jladan/glacier-upload/internal/remote/glacier"
	"github.com/jladan/glacier-upload/internal/remote/memory"
	"github.com/jladan/glacier-upload/internal/remote/s3"
	"github.com/jladan/glacier-upload/internal/storage"
	"github.com/jladan/glacier-upload/internal/upload"
)

// Seams for tests.
var (
	openSQLite   = storage.OpenSQLite
	openPostgres = storage.OpenPostgres

	newRemoteStore = defaultRemoteStore
)

// App holds the long-lived dependencies shared by the subcommands.
type App struct {
	cfg    *config.Config
	logger logging.Logger

	db      *sql.DB
	indexDB *sql.DB

	journal journal.Journal
	index   archiveindex.Repository

	store remote.Store
	coord *upload.Coordinator

	progress io.Writer
}

// NewApp opens the journal database and the archive index. The remote store
// is created on first use so that read-only commands work without
// credentials.
func NewApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &usageError{err: fmt.Errorf("invalid configuration: %w", err)}
	}

	logOut = &lockedWriter{w: logOut}
	logger, err := logging.New(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	if err := filex.EnsureParentDir(cfg.DatabasePath); err != nil {
		return nil, err
	}
	db, err := openSQLite(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		journal:  journal.NewSQLiteJournal(db),
		progress: logOut,
	}

	switch cfg.IndexBackend {
	case config.IndexPostgres:
		a.indexDB, err = openPostgres(ctx, cfg.IndexDSN)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open index database: %w", err)
		}
		a.index = archiveindex.NewPostgresRepository(a.indexDB)
	case config.IndexTSV:
		if err := filex.EnsureParentDir(cfg.IndexTSVPath); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.index = archiveindex.NewTSVRepository(cfg.IndexTSVPath)
	default:
		a.index = archiveindex.NewSQLiteRepository(db)
	}

	return a, nil
}

// Close releases the databases.
func (a *App) Close() error {
	var errs []error
	if a.indexDB != nil {
		errs = append(errs, a.indexDB.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// Coordinator returns the upload coordinator, connecting to the remote
// store if this is the first call.
func (a *App) Coordinator(ctx context.Context) (*upload.Coordinator, error) {
	if a.coord != nil {
		return a.coord, nil
	}
	store, err := newRemoteStore(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", a.cfg.Backend, err)
	}
	a.store = store
	a.coord = upload.NewCoordinator(store, a.journal, a.index, a.logger.With("backend", a.cfg.Backend), a.uploadOptions())
	return a.coord, nil
}

func (a *App) uploadOptions() upload.Options {
	opts := upload.DefaultOptions()
	opts.MaxConcurrentUploads = a.cfg.MaxConcurrentUploads
	opts.VerifyFile = a.cfg.VerifyFile
	opts.Retry = upload.RetryPolicy{
		MaxRetries: a.cfg.MaxRetries,
		Backoff:    upload.ExponentialBackoff(a.cfg.RetryBaseDelay, a.cfg.RetryMaxDelay),
	}
	opts.OnProgress = func(p upload.Progress) {
		fmt.Fprintf(a.progress, "%s: %d/%d parts, %s/%s\n",
			shortID(p.JobID), p.Done, p.Total, formatBytes(p.Bytes), formatBytes(p.TotalBytes))
	}
	return opts
}

func defaultRemoteStore(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	o := awsconf.Options{
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	}
	switch cfg.Backend {
	case config.BackendS3:
		store, err := s3.NewFromOptions(ctx, o, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return memory.New(), nil
	default:
		store, err := glacier.NewFromOptions(ctx, o, cfg.AccountID)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// lockedWriter serializes writes from the logger and the progress callback,
// which run on upload worker goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
