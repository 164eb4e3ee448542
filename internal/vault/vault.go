// Package vault is the default application driven by the CLI: a local,
// content-addressed store of files backed by SQLite.
package vault

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"evolvedvault.dev/internal/ctxlog"
	vfs "evolvedvault.dev/internal/fs"
	"evolvedvault.dev/internal/lock"
	"evolvedvault.dev/internal/store"
)

const memoryPath = ":memory:"

var (
	// ErrVaultEmpty is returned when an export is requested from a vault with no items.
	ErrVaultEmpty = errors.New("vault is empty")
	// ErrVaultLocked is returned when another process holds the vault past the lock timeout.
	ErrVaultLocked = errors.New("vault is locked by another process")
)

// Options are the per-invocation settings of a Vault.
type Options struct {
	// Invocation identifies the run in the journal and in logs.
	Invocation  string
	Verbose     bool
	Input       string
	Output      string
	Path        string
	LockTimeout time.Duration
	Journal     bool
}

// Option customizes a Vault.
type Option func(*Vault)

// WithFilesystem sets the filesystem used for input and output files.
func WithFilesystem(fsys afero.Fs) Option {
	return func(v *Vault) {
		v.fs = fsys
	}
}

// WithStreams sets the readers and writers that "-" refers to.
func WithStreams(stdin io.Reader, stdout io.Writer) Option {
	return func(v *Vault) {
		v.stdin = stdin
		v.stdout = stdout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithStore injects an open database. The vault does not close it.
func WithStore(db *sql.DB) Option {
	return func(v *Vault) {
		v.db = db
		v.ownsDB = false
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// Vault ingests, exports and reports on stored items.
type Vault struct {
	opts   Options
	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	logger *slog.Logger
	now    func() time.Time

	db     *sql.DB
	ownsDB bool
}

// New creates a vault for one invocation. Nothing is opened until Execute.
func New(opts Options, options ...Option) *Vault {
	v := &Vault{
		opts:   opts,
		fs:     vfs.NewDefaultFactory().Production(),
		stdout: io.Discard,
		logger: ctxlog.Discard(),
		now:    time.Now,
		ownsDB: true,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Execute runs the invocation: ingest Input, export to Output, or print the
// vault status when neither is set. The vault lock is held throughout.
func (v *Vault) Execute(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, v.logger)
	v.logger.Debug("executing vault",
		"path", v.opts.Path,
		"input", v.opts.Input,
		"output", v.opts.Output,
		"journal", v.opts.Journal)

	if v.opts.Path == "" {
		return fmt.Errorf("vault path is empty")
	}

	release, err := v.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := release(); rerr != nil && err == nil {
			err = fmt.Errorf("failed to release vault lock: %w", rerr)
		}
	}()

	if err := v.openStore(); err != nil {
		return err
	}
	defer func() {
		if cerr := v.closeStore(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close vault: %w", cerr)
		}
	}()

	var runID int64
	if v.opts.Journal {
		runID, err = store.BeginRun(ctx, v.db, store.Run{
			Invocation: v.opts.Invocation,
			StartedAt:  v.now(),
			Verbose:    v.opts.Verbose,
			Input:      v.opts.Input,
			Output:     v.opts.Output,
		})
		if err != nil {
			return fmt.Errorf("failed to journal run: %w", err)
		}
	}

	item, runErr := v.run(ctx)

	if v.opts.Journal {
		status, errText := store.RunSucceeded, ""
		if runErr != nil {
			status, errText = store.RunFailed, runErr.Error()
		}
		var itemID *int64
		if item != nil {
			itemID = &item.ID
		}
		if ferr := store.FinishRun(ctx, v.db, runID, status, errText, itemID, v.now()); ferr != nil {
			v.logger.Warn("failed to finish journal entry", "run_id", runID, "error", ferr)
			if runErr == nil {
				runErr = fmt.Errorf("failed to journal run: %w", ferr)
			}
		}
	}

	return runErr
}

// Close releases the database if the vault opened it.
func (v *Vault) Close() error {
	return v.closeStore()
}

func (v *Vault) run(ctx context.Context) (*store.Item, error) {
	var item *store.Item

	if v.opts.Input != "" {
		stored, err := v.ingest(ctx)
		if err != nil {
			return nil, err
		}
		item = &stored
	}

	if v.opts.Output != "" {
		exported, err := v.export(ctx, item)
		if err != nil {
			return item, err
		}
		item = &exported
	}

	if v.opts.Input == "" && v.opts.Output == "" {
		return nil, v.printStatus(ctx)
	}
	return item, nil
}

func (v *Vault) ingest(ctx context.Context) (store.Item, error) {
	data, err := vfs.ReadSource(v.fs, v.opts.Input, v.stdin)
	if err != nil {
		return store.Item{}, err
	}

	mt := mimetype.Detect(data)
	sum := sha256.Sum256(data)

	stored, existed, err := store.PutItem(ctx, v.db, store.Item{
		Name:      itemName(v.opts.Input),
		SHA256:    hex.EncodeToString(sum[:]),
		MIMEType:  mt.String(),
		Extension: mt.Extension(),
		Size:      int64(len(data)),
		Content:   data,
		CreatedAt: v.now(),
	})
	if err != nil {
		return store.Item{}, fmt.Errorf("failed to store %s: %w", v.opts.Input, err)
	}

	v.logger.Info("item ingested",
		"id", stored.ID,
		"name", stored.Name,
		"mime_type", stored.MIMEType,
		"size", stored.Size,
		"deduplicated", existed)
	return stored, nil
}

func (v *Vault) export(ctx context.Context, item *store.Item) (store.Item, error) {
	var target store.Item
	if item != nil {
		target = *item
	} else {
		latest, err := store.LatestItem(ctx, v.db)
		if errors.Is(err, store.ErrNotFound) {
			return store.Item{}, ErrVaultEmpty
		}
		if err != nil {
			return store.Item{}, fmt.Errorf("failed to load latest item: %w", err)
		}
		target = latest
	}

	if err := vfs.WriteDestination(v.fs, v.opts.Output, target.Content, v.stdout); err != nil {
		return target, err
	}

	v.logger.Info("item exported", "id", target.ID, "output", v.opts.Output, "size", target.Size)
	return target, nil
}

func (v *Vault) printStatus(ctx context.Context) error {
	count, err := store.CountItems(ctx, v.db)
	if err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}

	line := fmt.Sprintf("vault %s: %d item(s)", v.opts.Path, count)
	if count > 0 {
		latest, err := store.LatestItem(ctx, v.db)
		if err != nil {
			return fmt.Errorf("failed to load latest item: %w", err)
		}
		line += fmt.Sprintf(", latest %q %s %d bytes", latest.Name, latest.MIMEType, latest.Size)
	}

	if _, err := fmt.Fprintln(v.stdout, line); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

func (v *Vault) acquireLock(ctx context.Context) (lock.Release, error) {
	if v.opts.Path == memoryPath {
		return func() error { return nil }, nil
	}

	release, err := lock.Acquire(ctx, v.opts.Path+".lock", v.opts.LockTimeout)
	if errors.Is(err, lock.ErrTimeout) {
		return nil, fmt.Errorf("%w: %w", ErrVaultLocked, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock vault: %w", err)
	}
	return release, nil
}

func (v *Vault) openStore() error {
	if v.db != nil {
		return nil
	}
	db, err := store.NewDatabase(v.opts.Path)
	if err != nil {
		return fmt.Errorf("failed to open vault %s: %w", v.opts.Path, err)
	}
	v.db = db
	v.ownsDB = true
	return nil
}

func (v *Vault) closeStore() error {
	if !v.ownsDB || v.db == nil {
		return nil
	}
	err := v.db.Close()
	v.db = nil
	return err
}

func itemName(input string) string {
	if input == vfs.StreamPath {
		return "stdin"
	}
	return filepath.Base(input)
}
