// Package backup composes the staging pipeline and the remote store into
// the three user-facing operations: backup, restore and prune.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mferon/blobpack/internal/staging"
	"github.com/mferon/blobpack/internal/store"
)

// ObjectStore is the remote-store surface the handler consumes.
// *store.Store implements it.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, remoteName string) error
	Download(ctx context.Context, identifier, localDir, asFilename string) (string, error)
	Prune(ctx context.Context, retain int, patterns []string) error
}

// Handler runs backup/restore/prune against one store and one configured
// backup target. It keeps no state across calls; each backup or restore
// opens its own workspace.
type Handler struct {
	store     ObjectStore
	backupDir string
	includes  []string
	tempRoot  string
}

// Option configures a Handler.
type Option func(*Handler)

// WithTempRoot overrides the temp root under which workspaces are
// created. Empty means the system temp directory.
func WithTempRoot(dir string) Option {
	return func(h *Handler) { h.tempRoot = dir }
}

// New builds a Handler for the given store and backup target.
func New(st ObjectStore, backupDir string, includes []string, opts ...Option) *Handler {
	h := &Handler{store: st, backupDir: backupDir, includes: includes}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Backup stages the target directory (configured includes applied),
// compresses it and uploads the archive under its workspace-derived
// name. The workspace is released on every exit path.
func (h *Handler) Backup(ctx context.Context, targetOverride, renameTo string) error {
	target := resolvePath(firstNonEmpty(targetOverride, h.backupDir))
	return withLifecycle("backup", target, func() error {
		ws, err := staging.Begin(h.tempRoot)
		if err != nil {
			return err
		}
		defer ws.Release()

		if _, err := ws.Stage(target, h.includes); err != nil {
			return err
		}
		if _, err := ws.Compress(renameTo); err != nil {
			return err
		}
		return h.store.Upload(ctx, ws.Path(), ws.Name())
	})
}

// Restore downloads the latest archive into a fresh temporary directory
// and extracts it into the target directory. If the target is an
// existing file, extraction lands in its parent directory.
func (h *Handler) Restore(ctx context.Context, directoryOverride string) error {
	target := resolvePath(firstNonEmpty(directoryOverride, h.backupDir))
	return withLifecycle("restore", target, func() error {
		dest := target
		if info, err := os.Stat(dest); err == nil && !info.IsDir() {
			dest = filepath.Dir(dest)
		}

		tmp, err := os.MkdirTemp(h.tempRoot, "restore-*")
		if err != nil {
			return fmt.Errorf("create download dir: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()

		local, err := h.store.Download(ctx, store.Latest, tmp, "")
		if err != nil {
			return err
		}
		return staging.Extract(local, dest)
	})
}

// Prune delegates to the store's retention policy. It opens no
// workspace.
func (h *Handler) Prune(ctx context.Context, retain int) error {
	return withLifecycle("prune", fmt.Sprintf("retain=%d", retain), func() error {
		return h.store.Prune(ctx, retain, nil)
	})
}

// withLifecycle wraps an operation body with its start/success/failure
// notifications. Failures are logged once, with the error's type name
// and message, and returned unchanged.
func withLifecycle(op, target string, fn func() error) error {
	start := time.Now()
	log.Info().
		Str("action", op).
		Str("target", target).
		Msg(op + " starting")

	if err := fn(); err != nil {
		log.Error().
			Err(err).
			Str("action", op).
			Str("target", target).
			Str("error_type", fmt.Sprintf("%T", err)).
			Dur("elapsed_ms", time.Since(start)).
			Msg(op + " failed")
		return err
	}

	log.Info().
		Str("action", op).
		Str("target", target).
		Dur("elapsed_ms", time.Since(start)).
		Msg(op + " OK")
	return nil
}

// resolvePath expands a leading ~ and normalises trailing separators.
func resolvePath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Clean(p)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
