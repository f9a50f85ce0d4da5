// Package staging assembles backup archives in an isolated temporary
// workspace. A workspace lives for exactly one stage -> compress sequence
// and is removed by Release on every exit path.
package staging

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"
)

// ErrIncludesNotDir is returned when include patterns are supplied for a
// target that is not a directory.
var ErrIncludesNotDir = errors.New("includes can only be used with a directory target")

// Workspace is an exclusively owned temporary directory under which one
// backup artifact is staged and compressed.
type Workspace struct {
	root string // unique workspace directory
	name string // staged subtree base name
	path string // current artifact: staged subtree, then archive
}

// Begin allocates a uniquely named workspace under rootHint. An empty
// rootHint means the system temp directory. The random numeric name keeps
// concurrent invocations sharing one temp root from colliding.
func Begin(rootHint string) (*Workspace, error) {
	if rootHint == "" {
		rootHint = os.TempDir()
	}
	id := strconv.Itoa(100_000_000 + rand.Intn(900_000_000))
	root := filepath.Join(rootHint, id)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

// Stage copies target into the workspace and returns the staged path.
//
// A single file is copied under its base name with its mode preserved.
// For a directory, includes (default: everything) are resolved as globs
// relative to the target; each match is copied to its target-relative
// path under <workspace>/<base(target)>, recursively for directories,
// preserving file modes and symbolic links.
func (w *Workspace) Stage(target string, includes []string) (string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("stat target: %w", err)
	}
	if !info.IsDir() && len(includes) > 0 {
		return "", ErrIncludesNotDir
	}

	name := filepath.Base(filepath.Clean(target))
	staged := filepath.Join(w.root, name)
	w.name = name
	w.path = staged

	if !info.IsDir() {
		if err := copyFile(target, staged); err != nil {
			return "", err
		}
		return staged, nil
	}

	if len(includes) == 0 {
		includes = []string{"*"}
	}
	if err := os.MkdirAll(staged, 0o755); err != nil {
		return "", fmt.Errorf("create staged root: %w", err)
	}

	var matches []string
	for _, pattern := range includes {
		found, err := filepath.Glob(filepath.Join(target, pattern))
		if err != nil {
			return "", fmt.Errorf("include pattern %q: %w", pattern, err)
		}
		matches = append(matches, found...)
	}

	for _, match := range matches {
		rel, err := filepath.Rel(target, match)
		if err != nil {
			return "", fmt.Errorf("relativize %s: %w", match, err)
		}
		dst := filepath.Join(staged, rel)
		if err := copyEntry(match, dst); err != nil {
			return "", err
		}
	}

	log.Debug().
		Str("action", "stage").
		Str("target", target).
		Str("staged", staged).
		Int("matches", len(matches)).
		Msg("staging complete")
	return staged, nil
}

// Name returns the base name of the current artifact.
func (w *Workspace) Name() string {
	return filepath.Base(w.path)
}

// Path returns the current artifact path.
func (w *Workspace) Path() string {
	return w.path
}

// Root returns the workspace directory itself.
func (w *Workspace) Root() string {
	return w.root
}

// Release removes the whole workspace tree. Safe to defer unconditionally.
func (w *Workspace) Release() {
	if err := os.RemoveAll(w.root); err != nil {
		log.Warn().
			Err(err).
			Str("workspace", w.root).
			Msg("workspace cleanup failed")
	}
}
