// Package store wraps a single blob container and exposes an ordered,
// queryable view of the objects under one key prefix.
package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mferon/blobpack/internal/config"
)

// Latest is the sentinel identifier that resolves to the most recently
// modified object under the configured prefix.
const Latest = "backups.latest"

var (
	// ErrEmptyStore means Latest was requested but nothing is listed
	// under the prefix.
	ErrEmptyStore = errors.New("store is empty")
	// ErrMissingFilename means a non-Latest download was requested
	// without a remote filename.
	ErrMissingFilename = errors.New("target is not latest and no filename given")
	// ErrUnresolvable means a delete was given objects without filenames.
	ErrUnresolvable = errors.New("delete requires objects with resolvable filenames")
)

// Error wraps a transport or auth failure from the remote store.
type Error struct {
	Op        string
	Container string
	Key       string
	Err       error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %s/%s: %v", e.Op, e.Container, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Container, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// api is the narrow transport surface the store consumes. The Azure
// backend implements it; tests substitute an in-memory fake.
type api interface {
	Upload(ctx context.Context, key, localPath string) error
	Download(ctx context.Context, key, localPath string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// Store is the queryable view of one container + prefix. Container,
// prefix, credential profile and the default retain count are fixed at
// construction.
type Store struct {
	api    api
	bucket string
	prefix string
	retain int
}

// New builds a store backed by Azure Blob Storage.
func New(cfg config.Config) (*Store, error) {
	backend, err := newAzureAPI(cfg)
	if err != nil {
		return nil, err
	}
	return newStore(backend, cfg), nil
}

func newStore(backend api, cfg config.Config) *Store {
	return &Store{
		api:    backend,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Path, "/"),
		retain: cfg.Backup.Retain,
	}
}

// Upload sends a local file to prefix/remoteName (default: the file's
// base name). When a default retain count is configured, pruning runs
// synchronously before Upload returns. The local file is never touched.
func (s *Store) Upload(ctx context.Context, localPath, remoteName string) error {
	name := remoteName
	if name == "" {
		name = filepath.Base(filepath.Clean(localPath))
	}
	key := s.key(name)

	if err := s.api.Upload(ctx, key, localPath); err != nil {
		return &Error{Op: "upload", Container: s.bucket, Key: key, Err: err}
	}
	log.Info().
		Str("action", "upload").
		Str("container", s.bucket).
		Str("key", key).
		Msg("upload OK")

	if s.retain > 0 {
		return s.Prune(ctx, s.retain, nil)
	}
	return nil
}

// Download fetches one object into localDir and returns the local path.
//
// identifier == Latest resolves the most recently modified listed object
// (equal timestamps: the later listing entry wins). Any other identifier
// requires asFilename, the remote key to fetch. The resolved key's base
// name is used for the local file, so nothing is written before the key
// resolves.
func (s *Store) Download(ctx context.Context, identifier, localDir, asFilename string) (string, error) {
	var key string
	switch {
	case identifier == Latest:
		listing, err := s.List(ctx)
		if err != nil {
			return "", err
		}
		if listing.Len() == 0 {
			return "", ErrEmptyStore
		}
		ordered := listing.Ordered(ByModified, false).Objects()
		key = ordered[len(ordered)-1].Filename()
	case asFilename != "":
		key = asFilename
	default:
		return "", ErrMissingFilename
	}

	local := filepath.Join(localDir, path.Base(key))
	if err := s.api.Download(ctx, key, local); err != nil {
		return "", &Error{Op: "download", Container: s.bucket, Key: key, Err: err}
	}
	log.Info().
		Str("action", "download").
		Str("container", s.bucket).
		Str("key", key).
		Str("local", local).
		Msg("download OK")
	return local, nil
}

// List returns all objects under the configured prefix. An empty prefix
// listing is an empty collection, not an error.
func (s *Store) List(ctx context.Context) (Collection, error) {
	objects, err := s.api.List(ctx, s.prefix)
	if err != nil {
		return Collection{}, &Error{Op: "list", Container: s.bucket, Err: err}
	}
	return NewCollection(objects...), nil
}

// Delete removes every object named in the collection, one backend call
// per object. Deleting an already-missing key is not an error.
func (s *Store) Delete(ctx context.Context, collection Collection) error {
	names := collection.Filenames()
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return ErrUnresolvable
		}
	}
	for _, name := range names {
		if err := s.api.Delete(ctx, name); err != nil {
			return &Error{Op: "delete", Container: s.bucket, Key: name, Err: err}
		}
	}
	return nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
