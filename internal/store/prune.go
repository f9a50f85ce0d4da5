package store

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultPatterns are the archive categories subject to retention when a
// prune call does not name its own.
var DefaultPatterns = []string{"deb", "tar.gz"}

// Prune enforces a keep-N-most-recent rule per category. Each pattern is
// evaluated independently: objects whose filename contains the pattern
// are ordered newest first and everything past retain is deleted.
//
// Objects matching no pattern are never pruned. A retain of zero deletes
// every match. An object matching two patterns can land in two delete
// batches; deletes are idempotent on missing keys, so that is harmless.
func (s *Store) Prune(ctx context.Context, retain int, patterns []string) error {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	listing, err := s.List(ctx)
	if err != nil {
		return err
	}
	if listing.Len() == 0 {
		return nil
	}

	for _, pattern := range patterns {
		matched := listing.
			Filter(func(o Object) bool { return strings.Contains(o.Filename(), pattern) }).
			Ordered(ByModified, true)
		if matched.Len() <= retain {
			continue
		}

		overflow := matched.Slice(retain, matched.Len())
		if err := s.Delete(ctx, overflow); err != nil {
			return err
		}
		log.Info().
			Str("action", "prune").
			Str("container", s.bucket).
			Str("pattern", pattern).
			Int("retain", retain).
			Int("deleted", overflow.Len()).
			Msg("pruned overflow")
	}
	return nil
}
