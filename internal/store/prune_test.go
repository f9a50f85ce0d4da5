package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tarballs returns n archives, index 0 oldest.
func tarballs(n int) []Object {
	objects := make([]Object, n)
	for i := range objects {
		objects[i] = NewObject(
			fmt.Sprintf("app_%02d.tar.gz", i),
			base.Add(time.Duration(i)*time.Hour),
			1,
			"",
		)
	}
	return objects
}

func TestPrune_DeletesOldestOverflowOnly(t *testing.T) {
	api := newFakeAPI()
	api.listing = append(tarballs(10), NewObject("readme.md", base.Add(100*time.Hour), 1, ""))
	s := storeWith(api, "", 0)

	require.NoError(t, s.Prune(context.Background(), 5, []string{"tar.gz"}))

	assert.ElementsMatch(t, []string{
		"app_00.tar.gz", "app_01.tar.gz", "app_02.tar.gz", "app_03.tar.gz", "app_04.tar.gz",
	}, api.deleted)
}

func TestPrune_UnmatchedObjectsAreNeverPruned(t *testing.T) {
	api := newFakeAPI()
	for i := 0; i < 20; i++ {
		api.listing = append(api.listing,
			NewObject(fmt.Sprintf("dump_%02d.sql", i), base.Add(time.Duration(i)*time.Minute), 1, ""))
	}
	s := storeWith(api, "", 0)

	require.NoError(t, s.Prune(context.Background(), 0, nil))
	assert.Empty(t, api.deleted)
}

func TestPrune_RetainZeroDeletesAllMatches(t *testing.T) {
	api := newFakeAPI()
	api.listing = tarballs(4)
	s := storeWith(api, "", 0)

	require.NoError(t, s.Prune(context.Background(), 0, []string{"tar.gz"}))
	assert.Len(t, api.deleted, 4)
}

func TestPrune_EmptyStoreIsNoOp(t *testing.T) {
	api := newFakeAPI()
	s := storeWith(api, "", 0)

	require.NoError(t, s.Prune(context.Background(), 5, nil))
	assert.Empty(t, api.deleted)
}

func TestPrune_SecondRunDeletesNothing(t *testing.T) {
	api := newFakeAPI()
	api.listing = tarballs(10)
	s := storeWith(api, "", 0)

	require.NoError(t, s.Prune(context.Background(), 5, []string{"tar.gz"}))
	firstRun := len(api.deleted)
	require.Equal(t, 5, firstRun)

	// Drop the pruned objects from the listing, as the backend would.
	pruned := map[string]bool{}
	for _, key := range api.deleted {
		pruned[key] = true
	}
	var remaining []Object
	for _, o := range api.listing {
		if !pruned[o.Filename()] {
			remaining = append(remaining, o)
		}
	}
	api.listing = remaining

	require.NoError(t, s.Prune(context.Background(), 5, []string{"tar.gz"}))
	assert.Len(t, api.deleted, firstRun)
}

func TestPrune_DefaultPatternsCoverDebAndTarGz(t *testing.T) {
	api := newFakeAPI()
	api.listing = []Object{
		NewObject("app_old.deb", base.Add(1*time.Hour), 1, ""),
		NewObject("app_new.deb", base.Add(2*time.Hour), 1, ""),
		NewObject("app_old.tar.gz", base.Add(1*time.Hour), 1, ""),
		NewObject("app_new.tar.gz", base.Add(2*time.Hour), 1, ""),
	}
	s := storeWith(api, "", 0)

	require.NoError(t, s.Prune(context.Background(), 1, nil))
	assert.ElementsMatch(t, []string{"app_old.deb", "app_old.tar.gz"}, api.deleted)
}
