package storage

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gabrielcapilla/sdrtune/internal/domain"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BboltStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewBboltStore(dbPath)
	require.NoError(t, err, "Failed to create new bbolt store")
	t.Cleanup(func() { store.Close() })
	return store
}

func station(kind domain.Kind, freq float64, sub int, title string, fav bool) domain.SavedStation {
	return domain.SavedStation{
		Target:     domain.StationTarget{Kind: kind, Frequency: freq, Subchannel: sub},
		Title:      title,
		IsFavorite: fav,
	}
}

func titles(stations []domain.SavedStation) []string {
	out := make([]string, len(stations))
	for i, s := range stations {
		out[i] = s.Title
	}
	return out
}

func TestBboltStore_Stations(t *testing.T) {
	store := newTestStore(t)

	kqed := station(domain.KindHDRadio, 88.5, 1, "KQED", true)
	kfog := station(domain.KindFM, 104.5, 0, "KFOG", false)
	kcbs := station(domain.KindAM, 740, 0, "KCBS", false)

	require.NoError(t, store.Save(kqed))
	require.NoError(t, store.Save(kfog))
	require.NoError(t, store.Save(kcbs))

	duplicate := station(domain.KindHDRadio, 88.5, 0, "KQED again", false)
	require.NoError(t, store.Save(duplicate))

	stations, err := store.List(domain.SortFreqAsc)
	require.NoError(t, err)
	require.Len(t, stations, 3, "A loosely matching station must not be saved twice")
	require.Equal(t, []string{"KQED", "KFOG", "KCBS"}, titles(stations))

	saved, err := store.IsSaved(domain.StationTarget{Kind: domain.KindHDRadio, Frequency: 88.5})
	require.NoError(t, err)
	require.True(t, saved)

	saved, err = store.IsSaved(domain.StationTarget{Kind: domain.KindFM, Frequency: 88.5})
	require.NoError(t, err)
	require.False(t, saved)

	require.NoError(t, store.Remove(kfog))
	stations, err = store.List(domain.SortFreqAsc)
	require.NoError(t, err)
	require.Equal(t, []string{"KQED", "KCBS"}, titles(stations))

	require.ErrorIs(t, store.Save(station(domain.KindFM, 0, 0, "bad", false)), domain.ErrInvalidTarget)
}

func TestBboltStore_Update(t *testing.T) {
	store := newTestStore(t)

	old := station(domain.KindFM, 98.7, 0, "Old name", false)
	require.NoError(t, store.Save(old))

	renamed := old
	renamed.Title = "New name"
	renamed.IsFavorite = true
	require.NoError(t, store.Update(old, renamed))

	stations, err := store.List(domain.SortFavorites)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	require.Equal(t, "New name", stations[0].Title)
	require.True(t, stations[0].IsFavorite)

	missing := station(domain.KindAM, 1010, 0, "Missing", false)
	added := station(domain.KindAM, 1010, 0, "Added", false)
	require.NoError(t, store.Update(missing, added))

	stations, err = store.List(domain.SortAlphaAsc)
	require.NoError(t, err)
	require.Equal(t, []string{"Added", "New name"}, titles(stations))
}

func TestBboltStore_Sorting(t *testing.T) {
	store := newTestStore(t)
	for _, s := range []domain.SavedStation{
		station(domain.KindFM, 101.1, 0, "Bravo", false),
		station(domain.KindAM, 680, 0, "Alpha", true),
		station(domain.KindHDRadio, 90.3, 2, "Charlie", false),
	} {
		require.NoError(t, store.Save(s))
	}

	testCases := []struct {
		sort     domain.SortOption
		expected []string
	}{
		{domain.SortAlphaAsc, []string{"Alpha", "Bravo", "Charlie"}},
		{domain.SortAlphaDesc, []string{"Charlie", "Bravo", "Alpha"}},
		{domain.SortFreqAsc, []string{"Charlie", "Bravo", "Alpha"}},
		{domain.SortFreqDesc, []string{"Alpha", "Bravo", "Charlie"}},
		{domain.SortFavorites, []string{"Alpha", "Charlie", "Bravo"}},
		{domain.SortStationType, []string{"Charlie", "Bravo", "Alpha"}},
	}

	for _, tc := range testCases {
		t.Run(string(tc.sort), func(t *testing.T) {
			stations, err := store.List(tc.sort)
			require.NoError(t, err)
			require.Equal(t, tc.expected, titles(stations))
		})
	}
}

func TestBboltStore_TuningParams(t *testing.T) {
	store := newTestStore(t)

	_, found, err := store.TuningParams(domain.KindFM)
	require.NoError(t, err)
	require.False(t, found)

	params := domain.TuningParams{Volume: 0.8, Gain: 28, SampleRate: 170000}
	require.NoError(t, store.SetTuningParams(domain.KindFM, params))

	got, found, err := store.TuningParams(domain.KindFM)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, params, got)

	require.Error(t, store.SetTuningParams(domain.Kind(9), params))
}

func TestBboltStore_ListeningTime(t *testing.T) {
	store := newTestStore(t)

	total, err := store.ListeningTime()
	require.NoError(t, err)
	require.Zero(t, total)

	_, err = store.AddListeningTime(30 * time.Second)
	require.NoError(t, err)
	total, err = store.AddListeningTime(45 * time.Second)
	require.NoError(t, err)
	require.Equal(t, 75*time.Second, total)

	total, err = store.ListeningTime()
	require.NoError(t, err)
	require.Equal(t, 75*time.Second, total)
}

func TestBboltStore_ExportImport(t *testing.T) {
	src := newTestStore(t)
	require.NoError(t, src.Save(station(domain.KindHDRadio, 101.5, 2, "KNBR", true)))
	require.NoError(t, src.Save(station(domain.KindAM, 810, 0, "KGO", false)))

	var buf bytes.Buffer
	require.NoError(t, src.Export(&buf))
	require.Contains(t, buf.String(), "kind: hd")
	require.Contains(t, buf.String(), "favorite: true")

	dst := newTestStore(t)
	n, err := dst.Import(&buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	stations, err := dst.List(domain.SortFreqAsc)
	require.NoError(t, err)
	require.Equal(t, []string{"KNBR", "KGO"}, titles(stations))
	require.Equal(t, 2, stations[0].Target.Subchannel)

	_, err = dst.Import(strings.NewReader("version: 7\nstations: []\n"))
	require.Error(t, err)

	_, err = dst.Import(strings.NewReader("stations:\n  - target: {kind: fm, frequency: -1}\n    title: broken\n"))
	require.ErrorIs(t, err, domain.ErrInvalidTarget)
}
