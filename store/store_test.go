package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.opendesky.dev/textstore/partition"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	var s, _ = newTestStore(t)
	var ctx = TextContext{ItemID: 1, RegionID: 116, Year: 2024}

	var size, err = s.Save(ctx, "Rozhodnutí č. 1 — veřejná vyhláška, žluťoučký kůň")
	require.NoError(t, err)
	require.Greater(t, size, 0)

	text, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Rozhodnutí č. 1 — veřejná vyhláška, žluťoučký kůň", text)
}

func TestSaveEmptyText(t *testing.T) {
	var s, _ = newTestStore(t)
	var ctx = TextContext{ItemID: 1, RegionID: 116, Year: 2024}

	var _, err = s.Save(ctx, "")
	require.NoError(t, err)

	text, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "", text)
}

func TestSaveOverwritesExisting(t *testing.T) {
	var s, _ = newTestStore(t)
	var ctx = TextContext{ItemID: 7, RegionID: 116, Year: 2024}

	var _, err = s.Save(ctx, "first version")
	require.NoError(t, err)
	_, err = s.Save(ctx, "second version")
	require.NoError(t, err)

	text, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second version", text)

	// Exactly one record remains.
	var pdb = testPartitionDB(t, s, partition.Resolve(116, 2024))
	n, err := pdb.countTexts()
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestLoadMissingRecord(t *testing.T) {
	var s, _ = newTestStore(t)
	var _, err = s.Save(TextContext{ItemID: 1, RegionID: 116, Year: 2024}, "text")
	require.NoError(t, err)

	_, ok, err := s.Load(TextContext{ItemID: 2, RegionID: 116, Year: 2024})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadMissingPartitionFile(t *testing.T) {
	var s, base = newTestStore(t)

	var _, ok, err = s.Load(TextContext{ItemID: 1, RegionID: 116, Year: 2024})
	require.NoError(t, err)
	require.False(t, ok)

	// Loads never create partition files as a side effect.
	_, err = os.Stat(base)
	require.True(t, os.IsNotExist(err))
}

func TestLoadByPartition(t *testing.T) {
	var s, _ = newTestStore(t)
	var _, err = s.Save(TextContext{ItemID: 42, RegionID: 116, Year: 2024}, "obsah dokumentu")
	require.NoError(t, err)

	text, ok, err := s.LoadByPartition(42, 116, 2024)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "obsah dokumentu", text)

	_, ok, err = s.LoadByPartition(43, 116, 2024)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPartitionFileLayout(t *testing.T) {
	var s, base = newTestStore(t)
	var _, err = s.Save(TextContext{ItemID: 1, RegionID: 116, Year: 2024}, "Rozhodnutí č. 1")
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(base, "116", "2024.sqlite"))
	require.NoDirExists(t, filepath.Join(base, partition.UnknownRegion))
	require.NoFileExists(t, filepath.Join(base, partition.GlobalDictFile))
}

func TestReservedBuckets(t *testing.T) {
	var s, base = newTestStore(t)

	var _, err = s.Save(TextContext{ItemID: 1, RegionID: 0, Year: 2024}, "bez regionu")
	require.NoError(t, err)
	_, err = s.Save(TextContext{ItemID: 2, RegionID: 116, Year: 0}, "bez data")
	require.NoError(t, err)

	require.FileExists(t, filepath.Join(base, "_unknown", "2024.sqlite"))
	require.FileExists(t, filepath.Join(base, "116", "_nodate.sqlite"))

	text, ok, err := s.Load(TextContext{ItemID: 1, RegionID: 0, Year: 2024})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bez regionu", text)
}

func TestMultipleYearsSameRegion(t *testing.T) {
	var s, base = newTestStore(t)

	for year := 2022; year <= 2024; year++ {
		var _, err = s.Save(TextContext{ItemID: 1, RegionID: 116, Year: year},
			fmt.Sprintf("dokument z roku %d", year))
		require.NoError(t, err)
	}
	for year := 2022; year <= 2024; year++ {
		require.FileExists(t, filepath.Join(base, "116", fmt.Sprintf("%d.sqlite", year)))

		var text, ok, err = s.Load(TextContext{ItemID: 1, RegionID: 116, Year: year})
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, fmt.Sprintf("dokument z roku %d", year), text)
	}
}

func TestDeleteExisting(t *testing.T) {
	var s, _ = newTestStore(t)
	var ctx = TextContext{ItemID: 1, RegionID: 116, Year: 2024}

	var _, err = s.Save(ctx, "text")
	require.NoError(t, err)

	deleted, err := s.Delete(ctx)
	require.NoError(t, err)
	require.True(t, deleted)

	exists, err := s.Exists(ctx)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDeleteMissing(t *testing.T) {
	var s, base = newTestStore(t)

	var deleted, err = s.Delete(TextContext{ItemID: 99, RegionID: 116, Year: 2024})
	require.NoError(t, err)
	require.False(t, deleted)

	// No partition file was created as a side effect.
	_, err = os.Stat(base)
	require.True(t, os.IsNotExist(err))
}

func TestExists(t *testing.T) {
	var s, _ = newTestStore(t)
	var ctx = TextContext{ItemID: 1, RegionID: 116, Year: 2024}

	var exists, err = s.Exists(ctx)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = s.Save(ctx, "text")
	require.NoError(t, err)

	exists, err = s.Exists(ctx)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestStatsEmpty(t *testing.T) {
	var s, _ = newTestStore(t)

	var stats, err = s.Stats()
	require.NoError(t, err)
	require.Equal(t, Stats{}, stats)
}

func TestStatsWithData(t *testing.T) {
	var s, _ = newTestStore(t)

	var texts = []string{"první dokument", "druhý dokument", "třetí dokument"}
	var originalBytes int64
	for i, text := range texts {
		var _, err = s.Save(TextContext{ItemID: int64(i + 1), RegionID: 116, Year: 2024}, text)
		require.NoError(t, err)
		originalBytes += int64(len(text))
	}

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(len(texts)), stats.TotalTexts)
	require.Equal(t, originalBytes, stats.TotalOriginalBytes)
	require.Greater(t, stats.TotalCompressedBytes, int64(0))
	require.Greater(t, stats.CompressionRatio, 0.0)
	require.Equal(t, 1, stats.NumFiles)
	require.Equal(t, int64(0), stats.NumDictionaries)
}

func TestStatsMultipleFiles(t *testing.T) {
	var s, _ = newTestStore(t)

	for i, ctx := range []TextContext{
		{ItemID: 1, RegionID: 116, Year: 2024},
		{ItemID: 2, RegionID: 117, Year: 2024},
		{ItemID: 3, RegionID: 116, Year: 2023},
	} {
		var _, err = s.Save(ctx, fmt.Sprintf("dokument %d", i))
		require.NoError(t, err)
	}

	var stats, err = s.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.TotalTexts)
	require.Equal(t, 3, stats.NumFiles)
}

func TestPartitionStats(t *testing.T) {
	var s, _ = newTestStore(t)

	var _, err = s.Save(TextContext{ItemID: 1, RegionID: 116, Year: 2024}, "dokument")
	require.NoError(t, err)
	_, err = s.Save(TextContext{ItemID: 2, RegionID: 117, Year: 2023}, "jiný dokument")
	require.NoError(t, err)

	parts, err := s.PartitionStats()
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, partition.Resolve(116, 2024), parts[0].Key)
	require.Equal(t, int64(1), parts[0].Texts)
	require.Equal(t, partition.Resolve(117, 2023), parts[1].Key)
}

func TestCloseAndReopen(t *testing.T) {
	var base = filepath.Join(t.TempDir(), "texts")
	var ctx = TextContext{ItemID: 1, RegionID: 116, Year: 2024}

	var s = NewStore(base)
	var _, err = s.Save(ctx, "persistentní text")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s = NewStore(base)
	defer s.Close()

	text, ok, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "persistentní text", text)
}

// newTestStore returns a Store over a base directory which does not yet
// exist, and closes it with the test.
func newTestStore(t *testing.T) (*Store, string) {
	var base = filepath.Join(t.TempDir(), "texts")
	var s = NewStore(base)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, base
}

// testPartitionDB exposes a partition's pooled handle for direct inspection.
func testPartitionDB(t *testing.T, s *Store, key partition.Key) *partitionDB {
	var pdb, err = s.partitionDB(key)
	require.NoError(t, err)
	return pdb
}
