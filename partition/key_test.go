package partition

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveIsDeterministic(t *testing.T) {
	require.Equal(t, Resolve(116, 2024), Resolve(116, 2024))
	require.Equal(t, Key{Region: "116", Year: "2024"}, Resolve(116, 2024))
}

func TestResolveReservedBuckets(t *testing.T) {
	require.Equal(t, Key{Region: UnknownRegion, Year: "2024"}, Resolve(0, 2024))
	require.Equal(t, Key{Region: "116", Year: NoDate}, Resolve(116, 0))
	require.Equal(t, Key{Region: UnknownRegion, Year: NoDate}, Resolve(0, 0))
}

func TestKeyPaths(t *testing.T) {
	var k = Resolve(116, 2024)
	require.Equal(t, filepath.Join("116", "2024.sqlite"), k.RelPath())
	require.Equal(t, "116/2024.sqlite", k.String())
	require.Equal(t, filepath.Join("/base", "116", "2024.sqlite"), k.Path("/base"))
}

func TestScan(t *testing.T) {
	var dir = t.TempDir()
	for _, p := range []string{
		"116/2024.sqlite",
		"116/2023.sqlite",
		"_unknown/_nodate.sqlite",
		GlobalDictFile,       // Excluded: reserved name.
		"116/notes.txt",      // Excluded: not a partition file.
		"orphan.sqlite",      // Excluded: not region/year shaped.
	} {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, p)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, p), nil, 0o644))
	}

	var keys, err = Scan(dir)
	require.NoError(t, err)
	require.Equal(t, []Key{
		{Region: "116", Year: "2023"},
		{Region: "116", Year: "2024"},
		{Region: UnknownRegion, Year: NoDate},
	}, keys)
}

func TestScanMissingBase(t *testing.T) {
	var keys, err = Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Empty(t, keys)
}
