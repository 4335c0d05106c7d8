// Package partition maps document context onto the physical layout of the
// compressed-text store: one SQLite file per (region, year) bucket beneath a
// base directory, plus one reserved file holding the store-wide fallback
// dictionary.
package partition

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// UnknownRegion is the reserved bucket for records whose region is not known.
	UnknownRegion = "_unknown"
	// NoDate is the reserved bucket for records whose publication year is not known.
	NoDate = "_nodate"
	// GlobalDictFile is the reserved file holding the store-wide dictionary.
	// It never resolves from caller inputs, and scans must skip it.
	GlobalDictFile = "_global_dict.sqlite"

	fileExt = ".sqlite"
)

// Key identifies one partition of the store. Identical inputs always resolve
// to an identical Key; a Key maps 1:1 to one file beneath the base directory.
type Key struct {
	Region string
	Year   string
}

// Resolve derives the Key for a record. A zero regionID or year selects the
// corresponding reserved bucket, so every record has a deterministic home
// even with incomplete metadata.
func Resolve(regionID int64, year int) Key {
	var k = Key{Region: UnknownRegion, Year: NoDate}
	if regionID != 0 {
		k.Region = strconv.FormatInt(regionID, 10)
	}
	if year != 0 {
		k.Year = strconv.Itoa(year)
	}
	return k
}

// RelPath returns the partition's file path relative to the store base
// directory, eg "116/2024.sqlite".
func (k Key) RelPath() string {
	return filepath.Join(k.Region, k.Year+fileExt)
}

// Path returns the partition's absolute file path under |base|.
func (k Key) Path(base string) string {
	return filepath.Join(base, k.RelPath())
}

// String returns the forward-slashed relative path, used as a stable map key
// and in log fields.
func (k Key) String() string {
	return k.Region + "/" + k.Year + fileExt
}

// Scan walks |base| and returns the Key of every existing partition file,
// sorted by relative path. The global-dictionary file is excluded. A missing
// base directory yields an empty result rather than an error.
func Scan(base string) ([]Key, error) {
	var keys []Key

	var err = filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) || d.Name() == GlobalDictFile {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		var dir, file = filepath.Split(filepath.ToSlash(rel))
		if dir == "" {
			return nil // Not region/year shaped.
		}
		keys = append(keys, Key{
			Region: strings.Trim(dir, "/"),
			Year:   strings.TrimSuffix(file, fileExt),
		})
		return nil
	})

	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Base doesn't exist yet; an empty store.
		}
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}
