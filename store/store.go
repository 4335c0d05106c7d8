// Package store implements a partitioned, dictionary-compressed text store
// over per-partition SQLite files. Extracted document text is zstd-compressed
// with the best available trained dictionary and written one row per
// attachment, partitioned by (region, year) so each file holds a small corpus
// of similar administrative text.
package store

import (
	"math"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opendesky.dev/textstore/metrics"
	"go.opendesky.dev/textstore/partition"
)

// TextContext carries the attachment identity and partition coordinates of a
// text, as supplied by the extraction pipeline. A zero RegionID or Year routes
// to the corresponding reserved partition bucket.
type TextContext struct {
	ItemID   int64
	RegionID int64
	Year     int
}

// Stats aggregates the store's contents across every partition file.
type Stats struct {
	TotalTexts           int64
	TotalOriginalBytes   int64
	TotalCompressedBytes int64
	CompressionRatio     float64
	NumFiles             int
	NumDictionaries      int64
}

// Store is the public facade of the compressed text store. It owns one pooled
// SQLite connection per partition file, created on first use and held until
// Close, plus instance-local dictionary handle caches. A Store may be shared
// across goroutines; operations are serialized internally.
type Store struct {
	base string

	mu    sync.Mutex
	dbs   map[string]*partitionDB
	gdb   *partitionDB
	dicts dictManager
}

// NewStore returns a Store rooted at the base directory. The directory and
// partition files are created lazily on first write.
func NewStore(base string) *Store {
	return &Store{
		base:  base,
		dbs:   make(map[string]*partitionDB),
		dicts: newDictManager(),
	}
}

// Save compresses and upserts the text of the context's attachment, returning
// the compressed size in bytes. After the write, dictionary training triggers
// are evaluated; training failures are logged and never fail the save.
func (s *Store) Save(ctx TextContext, text string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key = partition.Resolve(ctx.RegionID, ctx.Year)
	var pdb, err = s.partitionDB(key)
	if err != nil {
		return 0, err
	}
	ref, err := s.activeRef(key, pdb)
	if err != nil {
		return 0, err
	}

	var data = ref.compress([]byte(text))
	if err = pdb.upsertText(ctx.ItemID, data, ref.tag, len(text)); err != nil {
		return 0, err
	}

	if err = s.maybeTrain(key, pdb); err != nil {
		log.WithFields(log.Fields{"partition": key.String(), "err": err}).
			Warn("dictionary training check failed")
	}

	metrics.TextSaveTotal.Inc()
	metrics.TextSaveBytesTotal.Add(float64(len(text)))
	metrics.TextCompressedBytesTotal.Add(float64(len(data)))
	return len(data), nil
}

// Load returns the text of the context's attachment. Absence of the partition
// file or of the record is a normal outcome, reported via the bool.
func (s *Store) Load(ctx TextContext) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadKey(partition.Resolve(ctx.RegionID, ctx.Year), ctx.ItemID)
}

// LoadByPartition is Load for callers which already hold the partition
// coordinates rather than a full extraction context.
func (s *Store) LoadByPartition(itemID, regionID int64, year int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadKey(partition.Resolve(regionID, year), itemID)
}

func (s *Store) loadKey(key partition.Key, itemID int64) (string, bool, error) {
	if !s.partitionFileExists(key) {
		return "", false, nil
	}
	var pdb, err = s.partitionDB(key)
	if err != nil {
		return "", false, err
	}
	data, tag, ok, err := pdb.getText(itemID)
	if err != nil || !ok {
		return "", false, err
	}
	text, err := s.decompressTagged(key, pdb, data, tag)
	if err != nil {
		return "", false, err
	}
	metrics.TextLoadTotal.Inc()
	return string(text), true, nil
}

// Delete removes the record of the context's attachment, reporting whether
// one existed. A missing partition file or record is a no-op, and no file is
// created as a side effect.
func (s *Store) Delete(ctx TextContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key = partition.Resolve(ctx.RegionID, ctx.Year)
	if !s.partitionFileExists(key) {
		return false, nil
	}
	var pdb, err = s.partitionDB(key)
	if err != nil {
		return false, err
	}
	return pdb.deleteText(ctx.ItemID)
}

// Exists reports whether text is stored for the context's attachment.
func (s *Store) Exists(ctx TextContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key = partition.Resolve(ctx.RegionID, ctx.Year)
	if !s.partitionFileExists(key) {
		return false, nil
	}
	var pdb, err = s.partitionDB(key)
	if err != nil {
		return false, err
	}
	return pdb.textExists(ctx.ItemID)
}

// Stats scans every partition file (the global-dictionary file excluded) and
// aggregates record counts, sizes, and trained dictionaries. The ratio is
// original over compressed bytes, zero while nothing is stored.
func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	var keys, err = partition.Scan(s.base)
	if err != nil {
		return stats, err
	}

	for _, key := range keys {
		pdb, err := s.partitionDB(key)
		if err != nil {
			return stats, err
		}
		count, original, compressed, err := pdb.textTotals()
		if err != nil {
			return stats, err
		}
		dicts, err := pdb.countDicts()
		if err != nil {
			return stats, err
		}
		stats.NumFiles++
		stats.TotalTexts += count
		stats.TotalOriginalBytes += original
		stats.TotalCompressedBytes += compressed
		stats.NumDictionaries += dicts
	}

	if stats.TotalCompressedBytes > 0 {
		var ratio = float64(stats.TotalOriginalBytes) / float64(stats.TotalCompressedBytes)
		stats.CompressionRatio = math.Round(ratio*100) / 100
	}
	return stats, nil
}

// PartitionStat describes one partition file's contents.
type PartitionStat struct {
	Key             partition.Key
	Texts           int64
	OriginalBytes   int64
	CompressedBytes int64
	Dictionaries    int64
}

// PartitionStats returns a per-partition breakdown of the store's contents,
// in partition order.
func (s *Store) PartitionStats() ([]PartitionStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys, err = partition.Scan(s.base)
	if err != nil {
		return nil, err
	}

	var out = make([]PartitionStat, 0, len(keys))
	for _, key := range keys {
		pdb, err := s.partitionDB(key)
		if err != nil {
			return nil, err
		}
		count, original, compressed, err := pdb.textTotals()
		if err != nil {
			return nil, err
		}
		dicts, err := pdb.countDicts()
		if err != nil {
			return nil, err
		}
		out = append(out, PartitionStat{
			Key:             key,
			Texts:           count,
			OriginalBytes:   original,
			CompressedBytes: compressed,
			Dictionaries:    dicts,
		})
	}
	return out, nil
}

// TrainGlobalDictionary forces a global-dictionary training pass, outside the
// automatic save-time trigger. It reports whether a dictionary was trained;
// too few decompressable samples is a logged no-op, not an error.
func (s *Store) TrainGlobalDictionary() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trainGlobalDict()
}

// RecompressPartition re-encodes a partition's plain- and global-tagged
// records with its own dictionary, returning how many were converted. A
// partition without its own dictionary, or without such records, yields zero.
func (s *Store) RecompressPartition(key partition.Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.partitionFileExists(key) {
		return 0, nil
	}
	var pdb, err = s.partitionDB(key)
	if err != nil {
		return 0, err
	}
	return s.recompressPartition(key, pdb)
}

// RecompressAll runs RecompressPartition over every partition file, returning
// converted counts keyed by partition. Partitions with nothing converted are
// omitted.
func (s *Store) RecompressAll() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys, err = partition.Scan(s.base)
	if err != nil {
		return nil, err
	}

	var results = make(map[string]int)
	for _, key := range keys {
		pdb, err := s.partitionDB(key)
		if err != nil {
			return results, err
		}
		count, err := s.recompressPartition(key, pdb)
		if err != nil {
			return results, err
		}
		if count > 0 {
			results[key.String()] = count
			log.WithFields(log.Fields{"partition": key.String(), "count": count}).
				Info("re-compressed texts")
		}
	}
	return results, nil
}

// Close releases every pooled connection and drops cached dictionary handles.
// The Store must not be used afterward.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, pdb := range s.dbs {
		if err := pdb.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.dbs = make(map[string]*partitionDB)

	if s.gdb != nil {
		if err := s.gdb.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.gdb = nil
	}
	s.dicts.reset()
	return firstErr
}

// partitionDB returns the pooled handle of a partition, opening (and creating
// file plus schema) on first use.
func (s *Store) partitionDB(key partition.Key) (*partitionDB, error) {
	if pdb, ok := s.dbs[key.String()]; ok {
		return pdb, nil
	}
	var pdb, err = openDB(key.Path(s.base), textBootstrapSQL)
	if err != nil {
		return nil, err
	}
	s.dbs[key.String()] = pdb
	return pdb, nil
}

// globalDB returns the pooled handle of the global-dictionary file. With
// |create| false and no existing file, it returns nil without error.
func (s *Store) globalDB(create bool) (*partitionDB, error) {
	if s.gdb != nil {
		return s.gdb, nil
	}
	var path = s.globalDictPath()
	if !create {
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
	}
	var gdb, err = openDB(path, dictBootstrapSQL)
	if err != nil {
		return nil, err
	}
	s.gdb = gdb
	return gdb, nil
}

func (s *Store) globalDictPath() string {
	return filepath.Join(s.base, partition.GlobalDictFile)
}

func (s *Store) partitionFileExists(key partition.Key) bool {
	if _, ok := s.dbs[key.String()]; ok {
		return true
	}
	var _, err = os.Stat(key.Path(s.base))
	return err == nil
}
