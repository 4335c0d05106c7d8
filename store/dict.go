package store

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/sirupsen/logrus"

	"go.opendesky.dev/textstore/codec"
	"go.opendesky.dev/textstore/metrics"
	"go.opendesky.dev/textstore/partition"
)

const (
	// dictTrainingThreshold is the record count at which a partition trains
	// its own dictionary. Below it a region-year bucket hasn't accumulated
	// enough same-domain text for the trained tables to beat noise.
	dictTrainingThreshold = 50

	// globalDictTrainingThreshold is the store-wide record count at which the
	// shared fallback dictionary is trained. Larger than the per-partition
	// threshold: it must characterize the whole corpus, not one bucket.
	globalDictTrainingThreshold = 200

	// dictTrainingMaxSamples caps the sample set of any one training pass.
	dictTrainingMaxSamples = 500

	// dictTargetSize bounds trained dictionary size. Large enough to capture
	// recurring legal boilerplate, small enough that hundreds of partition
	// files don't bloat total storage.
	dictTargetSize = 112 << 10

	// legacyDictCacheSize bounds the cache of superseded dictionary handles,
	// which are touched only when decompressing old records.
	legacyDictCacheSize = 64
)

// Dictionary tags stored with each record. A positive tag is the row ID of a
// per-partition dictionary.
const (
	noDictTag     int64 = 0
	globalDictTag int64 = -1
)

// dictRef is the resolved compression regime for new writes in a partition:
// the partition's own newest dictionary, the store-wide global dictionary, or
// none. Compression always uses the current dictRef; decompression always
// uses the tag stored with the specific record.
type dictRef struct {
	tag  int64
	dict *codec.Dictionary // nil iff tag == noDictTag
}

func (r dictRef) compress(src []byte) []byte {
	if r.dict == nil {
		return codec.Compress(src)
	}
	return r.dict.Compress(src)
}

// dictManager holds the instance-local dictionary state of a Store: the
// active selection per partition, the loaded global dictionary, and handles
// of superseded per-partition dictionary rows.
type dictManager struct {
	active       map[string]dictRef
	legacy       *lru.Cache
	global       *codec.Dictionary
	globalLoaded bool
}

func newDictManager() dictManager {
	var cache, err = lru.New(legacyDictCacheSize)
	if err != nil {
		panic(err.Error()) // Only errors on size <= 0.
	}
	return dictManager{active: make(map[string]dictRef), legacy: cache}
}

func (m *dictManager) reset() {
	m.active = make(map[string]dictRef)
	m.legacy.Purge()
	m.global = nil
	m.globalLoaded = false
}

// loadGlobalDict returns the global dictionary, reading it from its dedicated
// file at most once per invalidation. Absence is cached too.
func (s *Store) loadGlobalDict() (*codec.Dictionary, error) {
	if s.dicts.globalLoaded {
		return s.dicts.global, nil
	}
	// The load is attempted once per cache generation: a missing file or a
	// failed read leaves the dictionary cached as absent until the next
	// reset, rather than re-hitting the filesystem on every save.
	s.dicts.globalLoaded = true

	var gdb, err = s.globalDB(false)
	if err != nil || gdb == nil {
		return nil, err
	}
	_, raw, ok, err := gdb.latestDict()
	if err != nil || !ok {
		return nil, err
	}
	if s.dicts.global, err = codec.NewDictionary(raw); err != nil {
		return nil, err
	}
	log.WithField("bytes", len(raw)).Info("loaded global zstd dictionary")
	return s.dicts.global, nil
}

// activeRef resolves the dictionary for new writes in a partition:
// newest per-partition dictionary, else global, else none. Cached until the
// partition trains a dictionary or the global dictionary changes.
func (s *Store) activeRef(key partition.Key, pdb *partitionDB) (dictRef, error) {
	if ref, ok := s.dicts.active[key.String()]; ok {
		return ref, nil
	}

	var ref = dictRef{tag: noDictTag}
	if id, raw, ok, err := pdb.latestDict(); err != nil {
		return ref, err
	} else if ok {
		if ref.dict, err = codec.NewDictionary(raw); err != nil {
			return ref, err
		}
		ref.tag = id
	} else if gd, err := s.loadGlobalDict(); err != nil {
		return ref, err
	} else if gd != nil {
		ref = dictRef{tag: globalDictTag, dict: gd}
	}

	s.dicts.active[key.String()] = ref
	return ref, nil
}

// decompressTagged decodes a record with the dictionary its stored tag names.
// If that dictionary is unexpectedly absent, a plain decode is attempted and
// a warning logged: dictionary loss costs ratio, not data, whenever the frame
// itself doesn't require the dictionary, and the codec rejects the frame
// cleanly when it does.
func (s *Store) decompressTagged(key partition.Key, pdb *partitionDB, data []byte, tag int64) ([]byte, error) {
	switch {
	case tag == noDictTag:
		return codec.Decompress(data)

	case tag == globalDictTag:
		var gd, err = s.loadGlobalDict()
		if err != nil {
			return nil, err
		}
		if gd == nil {
			log.WithField("partition", key.String()).
				Warn("global dictionary not found, decompressing without it")
			metrics.DictFallbackTotal.Inc()
			return codec.Decompress(data)
		}
		return gd.Decompress(data)

	default:
		var d, err = s.partitionDict(key, pdb, tag)
		if err != nil {
			return nil, err
		}
		if d == nil {
			log.WithFields(log.Fields{"partition": key.String(), "dict": tag}).
				Warn("dictionary not found, decompressing without it")
			metrics.DictFallbackTotal.Inc()
			return codec.Decompress(data)
		}
		return d.Decompress(data)
	}
}

// partitionDict resolves a specific dictionary row of a partition, via the
// legacy-handle cache. Returns nil without error if the row is absent.
func (s *Store) partitionDict(key partition.Key, pdb *partitionDB, id int64) (*codec.Dictionary, error) {
	var cacheKey = fmt.Sprintf("%s#%d", key.String(), id)
	if v, ok := s.dicts.legacy.Get(cacheKey); ok {
		return v.(*codec.Dictionary), nil
	}

	var raw, ok, err = pdb.getDict(id)
	if err != nil || !ok {
		return nil, err
	}
	d, err := codec.NewDictionary(raw)
	if err != nil {
		return nil, err
	}
	s.dicts.legacy.Add(cacheKey, d)
	return d, nil
}

// maybeTrain runs the two-tier training policy after a save. Only partitions
// without their own dictionary are considered; a trained partition dictionary
// is permanent (recompression aligns old records to it, nothing retrains it).
func (s *Store) maybeTrain(key partition.Key, pdb *partitionDB) error {
	if n, err := pdb.countDicts(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}

	if n, err := pdb.countTexts(); err != nil {
		return err
	} else if n >= dictTrainingThreshold {
		s.trainPartitionDict(key, pdb)
		return nil
	}

	if gd, err := s.loadGlobalDict(); err != nil {
		return err
	} else if gd == nil {
		return s.maybeTrainGlobalDict()
	}
	return nil
}

// trainPartitionDict trains and persists this partition's dictionary from its
// own records. Trainer rejection is logged and skipped; a later save retries
// once more samples accumulate.
func (s *Store) trainPartitionDict(key partition.Key, pdb *partitionDB) {
	var samples, err = s.collectSamples(key, pdb, dictTrainingMaxSamples)
	if err != nil {
		log.WithFields(log.Fields{"partition": key.String(), "err": err}).
			Warn("failed to collect dictionary training samples")
		return
	}
	if len(samples) < dictTrainingThreshold {
		return
	}

	raw, err := codec.Train(samples, dictTargetSize)
	if err != nil {
		log.WithFields(log.Fields{"partition": key.String(), "err": err}).
			Warn("failed to train dictionary")
		return
	}
	if err = pdb.insertDict(raw, len(samples)); err != nil {
		log.WithFields(log.Fields{"partition": key.String(), "err": err}).
			Warn("failed to persist dictionary")
		return
	}

	// Drop the cached selection so the next save picks up the new dictionary.
	delete(s.dicts.active, key.String())
	metrics.DictTrainingsTotal.Inc()

	log.WithFields(log.Fields{
		"partition": key.String(),
		"bytes":     len(raw),
		"samples":   len(samples),
	}).Info("trained partition dictionary")
}

// maybeTrainGlobalDict trains the global dictionary once the store-wide
// record count crosses its threshold.
func (s *Store) maybeTrainGlobalDict() error {
	var keys, err = partition.Scan(s.base)
	if err != nil {
		return err
	}

	var total int64
	for _, key := range keys {
		pdb, err := s.partitionDB(key)
		if err != nil {
			return err
		}
		n, err := pdb.countTexts()
		if err != nil {
			return err
		}
		total += n
	}
	if total < globalDictTrainingThreshold {
		return nil
	}

	_, err = s.trainGlobalDict()
	return err
}

// trainGlobalDict trains the store-wide fallback dictionary from samples
// drawn proportionally across every partition file, and persists it to the
// dedicated global-dictionary file. Returns whether a dictionary was trained.
func (s *Store) trainGlobalDict() (bool, error) {
	var keys, err = partition.Scan(s.base)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		log.Warn("no partition files found for global dictionary training")
		return false, nil
	}

	// A fixed per-file quota keeps any single large partition from dominating
	// the training set.
	var perFile = dictTrainingMaxSamples / len(keys)
	if perFile < 5 {
		perFile = 5
	}

	var samples [][]byte
	for _, key := range keys {
		pdb, err := s.partitionDB(key)
		if err != nil {
			return false, err
		}
		part, err := s.collectSamples(key, pdb, perFile)
		if err != nil {
			return false, err
		}
		samples = append(samples, part...)
	}

	if len(samples) < globalDictTrainingThreshold {
		log.WithFields(log.Fields{
			"samples": len(samples),
			"need":    globalDictTrainingThreshold,
		}).Warn("not enough samples for global dictionary")
		return false, nil
	}
	if len(samples) > dictTrainingMaxSamples {
		samples = samples[:dictTrainingMaxSamples]
	}

	raw, err := codec.Train(samples, dictTargetSize)
	if err != nil {
		log.WithField("err", err).Warn("failed to train global dictionary")
		return false, nil
	}

	gdb, err := s.globalDB(true)
	if err != nil {
		return false, err
	}
	if err = gdb.insertDict(raw, len(samples)); err != nil {
		return false, err
	}

	// Every partition without its own dictionary must switch to the new
	// global dictionary on its next access.
	s.dicts.reset()
	metrics.DictTrainingsTotal.Inc()

	log.WithFields(log.Fields{
		"bytes":   len(raw),
		"samples": len(samples),
		"files":   len(keys),
	}).Info("trained global dictionary")
	return true, nil
}

// collectSamples decompresses up to |limit| records of a partition in
// ascending item-ID order. Records which fail to decode are skipped.
func (s *Store) collectSamples(key partition.Key, pdb *partitionDB, limit int) ([][]byte, error) {
	var rows, err = pdb.sampleTexts(limit)
	if err != nil {
		return nil, err
	}

	var samples = make([][]byte, 0, len(rows))
	for _, row := range rows {
		if text, err := s.decompressTagged(key, pdb, row.data, row.dictTag); err == nil {
			samples = append(samples, text)
		}
	}
	return samples, nil
}

// recompressPartition re-encodes records written under the plain or global
// regimes with the partition's own dictionary, once one exists. Idempotent:
// records already tagged with the active dictionary are untouched. Each
// record commits independently, so an interrupted pass leaves a valid (if
// partially converted) partition.
func (s *Store) recompressPartition(key partition.Key, pdb *partitionDB) (int, error) {
	var ref, err = s.activeRef(key, pdb)
	if err != nil {
		return 0, err
	}
	if ref.tag <= noDictTag {
		return 0, nil // No per-partition dictionary to converge onto.
	}

	rows, err := pdb.legacyTexts()
	if err != nil {
		return 0, err
	}

	var count int
	for _, row := range rows {
		text, err := s.decompressTagged(key, pdb, row.data, row.dictTag)
		if err != nil {
			continue // Undecodable record: skipped, not counted.
		}
		if err = pdb.retagText(row.itemID, ref.dict.Compress(text), ref.tag); err != nil {
			return count, err
		}
		count++
	}

	metrics.RecompressedTotal.Add(float64(count))
	return count, nil
}
