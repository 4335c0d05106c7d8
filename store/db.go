package store

import (
	"database/sql"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// textBootstrapSQL creates the two tables of a partition file. Executed on
// every open; idempotent.
const textBootstrapSQL = `
	CREATE TABLE IF NOT EXISTS texts (
		attachment_id   INTEGER PRIMARY KEY,
		data            BLOB NOT NULL,
		dict_id         INTEGER DEFAULT 0,
		original_size   INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		created_at      TEXT DEFAULT (datetime('now'))
	);
	CREATE TABLE IF NOT EXISTS dictionaries (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		dict_data    BLOB NOT NULL,
		sample_count INTEGER NOT NULL,
		created_at   TEXT DEFAULT (datetime('now'))
	);
`

// dictBootstrapSQL creates the single table of the global-dictionary file.
const dictBootstrapSQL = `
	CREATE TABLE IF NOT EXISTS dictionaries (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		dict_data    BLOB NOT NULL,
		sample_count INTEGER NOT NULL,
		created_at   TEXT DEFAULT (datetime('now'))
	);
`

// partitionDB wraps the SQLite database of one partition file (or of the
// global-dictionary file, which carries only the dictionaries table).
type partitionDB struct {
	path string
	db   *sql.DB
}

// openDB opens (creating directories, the file, and schema as needed) the
// SQLite database at |path|. WAL journaling with synchronous=NORMAL trades a
// small durability window for write throughput; a record lost to a crash is
// re-extracted from its durable source document.
func openDB(path, bootstrapSQL string) (*partitionDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WithMessage(err, "creating partition directory")
	}

	var uri = "file:" + path + "?" + url.Values{
		"_journal_mode": {"WAL"},
		"_synchronous":  {"NORMAL"},
	}.Encode()

	var db, err = sql.Open("sqlite3", uri)
	if err != nil {
		return nil, errors.WithMessage(err, "opening SQLite DB")
	}
	// One connection per file. SQLite serializes writers anyway, and a single
	// connection sidesteps "database is locked" errors under go's pool.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(bootstrapSQL); err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "bootstrapping schema")
	}
	return &partitionDB{path: path, db: db}, nil
}

func (p *partitionDB) close() error { return p.db.Close() }

// upsertText writes the record, replacing any prior record of the same ID.
func (p *partitionDB) upsertText(itemID int64, data []byte, dictTag int64, originalSize int) error {
	var _, err = p.db.Exec(`
		INSERT OR REPLACE INTO texts
			(attachment_id, data, dict_id, original_size, compressed_size)
		VALUES (?, ?, ?, ?, ?)`,
		itemID, data, dictTag, originalSize, len(data))
	return errors.WithMessage(err, "upserting text record")
}

// getText reads a record's compressed payload and dictionary tag.
// A missing record is reported via the bool, not an error.
func (p *partitionDB) getText(itemID int64) (data []byte, dictTag int64, ok bool, err error) {
	err = p.db.QueryRow(
		`SELECT data, dict_id FROM texts WHERE attachment_id = ?`, itemID,
	).Scan(&data, &dictTag)

	if err == sql.ErrNoRows {
		return nil, 0, false, nil
	} else if err != nil {
		return nil, 0, false, errors.WithMessage(err, "reading text record")
	}
	return data, dictTag, true, nil
}

func (p *partitionDB) deleteText(itemID int64) (bool, error) {
	var res, err = p.db.Exec(`DELETE FROM texts WHERE attachment_id = ?`, itemID)
	if err != nil {
		return false, errors.WithMessage(err, "deleting text record")
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *partitionDB) textExists(itemID int64) (bool, error) {
	var one int
	var err = p.db.QueryRow(
		`SELECT 1 FROM texts WHERE attachment_id = ?`, itemID).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, errors.WithMessage(err, "querying text record")
}

func (p *partitionDB) countTexts() (n int64, err error) {
	err = p.db.QueryRow(`SELECT COUNT(*) FROM texts`).Scan(&n)
	return n, errors.WithMessage(err, "counting texts")
}

// textTotals returns the record count and summed original / compressed sizes.
func (p *partitionDB) textTotals() (count, original, compressed int64, err error) {
	err = p.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(original_size), 0), COALESCE(SUM(compressed_size), 0)
		FROM texts`).Scan(&count, &original, &compressed)
	return count, original, compressed, errors.WithMessage(err, "aggregating texts")
}

// latestDict returns the most recently trained dictionary row, which is the
// active dictionary for new writes in this partition.
func (p *partitionDB) latestDict() (id int64, raw []byte, ok bool, err error) {
	err = p.db.QueryRow(
		`SELECT id, dict_data FROM dictionaries ORDER BY id DESC LIMIT 1`,
	).Scan(&id, &raw)

	if err == sql.ErrNoRows {
		return 0, nil, false, nil
	} else if err != nil {
		return 0, nil, false, errors.WithMessage(err, "reading latest dictionary")
	}
	return id, raw, true, nil
}

// getDict reads a specific dictionary row, used to decompress records tagged
// with a superseded dictionary.
func (p *partitionDB) getDict(id int64) (raw []byte, ok bool, err error) {
	err = p.db.QueryRow(
		`SELECT dict_data FROM dictionaries WHERE id = ?`, id).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.WithMessage(err, "reading dictionary")
	}
	return raw, true, nil
}

func (p *partitionDB) insertDict(raw []byte, sampleCount int) error {
	var _, err = p.db.Exec(
		`INSERT INTO dictionaries (dict_data, sample_count) VALUES (?, ?)`,
		raw, sampleCount)
	return errors.WithMessage(err, "inserting dictionary")
}

func (p *partitionDB) countDicts() (n int64, err error) {
	err = p.db.QueryRow(`SELECT COUNT(*) FROM dictionaries`).Scan(&n)
	return n, errors.WithMessage(err, "counting dictionaries")
}

// taggedText is one stored record surfaced for sampling or recompression.
type taggedText struct {
	itemID  int64
	data    []byte
	dictTag int64
}

// sampleTexts returns up to |limit| records in ascending item-ID order, so
// training inputs are deterministic for a given partition state.
func (p *partitionDB) sampleTexts(limit int) ([]taggedText, error) {
	var rows, err = p.db.Query(
		`SELECT attachment_id, data, dict_id FROM texts ORDER BY attachment_id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.WithMessage(err, "querying sample texts")
	}
	return scanTaggedTexts(rows)
}

// legacyTexts returns records compressed without this partition's own
// dictionary (plain or global regimes), the inputs of a recompression pass.
func (p *partitionDB) legacyTexts() ([]taggedText, error) {
	var rows, err = p.db.Query(
		`SELECT attachment_id, data, dict_id FROM texts WHERE dict_id IN (?, ?)`,
		noDictTag, globalDictTag)
	if err != nil {
		return nil, errors.WithMessage(err, "querying legacy texts")
	}
	return scanTaggedTexts(rows)
}

func scanTaggedTexts(rows *sql.Rows) ([]taggedText, error) {
	defer rows.Close()

	var out []taggedText
	for rows.Next() {
		var t taggedText
		if err := rows.Scan(&t.itemID, &t.data, &t.dictTag); err != nil {
			return nil, errors.WithMessage(err, "scanning text record")
		}
		out = append(out, t)
	}
	return out, errors.WithMessage(rows.Err(), "iterating text records")
}

// retagText rewrites a record's payload, tag, and compressed size in place.
// Recompression never alters item ID or original size.
func (p *partitionDB) retagText(itemID int64, data []byte, dictTag int64) error {
	var _, err = p.db.Exec(`
		UPDATE texts SET data = ?, dict_id = ?, compressed_size = ?
		WHERE attachment_id = ?`,
		data, dictTag, len(data), itemID)
	return errors.WithMessage(err, "re-tagging text record")
}
