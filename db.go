package tuftybadge

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// imageDB is the conversion manifest: one row per source image, keyed
// by path, holding the content hash the last conversion saw plus some
// numbers worth showing a human.
type imageDB struct {
	db *sql.DB
}

func newImageDB(file string) (*imageDB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS image (id INTEGER PRIMARY KEY NOT NULL, path TEXT NOT NULL UNIQUE, sha1 TEXT NOT NULL, width INTEGER NOT NULL, height INTEGER NOT NULL, colors INTEGER NOT NULL, bytes INTEGER NOT NULL, converted_at TIMESTAMP NOT NULL)"); err != nil {
		return nil, err
	}

	return &imageDB{
		db: db,
	}, nil
}

func (db *imageDB) Close() error {
	return db.db.Close()
}

type manifestEntry struct {
	path   string
	sha1   string
	width  int
	height int
	colors int
	bytes  int64
}

// lookup returns the content hash recorded for a source path, or ""
// when the path has never been converted.
func (db *imageDB) lookup(path string) (string, error) {
	var sha string
	switch err := db.db.QueryRow("SELECT sha1 FROM image WHERE path = ?", path).Scan(&sha); err {
	case sql.ErrNoRows:
		return "", nil
	case nil:
		return sha, nil
	default:
		return "", err
	}
}

func (db *imageDB) store(e manifestEntry) error {
	if _, err := db.db.Exec("INSERT OR REPLACE INTO image (path, sha1, width, height, colors, bytes, converted_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.path, e.sha1, e.width, e.height, e.colors, e.bytes, time.Now()); err != nil {
		return err
	}
	return nil
}
