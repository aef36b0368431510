// Package catalog provides a local SQLite-backed track catalog used as the
// search provider.
package catalog

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/renify/internal/app/search"
	"github.com/osa030/renify/internal/domain/track"
)

const schema = `
CREATE TABLE IF NOT EXISTS tracks (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	title    TEXT NOT NULL,
	author   TEXT NOT NULL DEFAULT '',
	uri      TEXT NOT NULL UNIQUE,
	duration INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS playlists (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE COLLATE NOCASE
);
CREATE TABLE IF NOT EXISTS playlist_tracks (
	playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
	track_id    INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	PRIMARY KEY (playlist_id, position)
);
CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks(title COLLATE NOCASE);
`

// Catalog resolves queries against a local SQLite database. A query that
// matches a playlist name resolves to the whole playlist; otherwise the
// best-matching track wins.
type Catalog struct {
	db *sql.DB
}

// Open opens (and bootstraps) the catalog at path. Use ":memory:" for an
// ephemeral catalog.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("catalog path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog database")
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to initialize catalog schema")
	}

	zlog.Info().Msgf("catalog opened: path=%s", path)
	return &Catalog{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Search implements search.Provider. An empty result means the query matched
// nothing; it is not an error.
func (c *Catalog) Search(ctx context.Context, query string) (search.Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return search.Result{}, nil
	}

	pl, err := c.lookupPlaylist(ctx, query)
	if err != nil {
		return search.Result{}, err
	}
	if pl != nil {
		return search.Result{Playlist: pl}, nil
	}

	t, err := c.lookupTrack(ctx, query)
	if err != nil {
		return search.Result{}, err
	}
	if t != nil {
		return search.Result{Track: t}, nil
	}
	return search.Result{}, nil
}

func (c *Catalog) lookupPlaylist(ctx context.Context, name string) (*track.Playlist, error) {
	var (
		id     int64
		plName string
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT id, name FROM playlists WHERE name = ? COLLATE NOCASE", name).Scan(&id, &plName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "playlist lookup failed")
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT t.title, t.author, t.uri, t.duration
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position`, id)
	if err != nil {
		return nil, errors.Wrap(err, "playlist tracks lookup failed")
	}
	defer rows.Close()

	pl := &track.Playlist{Name: plName}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		pl.Tracks = append(pl.Tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "playlist tracks scan failed")
	}
	return pl, nil
}

func (c *Catalog) lookupTrack(ctx context.Context, query string) (*track.Track, error) {
	// Exact title match beats a substring match.
	row := c.db.QueryRowContext(ctx, `
		SELECT title, author, uri, duration FROM tracks
		WHERE title = ? COLLATE NOCASE
		ORDER BY id LIMIT 1`, query)
	t, err := scanTrackRow(row)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	row = c.db.QueryRowContext(ctx, `
		SELECT title, author, uri, duration FROM tracks
		WHERE title LIKE ? OR author LIKE ?
		ORDER BY id LIMIT 1`, "%"+query+"%", "%"+query+"%")
	return scanTrackRow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(r rowScanner) (track.Track, error) {
	var (
		t      track.Track
		durSec int64
	)
	if err := r.Scan(&t.Title, &t.Author, &t.URI, &durSec); err != nil {
		return track.Track{}, errors.Wrap(err, "track scan failed")
	}
	t.Duration = time.Duration(durSec) * time.Second
	t.Source = "catalog"
	return t, nil
}

func scanTrackRow(row *sql.Row) (*track.Track, error) {
	t, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AddTrack inserts a track, returning its ID. Re-adding an existing URI
// updates the stored metadata.
func (c *Catalog) AddTrack(ctx context.Context, t track.Track) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		INSERT INTO tracks (title, author, uri, duration) VALUES (?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET title = excluded.title,
			author = excluded.author, duration = excluded.duration`,
		t.Title, t.Author, t.URI, int64(t.Duration/time.Second))
	if err != nil {
		return 0, errors.Wrap(err, "failed to add track")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read track id")
	}
	return id, nil
}

// AddPlaylist creates a playlist and its ordered track list in one
// transaction.
func (c *Catalog) AddPlaylist(ctx context.Context, p track.Playlist) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "INSERT INTO playlists (name) VALUES (?)", p.Name)
	if err != nil {
		return errors.Wrap(err, "failed to add playlist")
	}
	plID, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read playlist id")
	}

	for i, t := range p.Tracks {
		var trackID int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO tracks (title, author, uri, duration) VALUES (?, ?, ?, ?)
			ON CONFLICT(uri) DO UPDATE SET title = excluded.title
			RETURNING id`,
			t.Title, t.Author, t.URI, int64(t.Duration/time.Second)).Scan(&trackID)
		if err != nil {
			return errors.Wrapf(err, "failed to add playlist track %q", t.Title)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)",
			plID, trackID, i); err != nil {
			return errors.Wrap(err, "failed to link playlist track")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit playlist")
}
