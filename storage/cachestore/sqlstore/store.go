package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/swcache/core/cache"
)

const upsertEntry = `
INSERT INTO cache_entries (generation, req_key, url, status, header, body, stored_at)
VALUES (:generation, :req_key, :url, :status, :header, :body, :stored_at)
ON CONFLICT (generation, req_key) DO UPDATE SET
	url = excluded.url,
	status = excluded.status,
	header = excluded.header,
	body = excluded.body,
	stored_at = excluded.stored_at`

var nowFunc = time.Now // mockable

type (
	// Store keeps generations in the cache_generations & cache_entries tables.
	// Works with any sqlx driver whose dialect supports `ON CONFLICT` upserts (postgres, sqlite).
	Store struct {
		db *sqlx.DB
	}

	generation struct {
		db   *sqlx.DB
		name string
	}

	entryRow struct {
		Generation string    `db:"generation"`
		Key        string    `db:"req_key"`
		URL        string    `db:"url"`
		Status     int       `db:"status"`
		Header     string    `db:"header"`
		Body       []byte    `db:"body"`
		StoredAt   time.Time `db:"stored_at"`
	}
)

var _ cache.Store = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Open(ctx context.Context, name string) (cache.Generation, error) {
	q := s.db.Rebind(`INSERT INTO cache_generations (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, q, name, nowFunc().UTC()); err != nil {
		return nil, errors.Wrap(err, "creating generation")
	}
	return &generation{db: s.db, name: name}, nil
}

func (s *Store) Lookup(ctx context.Context, name string) (cache.Generation, bool, error) {
	has, err := s.Has(ctx, name)
	if err != nil || !has {
		return nil, false, err
	}
	return &generation{db: s.db, name: name}, true, nil
}

func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var count int
	q := s.db.Rebind(`SELECT COUNT(*) FROM cache_generations WHERE name = ?`)
	if err := s.db.GetContext(ctx, &count, q, name); err != nil {
		return false, errors.Wrap(err, "checking generation")
	}
	return count > 0, nil
}

func (s *Store) Names(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	if err := s.db.SelectContext(ctx, &names, `SELECT name FROM cache_generations ORDER BY name`); err != nil {
		return nil, errors.Wrap(err, "listing generations")
	}
	return names, nil
}

func (s *Store) Delete(ctx context.Context, name string) (existed bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cache_entries WHERE generation = ?`), name); err != nil {
		return false, errors.Wrap(err, "deleting entries")
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cache_generations WHERE name = ?`), name)
	if err != nil {
		return false, errors.Wrap(err, "deleting generation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "deleting generation")
	}
	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(err, "committing transaction")
	}
	return n > 0, nil
}

func (g *generation) Name() string { return g.name }

func (g *generation) row(entry cache.Entry) (entryRow, error) {
	header := entry.Header
	if header == nil {
		header = make(http.Header)
	}
	hdr, err := json.Marshal(header)
	if err != nil {
		return entryRow{}, errors.Wrap(err, "encoding header")
	}
	body := entry.Body
	if body == nil {
		body = []byte{}
	}
	return entryRow{
		Generation: g.name,
		Key:        entry.Key,
		URL:        entry.URL,
		Status:     entry.Status,
		Header:     string(hdr),
		Body:       body,
		StoredAt:   entry.StoredAt.UTC(),
	}, nil
}

func (g *generation) Put(ctx context.Context, entry cache.Entry) error {
	return g.PutAll(ctx, []cache.Entry{entry})
}

// PutAll upserts the entries in one transaction, provided the generation still exists.
// The foreign key on cache_entries catches a delete committed after the existence check.
func (g *generation) PutAll(ctx context.Context, entries []cache.Entry) (err error) {
	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var count int
	if err = tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM cache_generations WHERE name = ?`), g.name); err != nil {
		return errors.Wrap(err, "checking generation")
	}
	if count == 0 {
		return cache.ErrGenerationNotFound
	}

	for _, entry := range entries {
		r, rErr := g.row(entry)
		if rErr != nil {
			return rErr
		}
		if _, err = tx.NamedExecContext(ctx, upsertEntry, r); err != nil {
			return errors.Wrapf(err, "storing %s", entry.Key)
		}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (g *generation) Match(ctx context.Context, key string) (cache.Entry, bool, error) {
	var r entryRow
	q := g.db.Rebind(`
		SELECT generation, req_key, url, status, header, body, stored_at
		FROM cache_entries
		WHERE generation = ? AND req_key = ?`)
	if err := g.db.GetContext(ctx, &r, q, g.name, key); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, errors.Wrap(err, "matching entry")
	}

	header := make(http.Header)
	if err := json.Unmarshal([]byte(r.Header), &header); err != nil {
		return cache.Entry{}, false, errors.Wrap(err, "decoding header")
	}
	return cache.Entry{
		Key:      r.Key,
		URL:      r.URL,
		Status:   r.Status,
		Header:   header,
		Body:     r.Body,
		StoredAt: r.StoredAt.UTC(),
	}, true, nil
}

func (g *generation) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	q := g.db.Rebind(`SELECT req_key FROM cache_entries WHERE generation = ? ORDER BY req_key`)
	if err := g.db.SelectContext(ctx, &keys, q, g.name); err != nil {
		return nil, errors.Wrap(err, "listing keys")
	}
	return keys, nil
}
