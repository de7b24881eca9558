package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vonshlovens/clipkeep/internal/fingerprint"
)

// markBatchSize bounds the number of ids bound into one UPDATE statement.
const markBatchSize = 500

// InsertOrTouch records e. When an entry with the same fingerprint exists its
// timestamp is refreshed and nothing else changes; otherwise a new row is
// inserted with zeroed statistics. It returns the row id and whether a new
// row was created. e is updated with the stored id and timestamp.
func (s *Store) InsertOrTouch(ctx context.Context, e *Entry) (int64, bool, error) {
	if !e.ContentType.Valid() {
		return 0, false, fmt.Errorf("invalid content type %q", e.ContentType)
	}

	e.Normalize()
	if e.ContentHash == "" {
		e.ContentHash = fingerprint.Compute(string(e.ContentType), []byte(e.Content), e.FilePath)
	}

	now := s.clock.NowUTC()
	var (
		id      int64
		created bool
	)

	err := s.withTx(ctx, "insert", func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &id,
			"SELECT id FROM clipboard_entries WHERE content_hash = ?", e.ContentHash)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx,
				"UPDATE clipboard_entries SET timestamp = ? WHERE id = ?", now.UnixNano(), id)
			return err

		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx, `
				INSERT INTO clipboard_entries (
					content, content_hash, content_type, file_path, file_size,
					mime_type, thumbnail, timestamp, is_favorite, access_count, backed_up
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 0)
			`,
				e.Content, e.ContentHash, string(e.ContentType), e.FilePath, e.FileSize,
				e.MimeType, e.Thumbnail, now.UnixNano(),
			)
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			created = true
			return err

		default:
			return err
		}
	})
	if err != nil {
		return 0, false, err
	}

	e.ID = id
	e.Timestamp = now
	if created {
		e.IsFavorite, e.AccessCount, e.BackedUp = false, 0, false
	}
	return id, created, nil
}

// Restore inserts e with its own timestamp, favorite flag and statistics
// unless an entry with the same fingerprint already exists. It is the import
// path for previously exported history.
func (s *Store) Restore(ctx context.Context, e *Entry) (int64, bool, error) {
	if !e.ContentType.Valid() {
		return 0, false, fmt.Errorf("invalid content type %q", e.ContentType)
	}

	e.Normalize()
	if e.ContentHash == "" {
		e.ContentHash = fingerprint.Compute(string(e.ContentType), []byte(e.Content), e.FilePath)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.clock.NowUTC()
	}

	var (
		id      int64
		created bool
	)
	err := s.withTx(ctx, "restore", func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &id,
			"SELECT id FROM clipboard_entries WHERE content_hash = ?", e.ContentHash)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO clipboard_entries (
				content, content_hash, content_type, file_path, file_size,
				mime_type, thumbnail, timestamp, is_favorite, access_count, backed_up
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			e.Content, e.ContentHash, string(e.ContentType), e.FilePath, e.FileSize,
			e.MimeType, e.Thumbnail, e.Timestamp.UnixNano(), e.IsFavorite,
			e.AccessCount, e.BackedUp,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		created = true
		return err
	})
	if err != nil {
		return 0, false, err
	}

	e.ID = id
	return id, created, nil
}

// TouchAccess increments the access counter of an entry.
func (s *Store) TouchAccess(ctx context.Context, id int64) error {
	return s.withTx(ctx, "touch access", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE clipboard_entries SET access_count = access_count + 1 WHERE id = ?", id)
		return affectedOrNotFound(res, err)
	})
}

// SetFavorite sets the favorite flag of an entry.
func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.withTx(ctx, "set favorite", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE clipboard_entries SET is_favorite = ? WHERE id = ?", favorite, id)
		return affectedOrNotFound(res, err)
	})
}

// Delete removes an entry, favorite or not. Unknown ids are ignored.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.withTx(ctx, "delete", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM clipboard_entries WHERE id = ?", id)
		return err
	})
}

// ClearAll deletes every entry, sparing favorites when keepFavorites is set.
// It returns the number of removed entries.
func (s *Store) ClearAll(ctx context.Context, keepFavorites bool) (int64, error) {
	query := "DELETE FROM clipboard_entries"
	if keepFavorites {
		query += " WHERE is_favorite = 0"
	}

	var removed int64
	err := s.withTx(ctx, "clear", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// Prune applies the retention policy: non-favorite entries older than maxAge
// are removed, then all but the newest maxItems non-favorites. Zero disables
// either rule.
func (s *Store) Prune(ctx context.Context, maxItems int, maxAge time.Duration) (int64, error) {
	var removed int64
	err := s.withTx(ctx, "prune", func(tx *sqlx.Tx) error {
		if maxAge > 0 {
			cutoff := s.clock.NowUTC().Add(-maxAge).UnixNano()
			res, err := tx.ExecContext(ctx,
				"DELETE FROM clipboard_entries WHERE is_favorite = 0 AND timestamp < ?", cutoff)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}

		if maxItems > 0 {
			res, err := tx.ExecContext(ctx, `
				DELETE FROM clipboard_entries
				WHERE is_favorite = 0 AND id NOT IN (
					SELECT id FROM clipboard_entries
					WHERE is_favorite = 0
					ORDER BY timestamp DESC, id DESC
					LIMIT ?
				)
			`, maxItems)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	return removed, err
}

// Get returns a single entry.
func (s *Store) Get(ctx context.Context, id int64) (*Entry, error) {
	var r entryRow
	err := s.db.GetContext(ctx, &r,
		"SELECT "+entryColumns+" FROM clipboard_entries WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	return r.entry(), nil
}

// Query streams the entries matching f, newest first. Each range over the
// returned sequence runs the query afresh; no cursor outlives the loop.
func (s *Store) Query(ctx context.Context, f Filter) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		query, args := f.build()

		rows, err := s.db.QueryxContext(ctx, query, args...)
		if err != nil {
			yield(nil, unavailable("query", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var r entryRow
			if err := rows.StructScan(&r); err != nil {
				yield(nil, unavailable("scan", err))
				return
			}
			if !yield(r.entry(), nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, unavailable("query", err))
		}
	}
}

// List collects Query into a slice.
func (s *Store) List(ctx context.Context, f Filter) ([]*Entry, error) {
	var entries []*Entry
	for e, err := range s.Query(ctx, f) {
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// UnbackedUp returns the entries not yet written to the backup artifact,
// newest first.
func (s *Store) UnbackedUp(ctx context.Context) ([]*Entry, error) {
	return s.List(ctx, Filter{unbackedOnly: true})
}

// MarkBackedUp flags exactly the given ids as backed up in one transaction
// and returns how many rows changed.
func (s *Store) MarkBackedUp(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var marked int64
	err := s.withTx(ctx, "mark backed up", func(tx *sqlx.Tx) error {
		for start := 0; start < len(ids); start += markBatchSize {
			batch := ids[start:min(start+markBatchSize, len(ids))]

			query, args, err := sqlx.In(
				"UPDATE clipboard_entries SET backed_up = 1 WHERE id IN (?)", batch)
			if err != nil {
				return err
			}

			res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			marked += n
		}
		return nil
	})
	return marked, err
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM clipboard_entries"); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// Status returns the current history statistics.
func (s *Store) Status(ctx context.Context) (*Status, error) {
	status := &Status{ByType: make(map[ContentType]int64)}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT content_type, COUNT(*) FROM clipboard_entries GROUP BY content_type")
	if err != nil {
		return nil, unavailable("status", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ct string
			n  int64
		)
		if err := rows.Scan(&ct, &n); err != nil {
			return nil, unavailable("status", err)
		}
		status.ByType[ContentType(ct)] = n
		status.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("status", err)
	}

	var newest sql.NullInt64
	err = s.db.QueryRowxContext(ctx, `
		SELECT
			COALESCE(SUM(is_favorite), 0),
			COALESCE(SUM(CASE WHEN backed_up = 0 THEN 1 ELSE 0 END), 0),
			MAX(timestamp)
		FROM clipboard_entries
	`).Scan(&status.Favorites, &status.Unbacked, &newest)
	if err != nil {
		return nil, unavailable("status", err)
	}
	if newest.Valid {
		t := time.Unix(0, newest.Int64).UTC()
		status.Newest = &t
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version

	return status, nil
}

func (f Filter) build() (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if f.Search != "" {
		pattern := "%" + escapeLike(f.Search) + "%"
		conditions = append(conditions,
			`(content LIKE ? ESCAPE '\' OR file_path LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if f.ContentType != "" {
		conditions = append(conditions, "content_type = ?")
		args = append(args, string(f.ContentType))
	}
	if f.FavoritesOnly {
		conditions = append(conditions, "is_favorite = 1")
	}
	if f.unbackedOnly {
		conditions = append(conditions, "backed_up = 0")
	}

	query := "SELECT " + entryColumns + " FROM clipboard_entries"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return query, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
