package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CacheEntry is one stored response from the agreement data source. Status
// is the HTTP status it was fetched with.
type CacheEntry struct {
	Key       string
	Status    int
	Body      []byte
	FetchedAt time.Time
}

// AgreementCache persists fetched agreement payloads in the agreement_cache
// table.
type AgreementCache struct {
	db *sql.DB
}

func NewAgreementCache(db *sql.DB) *AgreementCache {
	return &AgreementCache{db: db}
}

func (c *AgreementCache) Get(key string) (CacheEntry, bool, error) {
	e := CacheEntry{Key: key}
	err := c.db.QueryRow(
		`SELECT status, body, fetched_at FROM agreement_cache WHERE cache_key = ?`, key,
	).Scan(&e.Status, &e.Body, &e.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheEntry{}, false, nil
	}
	if err != nil {
		return CacheEntry{}, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	return e, true, nil
}

func (c *AgreementCache) Put(e CacheEntry) error {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now().UTC()
	}
	_, err := c.db.Exec(
		`INSERT INTO agreement_cache (cache_key, status, body, fetched_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET status = excluded.status, body = excluded.body, fetched_at = excluded.fetched_at`,
		e.Key, e.Status, e.Body, e.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("write cache %s: %w", e.Key, err)
	}
	return nil
}

// CountByStatus summarizes the cache, keyed by HTTP status.
func (c *AgreementCache) CountByStatus() (map[int]int, error) {
	rows, err := c.db.Query(`SELECT status, COUNT(*) FROM agreement_cache GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var status, n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
