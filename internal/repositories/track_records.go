package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytlib/internal/models"
	"github.com/desertthunder/ytlib/internal/shared"
)

// TrackRecordRepository persists the dedup index.
//
// Rows are append-only: there is no update or delete, and re-recording a key appends a newer row.
// Readers always see the newest row per key.
type TrackRecordRepository struct {
	db *sql.DB
}

// NewTrackRecordRepository creates a new TrackRecordRepository with the given database connection
func NewTrackRecordRepository(db *sql.DB) *TrackRecordRepository {
	return &TrackRecordRepository{db: db}
}

// Append inserts a new [models.TrackRecord]
func (r *TrackRecordRepository) Append(rec *models.TrackRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	res, err := r.db.Exec(`
		INSERT INTO track_records (key, path, album_key, artist_key, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Key, rec.Path, rec.AlbumKey, rec.ArtistKey, rec.Fingerprint, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert track record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read track record id: %w", err)
	}
	rec.ID = id

	return nil
}

// Latest returns the newest record for key, or an error wrapping [shared.ErrNotFound]
func (r *TrackRecordRepository) Latest(key string) (*models.TrackRecord, error) {
	row := r.db.QueryRow(`
		SELECT id, key, path, album_key, artist_key, fingerprint, created_at
		FROM track_records
		WHERE key = ?
		ORDER BY id DESC
		LIMIT 1
	`, key)

	rec, err := scanTrackRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, key)
	}
	return rec, err
}

// List returns the newest record of every key, ordered by path.
//
// Supported criteria: "album_key" (string), "artist_key" (string).
func (r *TrackRecordRepository) List(criteria map[string]any) ([]*models.TrackRecord, error) {
	query := `
		SELECT id, key, path, album_key, artist_key, fingerprint, created_at
		FROM track_records
		WHERE id IN (SELECT MAX(id) FROM track_records GROUP BY key)
	`
	args := []any{}

	if album, ok := criteria["album_key"].(string); ok && album != "" {
		query += " AND album_key = ?"
		args = append(args, album)
	}

	if artist, ok := criteria["artist_key"].(string); ok && artist != "" {
		query += " AND artist_key = ?"
		args = append(args, artist)
	}

	query += " ORDER BY path ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query track records: %w", err)
	}
	defer rows.Close()

	var records []*models.TrackRecord
	for rows.Next() {
		rec, err := scanTrackRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Count returns the number of distinct keys in the index
func (r *TrackRecordRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(DISTINCT key) FROM track_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count track records: %w", err)
	}
	return n, nil
}

func scanTrackRecord(row rowScanner) (*models.TrackRecord, error) {
	var rec models.TrackRecord
	if err := row.Scan(&rec.ID, &rec.Key, &rec.Path, &rec.AlbumKey, &rec.ArtistKey, &rec.Fingerprint, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
