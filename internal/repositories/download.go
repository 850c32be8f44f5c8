package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/agin/internal/models"
	"github.com/desertthunder/agin/internal/shared"
)

const downloadColumns = `track_id, playlist_id, title, artist, album, duration, file_path, artwork_path, file_size, downloaded_at`

// DownloadRepository persists [models.DownloadedTrack] rows.
//
// Deletes are soft; a track id may be downloaded again after it was deleted.
type DownloadRepository struct {
	db *sql.DB
}

// NewDownloadRepository creates a new DownloadRepository with the given database connection
func NewDownloadRepository(db *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Save inserts a downloaded track, replacing any live row for the same track id.
func (r *DownloadRepository) Save(track models.DownloadedTrack) error {
	if track.TrackID == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrInvalidArgument)
	}
	if track.FilePath == "" {
		return fmt.Errorf("%w: file path is required", shared.ErrInvalidArgument)
	}
	if track.DownloadedAt.IsZero() {
		track.DownloadedAt = time.Now()
	}

	sequence, err := NextSequence(r.db, "downloaded_tracks")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE downloaded_tracks SET deleted_at = ? WHERE track_id = ? AND deleted_at IS NULL`,
		time.Now(), track.TrackID,
	); err != nil {
		return fmt.Errorf("failed to supersede download: %w", err)
	}

	query := `
		INSERT INTO downloaded_tracks (id, sequence, ` + downloadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query,
		shared.GenerateID(),
		sequence,
		track.TrackID,
		nullString(track.PlaylistID),
		track.Title,
		track.Artist,
		track.Album,
		track.Duration,
		track.FilePath,
		nullString(track.ArtworkPath),
		track.FileSize,
		track.DownloadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert download: %w", err)
	}

	return tx.Commit()
}

// Get retrieves the live download for trackID.
func (r *DownloadRepository) Get(trackID string) (models.DownloadedTrack, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloaded_tracks WHERE track_id = ? AND deleted_at IS NULL`

	track, err := scanDownload(r.db.QueryRow(query, trackID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.DownloadedTrack{}, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	return track, err
}

// Exists reports whether trackID has a live download.
func (r *DownloadRepository) Exists(trackID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM downloaded_tracks WHERE track_id = ? AND deleted_at IS NULL)`, trackID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check download: %w", err)
	}
	return exists, nil
}

// List returns live downloads in download order, optionally filtered by playlist.
func (r *DownloadRepository) List(playlistID string) ([]models.DownloadedTrack, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloaded_tracks WHERE deleted_at IS NULL`
	args := []any{}

	if playlistID != "" {
		query += " AND playlist_id = ?"
		args = append(args, playlistID)
	}
	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var tracks []models.DownloadedTrack
	for rows.Next() {
		track, err := scanDownload(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

// Delete soft-deletes the live download for trackID.
func (r *DownloadRepository) Delete(trackID string) error {
	result, err := r.db.Exec(
		`UPDATE downloaded_tracks SET deleted_at = ? WHERE track_id = ? AND deleted_at IS NULL`,
		time.Now(), trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	return nil
}

// DeleteAll soft-deletes every live download and returns how many were removed.
func (r *DownloadRepository) DeleteAll() (int, error) {
	result, err := r.db.Exec(`UPDATE downloaded_tracks SET deleted_at = ? WHERE deleted_at IS NULL`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete downloads: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

// Storage sums file sizes of live downloads.
func (r *DownloadRepository) Storage() (models.StorageInfo, error) {
	var info models.StorageInfo
	err := r.db.QueryRow(
		`SELECT COALESCE(SUM(file_size), 0), COUNT(*) FROM downloaded_tracks WHERE deleted_at IS NULL`,
	).Scan(&info.TotalBytes, &info.TrackCount)
	if err != nil {
		return models.StorageInfo{}, fmt.Errorf("failed to sum storage: %w", err)
	}
	return info, nil
}

func scanDownload(row scanner) (models.DownloadedTrack, error) {
	var (
		t           models.DownloadedTrack
		playlistID  sql.NullString
		artist      sql.NullString
		album       sql.NullString
		artworkPath sql.NullString
	)

	err := row.Scan(&t.TrackID, &playlistID, &t.Title, &artist, &album, &t.Duration, &t.FilePath, &artworkPath, &t.FileSize, &t.DownloadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, err
	}
	if err != nil {
		return t, fmt.Errorf("failed to scan download: %w", err)
	}

	t.PlaylistID = playlistID.String
	t.Artist = artist.String
	t.Album = album.String
	t.ArtworkPath = artworkPath.String
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
