package hive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrNotUploader   = errors.New("only the uploader may change an image")
)

// ImageStore persists ImageMetadata rows keyed by asset key.
type ImageStore interface {
	InsertImage(ctx context.Context, meta *ImageMetadata) error
	GetImage(ctx context.Context, key string) (*ImageMetadata, error)
	// ListImages returns the uploader's images, newest first.
	ListImages(ctx context.Context, uploader string) ([]*ImageMetadata, error)
	UpdateImageMetadata(ctx context.Context, key, uploader string, update ImageMetadataUpdate) (*ImageMetadata, error)
	// DeleteImage removes the row and, inside the same transaction, runs
	// postCallback when it is not nil. A callback error rolls back.
	DeleteImage(ctx context.Context, key, uploader string, postCallback TxFunc) error
}

const imageColumns = `key, uploader, uploaded_at, file_name, size_bytes, width, height,
	taken_at, location_latitude, location_longitude, camera_brand, camera_model,
	exposure_time, f_number, focal_length, orientation, exif`

type PgImageStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPgImageStore(pool *pgxpool.Pool, schema string) *PgImageStore {
	return &PgImageStore{
		pool:  pool,
		table: pgx.Identifier{schema, "image"}.Sanitize(),
	}
}

func scanImage(row pgx.Row) (*ImageMetadata, error) {
	var meta ImageMetadata
	err := row.Scan(
		&meta.Key,
		&meta.Uploader,
		&meta.UploadedAt,
		&meta.FileName,
		&meta.SizeBytes,
		&meta.Width,
		&meta.Height,
		&meta.TakenAt,
		&meta.Latitude,
		&meta.Longitude,
		&meta.CameraBrand,
		&meta.CameraModel,
		&meta.ExposureTime,
		&meta.FNumber,
		&meta.FocalLength,
		&meta.Orientation,
		&meta.Exif,
	)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *PgImageStore) InsertImage(ctx context.Context, meta *ImageMetadata) error {
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		s.table, imageColumns)

	var exifData any
	if len(meta.Exif) > 0 {
		exifData = meta.Exif
	}

	_, err := s.pool.Exec(ctx, query,
		meta.Key,
		meta.Uploader,
		meta.UploadedAt,
		meta.FileName,
		meta.SizeBytes,
		meta.Width,
		meta.Height,
		valueOrNull(meta.TakenAt),
		valueOrNull(meta.Latitude),
		valueOrNull(meta.Longitude),
		valueOrNull(meta.CameraBrand),
		valueOrNull(meta.CameraModel),
		valueOrNull(meta.ExposureTime),
		valueOrNull(meta.FNumber),
		valueOrNull(meta.FocalLength),
		valueOrNull(meta.Orientation),
		exifData,
	)
	if err != nil {
		return fmt.Errorf("failed to insert image %s: %w", meta.Key, err)
	}
	return nil
}

func (s *PgImageStore) GetImage(ctx context.Context, key string) (*ImageMetadata, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE key = $1`, imageColumns, s.table)

	meta, err := scanImage(s.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("failed to get image %s: %w", key, err)
	}
	return meta, nil
}

func (s *PgImageStore) ListImages(ctx context.Context, uploader string) ([]*ImageMetadata, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE uploader = $1 ORDER BY uploaded_at DESC, key`,
		imageColumns, s.table)

	rows, err := s.pool.Query(ctx, query, uploader)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	defer rows.Close()

	images := []*ImageMetadata{}
	for rows.Next() {
		meta, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return images, nil
}

// lockOwned locks the row of key and checks that uploader owns it.
func (s *PgImageStore) lockOwned(ctx context.Context, tx pgx.Tx, key, uploader string) *ApiTxError {
	var owner string
	query := fmt.Sprintf(`SELECT uploader FROM %s WHERE key = $1 FOR UPDATE`, s.table)
	if err := tx.QueryRow(ctx, query, key).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &ApiTxError{Code: http.StatusNotFound, Err: ErrImageNotFound}
		}
		return &ApiTxError{
			Code: http.StatusInternalServerError,
			Err:  fmt.Errorf("failed to lock image: %w", err),
		}
	}
	if owner != uploader {
		return &ApiTxError{Code: http.StatusForbidden, Err: ErrNotUploader}
	}
	return nil
}

func (s *PgImageStore) UpdateImageMetadata(ctx context.Context, key, uploader string, update ImageMetadataUpdate) (*ImageMetadata, error) {
	var meta *ImageMetadata
	txErr := WithTransaction(ctx, s.pool, func(tx pgx.Tx) *ApiTxError {
		if txErr := s.lockOwned(ctx, tx, key, uploader); txErr != nil {
			return txErr
		}

		columns, args := update.assignments()
		var query string
		if len(columns) == 0 {
			query = fmt.Sprintf(`SELECT %s FROM %s WHERE key = $1`, imageColumns, s.table)
		} else {
			sets := make([]string, len(columns))
			for i, column := range columns {
				sets[i] = fmt.Sprintf("%s = $%d", column, i+2)
			}
			query = fmt.Sprintf(`UPDATE %s SET %s WHERE key = $1 RETURNING %s`,
				s.table, strings.Join(sets, ", "), imageColumns)
		}

		var err error
		meta, err = scanImage(tx.QueryRow(ctx, query, append([]any{key}, args...)...))
		if err != nil {
			return &ApiTxError{
				Code: http.StatusInternalServerError,
				Err:  fmt.Errorf("failed to update image metadata: %w", err),
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return meta, nil
}

func (s *PgImageStore) DeleteImage(ctx context.Context, key, uploader string, postCallback TxFunc) error {
	txErr := WithTransaction(ctx, s.pool, func(tx pgx.Tx) *ApiTxError {
		if txErr := s.lockOwned(ctx, tx, key, uploader); txErr != nil {
			return txErr
		}

		query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, s.table)
		if _, err := tx.Exec(ctx, query, key); err != nil {
			return &ApiTxError{
				Code: http.StatusInternalServerError,
				Err:  fmt.Errorf("failed to delete image: %w", err),
			}
		}

		if postCallback != nil {
			if err := postCallback(ctx, tx); err != nil {
				return &ApiTxError{
					Code: http.StatusInternalServerError,
					Err:  fmt.Errorf("post callback function failed: %w", err),
				}
			}
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}
	return nil
}
