package hive

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sndcds/hive/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to the database named by HIVE_TEST_DATABASE_URL
// and migrates a fresh schema into it.
func openTestStore(t *testing.T) *PgImageStore {
	t.Helper()
	url := os.Getenv("HIVE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HIVE_TEST_DATABASE_URL not set")
	}
	pc, err := pgconn.ParseConfig(url)
	require.NoError(t, err)

	config := Config{
		DbHost:     pc.Host,
		DbPort:     int(pc.Port),
		DbUser:     pc.User,
		DbPassword: pc.Password,
		DbName:     pc.Database,
		DbSchema:   "hive_test_" + GenerateKey()[:8],
		SSLMode:    "disable",
	}
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, config, logger.Discard()))

	pool, err := pgxpool.New(ctx, config.DSN())
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), "DROP SCHEMA "+pgx.Identifier{config.DbSchema}.Sanitize()+" CASCADE")
		pool.Close()
	})
	return NewPgImageStore(pool, config.DbSchema)
}

func TestPgImageStore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	lat, lon := 43.467447, -79.386761
	brand := "Canon"
	orientation := 6
	meta := &ImageMetadata{
		Key:         GenerateKey(),
		Uploader:    "alice",
		UploadedAt:  time.Now().UTC().Truncate(time.Microsecond),
		FileName:    "cat.jpg",
		SizeBytes:   1234,
		Width:       4000,
		Height:      3000,
		Latitude:    &lat,
		Longitude:   &lon,
		CameraBrand: &brand,
		Orientation: &orientation,
		Exif:        map[string]string{"Make": `"Canon"`},
	}
	require.NoError(t, store.InsertImage(ctx, meta))
	assert.Error(t, store.InsertImage(ctx, meta), "duplicate key")

	got, err := store.GetImage(ctx, meta.Key)
	require.NoError(t, err)
	assert.Equal(t, meta.Uploader, got.Uploader)
	assert.True(t, meta.UploadedAt.Equal(got.UploadedAt))
	assert.Equal(t, 4000, got.Width)
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, lat, *got.Latitude, 1e-9)
	assert.Nil(t, got.TakenAt)
	assert.Nil(t, got.CameraModel)
	require.NotNil(t, got.Orientation)
	assert.Equal(t, 6, *got.Orientation)
	assert.Equal(t, meta.Exif, got.Exif)

	_, err = store.GetImage(ctx, "missing")
	assert.ErrorIs(t, err, ErrImageNotFound)

	model := "EOS 80D"
	taken := time.Date(2019, 8, 1, 14, 0, 0, 0, time.UTC)
	updated, err := store.UpdateImageMetadata(ctx, meta.Key, "alice", ImageMetadataUpdate{
		TakenAt:     &taken,
		Location:    &Location{Latitude: 1.5, Longitude: -2.5},
		CameraModel: &model,
	})
	require.NoError(t, err)
	require.NotNil(t, updated.TakenAt)
	assert.True(t, taken.Equal(*updated.TakenAt))
	assert.InDelta(t, -2.5, *updated.Longitude, 1e-9)
	assert.Equal(t, "EOS 80D", *updated.CameraModel)
	assert.Equal(t, "Canon", *updated.CameraBrand)

	unchanged, err := store.UpdateImageMetadata(ctx, meta.Key, "alice", ImageMetadataUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "EOS 80D", *unchanged.CameraModel)

	_, err = store.UpdateImageMetadata(ctx, meta.Key, "mallory", ImageMetadataUpdate{CameraModel: &model})
	assert.ErrorIs(t, err, ErrNotUploader)
	_, err = store.UpdateImageMetadata(ctx, "missing", "alice", ImageMetadataUpdate{})
	assert.ErrorIs(t, err, ErrImageNotFound)

	err = store.DeleteImage(ctx, meta.Key, "mallory", nil)
	assert.ErrorIs(t, err, ErrNotUploader)

	err = store.DeleteImage(ctx, meta.Key, "alice", func(ctx context.Context, tx pgx.Tx) error {
		return errors.New("disk busy")
	})
	require.Error(t, err)
	_, err = store.GetImage(ctx, meta.Key)
	require.NoError(t, err, "a failing callback rolls the delete back")

	var called bool
	require.NoError(t, store.DeleteImage(ctx, meta.Key, "alice", func(ctx context.Context, tx pgx.Tx) error {
		called = true
		return nil
	}))
	assert.True(t, called)

	_, err = store.GetImage(ctx, meta.Key)
	assert.ErrorIs(t, err, ErrImageNotFound)
	assert.ErrorIs(t, store.DeleteImage(ctx, meta.Key, "alice", nil), ErrImageNotFound)
}

func TestPgImageStoreRejectsHalfLocation(t *testing.T) {
	store := openTestStore(t)
	lat := 10.0
	meta := &ImageMetadata{
		Key:        GenerateKey(),
		Uploader:   "alice",
		UploadedAt: time.Now().UTC(),
		FileName:   "a.jpg",
		Latitude:   &lat,
	}
	assert.Error(t, store.InsertImage(context.Background(), meta))
}

func TestPgImageStoreListImages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	var want []string
	for i := range 3 {
		meta := &ImageMetadata{
			Key:        GenerateKey(),
			Uploader:   "alice",
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
			FileName:   "a.jpg",
		}
		require.NoError(t, store.InsertImage(ctx, meta))
		want = append([]string{meta.Key}, want...)
	}
	require.NoError(t, store.InsertImage(ctx, &ImageMetadata{Key: GenerateKey(), Uploader: "bob", UploadedAt: base, FileName: "b.jpg"}))

	images, err := store.ListImages(ctx, "alice")
	require.NoError(t, err)
	got := make([]string, len(images))
	for i, img := range images {
		got[i] = img.Key
	}
	assert.Equal(t, want, got)

	images, err = store.ListImages(ctx, "carol")
	require.NoError(t, err)
	assert.NotNil(t, images)
	assert.Empty(t, images)
}
