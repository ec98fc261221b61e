package hive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type ReencodeResult struct {
	Reencoded int
	Failed    int
}

// ReencodeAll regenerates the renditions of every asset under the
// storage root from its stored original, using the ingestor's current
// encoder. A broken asset is logged and counted, not fatal.
func (in *Ingestor) ReencodeAll(ctx context.Context, workers int) (ReencodeResult, error) {
	entries, err := os.ReadDir(in.Layout.Root)
	if err != nil {
		return ReencodeResult{}, fmt.Errorf("failed to list storage root: %w", err)
	}
	if workers < 1 {
		workers = 1
	}

	var reencoded, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		key := entry.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := in.Reencode(ctx, key); err != nil {
				failed.Add(1)
				in.Logger.Warn("failed to re-encode image", "key", key, "err", err)
				return nil
			}
			reencoded.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return ReencodeResult{Reencoded: int(reencoded.Load()), Failed: int(failed.Load())}, err
}

// Reencode rebuilds the renditions of one asset. The original file is
// left untouched.
func (in *Ingestor) Reencode(ctx context.Context, key string) error {
	data, err := in.readOriginal(key)
	if err != nil {
		return err
	}
	img, _, err := in.decode(data)
	if err != nil {
		return err
	}
	log := in.Logger.With("key", key)
	full := in.orient(img, ExtractExif(data, log), log)
	return in.Layout.Rewrite(ctx, key, Cascade(full, in.Resample))
}

func (in *Ingestor) readOriginal(key string) ([]byte, error) {
	dir := filepath.Join(in.Layout.AssetDir(key), OriginalDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			return os.ReadFile(filepath.Join(dir, entry.Name()))
		}
	}
	return nil, errors.New("no original file")
}
