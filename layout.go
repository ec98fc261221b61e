package hive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	OriginalDirName = "original"
	DefaultFileName = "unknown"
)

var ErrKeyExists = errors.New("asset directory already exists")

// LayoutWriter persists one asset as <root>/<key>/original/<file> plus a
// file or symlink per rendition.
type LayoutWriter struct {
	Root    string
	Encoder Encoder
}

func (lw LayoutWriter) AssetDir(key string) string {
	return filepath.Join(lw.Root, key)
}

// Write creates the asset directory and stores the original and the
// renditions. Directories exist before any file is written; the file
// writes run concurrently and all of them must succeed.
func (lw LayoutWriter) Write(ctx context.Context, key, fileName string, original []byte, renditions [4]Rendition) error {
	if !validKey(key) {
		return fmt.Errorf("invalid asset key %q", key)
	}
	fileName = SanitizeFileName(fileName)

	if err := os.MkdirAll(lw.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	dir := lw.AssetDir(key)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrKeyExists, key)
		}
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	originalDir := filepath.Join(dir, OriginalDirName)
	if err := os.Mkdir(originalDir, 0o755); err != nil {
		return fmt.Errorf("failed to create original directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := os.WriteFile(filepath.Join(originalDir, fileName), original, 0o644); err != nil {
			return fmt.Errorf("failed to write original file: %w", err)
		}
		return nil
	})
	lw.goRenditions(ctx, g, dir, renditions)
	return g.Wait()
}

// Rewrite replaces the rendition files of an existing asset. New files
// are written under temporary names and renamed over the old ones once
// all of them succeeded, so a failure leaves the previous renditions in
// place.
func (lw LayoutWriter) Rewrite(ctx context.Context, key string, renditions [4]Rendition) error {
	dir := lw.AssetDir(key)
	if _, err := os.Stat(filepath.Join(dir, OriginalDirName)); err != nil {
		return fmt.Errorf("failed to open asset %s: %w", key, err)
	}

	tmpPath := func(r Rendition) string {
		return filepath.Join(dir, ".tmp-"+lw.Encoder.FileName(r.Name))
	}
	removeTmp := func() {
		for _, r := range renditions {
			_ = os.Remove(tmpPath(r))
		}
	}
	removeTmp()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range renditions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return lw.writeRendition(tmpPath(r), r)
		})
	}
	if err := g.Wait(); err != nil {
		removeTmp()
		return err
	}

	for _, r := range renditions {
		final := filepath.Join(dir, lw.Encoder.FileName(r.Name))
		if err := os.Rename(tmpPath(r), final); err != nil {
			return fmt.Errorf("failed to replace %s: %w", final, err)
		}
		// drop the file of the other output format, if any
		for _, ext := range []string{".jpg", ".webp"} {
			path := filepath.Join(dir, string(r.Name)+ext)
			if path == final {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
	}
	return nil
}

func (lw LayoutWriter) goRenditions(ctx context.Context, g *errgroup.Group, dir string, renditions [4]Rendition) {
	for _, r := range renditions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return lw.writeRendition(filepath.Join(dir, lw.Encoder.FileName(r.Name)), r)
		})
	}
}

// writeRendition stores r at path. Aliased renditions become a symlink
// to the sibling file of their source.
func (lw LayoutWriter) writeRendition(path string, r Rendition) error {
	switch r.Kind {
	case Aliased:
		// relative target keeps the tree portable
		if err := os.Symlink(lw.Encoder.FileName(r.Source), path); err != nil {
			return fmt.Errorf("failed to create symlink %s: %w", r.Name, err)
		}
	default:
		data, err := lw.Encoder.EncodeBytes(r.Image)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", r.Name, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.Name, err)
		}
	}
	return nil
}

// SanitizeFileName strips directories from a client supplied name and
// falls back to DefaultFileName.
func SanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return DefaultFileName
	}
	return name
}

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}
