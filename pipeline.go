package tuftybadge

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/LionsPhil/tufty-badge/pri"
)

const syncWorkers = 4

func isArtwork(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}

// priPath is the output for a source image: a sibling file with the
// extension swapped for .pri, ready to copy onto the badge.
func priPath(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file)) + ".pri"
}

func (g *Gallery) findArtwork(ctx context.Context, base string) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories, otherwise we end up fighting with things like Spotlight, etc.
			// The root was asked for by name, so a dot there does not hide it.
			if file != base && info.Name()[0] == '.' {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if !info.Mode().IsRegular() || !isArtwork(file) {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc
}

// convertFile encodes one source image to its .pri sibling, skipping
// the work when the manifest shows the source content unchanged.
func (g *Gallery) convertFile(file string, o ConvertOptions) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha1.New()
	m, _, err := image.Decode(io.TeeReader(f, h))
	if err != nil {
		return err
	}
	sha := fmt.Sprintf("%X", h.Sum(nil))

	out := priPath(file)

	prev, err := g.db.lookup(file)
	if err != nil {
		return err
	}
	if prev == sha {
		if _, err := os.Stat(out); err == nil {
			g.logger.Debug().Str("source", file).Msg("unchanged")
			return nil
		}
	}

	pm, err := Palettize(m, o)
	if err != nil {
		return err
	}

	w, err := os.Create(out)
	if err != nil {
		return err
	}

	if err := pri.Encode(w, pm, &pri.Options{DisableLiterals: o.DisableLiterals}); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	info, err := os.Stat(out)
	if err != nil {
		return err
	}

	g.logger.Info().
		Str("source", file).
		Str("output", out).
		Int64("bytes", info.Size()).
		Msg("converted")

	return g.db.store(manifestEntry{
		path:   file,
		sha1:   sha,
		width:  pm.Rect.Dx(),
		height: pm.Rect.Dy(),
		colors: len(pm.Palette),
		bytes:  info.Size(),
	})
}

func (g *Gallery) convertWorker(ctx context.Context, in <-chan string, o ConvertOptions) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := g.convertFile(file, o); err != nil {
				errc <- fmt.Errorf("%s: %w", file, err)
				return
			}
		}
	}()
	return errc
}

func waitForPipeline(errs ...<-chan error) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}
	return nil
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Sync converts every source image under dir whose content does not
// already match the manifest. Outputs land next to their sources.
func (g *Gallery) Sync(ctx context.Context, path string, o ConvertOptions) error {
	dir, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var errcList []<-chan error

	files, errc := g.findArtwork(ctx, dir)
	errcList = append(errcList, errc)

	for i := 0; i < syncWorkers; i++ {
		errcList = append(errcList, g.convertWorker(ctx, files, o))
	}

	return waitForPipeline(errcList...)
}
