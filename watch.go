package tuftybadge

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of writes an image editor makes
// while saving into a single conversion.
const watchDebounce = 250 * time.Millisecond

// Watch performs a Sync of dir and then converts images as they are
// created or modified, until the context is cancelled. Only dir itself
// is watched, not subdirectories; fsnotify watches are not recursive.
// On cancellation any conversions already started run to completion
// before Watch returns, so the Gallery can be closed safely after.
func (g *Gallery) Watch(ctx context.Context, dir string, o ConvertOptions) error {
	if err := g.Sync(ctx, dir, o); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	g.logger.Info().Str("dir", dir).Msg("watching for changes")

	// Every armed timer holds one count until it either fires and its
	// conversion finishes, or is stopped before firing.
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		pending = make(map[string]*time.Timer)
	)

	drain := func() {
		mu.Lock()
		for _, t := range pending {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				drain()
				return nil
			}
			if !isArtwork(event.Name) || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			file := event.Name
			mu.Lock()
			if prev, ok := pending[file]; ok && prev.Stop() {
				wg.Done()
			}
			wg.Add(1)
			var t *time.Timer
			t = time.AfterFunc(watchDebounce, func() {
				defer wg.Done()
				mu.Lock()
				// A newer timer may have replaced this one; leave its
				// entry for the shutdown sweep.
				if pending[file] == t {
					delete(pending, file)
				}
				mu.Unlock()
				if err := g.convertFile(file, o); err != nil {
					g.logger.Error().Err(err).Str("source", file).Msg("conversion failed")
				}
			})
			pending[file] = t
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				drain()
				return nil
			}
			g.logger.Error().Err(err).Msg("watcher error")
		}
	}
}
