package tuftybadge

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LionsPhil/tufty-badge/pri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGalleryWatchSyncs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "burger.png"), badgeImage(4))

	g := testGallery(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx, dir, ConvertOptions{}) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "burger.pri"))
		return err == nil
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.FileExists(t, filepath.Join(dir, "burger.pri"))
}

// priPix decodes a stream file at the badge dimensions, or nil while
// the file is missing or mid-write.
func priPix(file string) []uint8 {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()
	pm, err := pri.Decode(f, pri.DefaultWidth, pri.DefaultHeight)
	if err != nil {
		return nil
	}
	return pm.Pix
}

func TestGalleryWatchConverts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "burger.png")
	out := filepath.Join(dir, "burger.pri")
	before := badgeImage(4)
	writePNG(t, src, before)

	g := testGallery(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- g.Watch(ctx, dir, ConvertOptions{}) }()

	// The initial sync converts what was already there.
	require.Eventually(t, func() bool {
		return bytes.Equal(priPix(out), before.Pix)
	}, 10*time.Second, 20*time.Millisecond)

	// Rewriting the source must be picked up and reconverted once the
	// debounce settles. The write retries each tick in case the first
	// lands before the directory watch is registered; ticks are spaced
	// wider than the debounce so retries cannot hold the timer off.
	after := badgeImage(6)
	var rewrite bytes.Buffer
	require.NoError(t, png.Encode(&rewrite, after))

	require.Eventually(t, func() bool {
		if bytes.Equal(priPix(out), after.Pix) {
			return true
		}
		_ = os.WriteFile(src, rewrite.Bytes(), 0o644)
		return false
	}, 15*time.Second, 2*watchDebounce, "watch never reconverted the source")

	// Leave a freshly armed debounce behind, then cancel. Watch drains
	// what it started and still returns promptly.
	writePNG(t, src, badgeImage(2))
	time.Sleep(watchDebounce / 2)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not return after cancellation")
	}
}
