/*
Package tuftybadge maintains the artwork library for a Pimoroni Tufty
2040 conference badge. It converts source images into the badge's
streaming RLE format (see the pri package) and tracks what it converted
in a small manifest database, so syncing a directory of artwork only
redoes the files that changed.
*/
package tuftybadge

import "github.com/rs/zerolog"

// Gallery converts badge artwork and records it in one manifest.
type Gallery struct {
	db     *imageDB
	logger zerolog.Logger
}

// New opens or creates the manifest database at path.
func New(path string, logger zerolog.Logger) (*Gallery, error) {
	db, err := newImageDB(path)
	if err != nil {
		return nil, err
	}
	return &Gallery{
		db:     db,
		logger: logger,
	}, nil
}

func (g *Gallery) Close() error {
	return g.db.Close()
}
