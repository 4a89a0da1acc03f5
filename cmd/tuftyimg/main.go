package main

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tuftybadge "github.com/LionsPhil/tufty-badge"
	"github.com/LionsPhil/tufty-badge/pri"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

const defaultDB = "tuftybadge.db"

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"V"},
		Usage:   "print the version",
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	level := zerolog.WarnLevel
	if c.Bool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
}

var convertFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "no-unspans",
		Usage: "encode lone pixels as runs of one instead of literals",
	},
	&cli.BoolFlag{
		Name:  "no-dither",
		Usage: "map colors directly without error diffusion",
	},
	&cli.BoolFlag{
		Name:  "keep-size",
		Usage: "keep the source dimensions instead of resizing to the badge screen",
	},
}

func options(c *cli.Context) tuftybadge.ConvertOptions {
	return tuftybadge.ConvertOptions{
		KeepSize:        c.Bool("keep-size"),
		NoDither:        c.Bool("no-dither"),
		DisableLiterals: c.Bool("no-unspans"),
	}
}

func stem(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}

func convertOne(c *cli.Context, logger zerolog.Logger, file, out string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	m, _, err := image.Decode(f)
	if err != nil {
		return err
	}

	pm, err := tuftybadge.Palettize(m, options(c))
	if err != nil {
		return err
	}

	w, err := os.Create(out)
	if err != nil {
		return err
	}

	if err := pri.Encode(w, pm, &pri.Options{DisableLiterals: c.Bool("no-unspans")}); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	logger.Info().Str("source", file).Str("output", out).Msg("converted")

	if !c.Bool("round-trip") {
		return nil
	}

	r, err := os.Open(out)
	if err != nil {
		return err
	}
	defer r.Close()

	decoded, err := pri.Decode(r, pm.Rect.Dx(), pm.Rect.Dy())
	if err != nil {
		return err
	}

	g, err := os.Create(stem(out) + "-roundtrip.png")
	if err != nil {
		return err
	}
	if err := png.Encode(g, decoded); err != nil {
		g.Close()
		return err
	}
	return g.Close()
}

// statsSink counts what the decoder paints without storing any of it.
type statsSink struct {
	runs          int
	runPixels     int
	literalPixels int
	used          [pri.PaletteEntries]bool
}

func (s *statsSink) SetPixel(x, y int, index uint8) {
	s.literalPixels++
	s.used[index] = true
}

func (s *statsSink) SetRun(x, y, count int, index uint8) {
	s.runs++
	s.runPixels += count
	s.used[index] = true
}

func main() {
	app := cli.NewApp()

	app.Name = "tuftyimg"
	app.Usage = "Tufty 2040 badge artwork utility"
	app.Version = "1.0.0"

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			EnvVars: []string{"TUFTYIMG_DB"},
			Value:   filepath.Join(cwd, defaultDB),
			Usage:   "path to conversion manifest",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "increase verbosity",
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "convert",
			Usage:     "Convert images to badge streams",
			ArgsUsage: "FILE [FILE...]",
			Flags: append(convertFlags,
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "output path, single input only",
				},
				&cli.BoolFlag{
					Name:  "round-trip",
					Usage: "decode the result back to PNG for eyeballing",
				}),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}
				if c.String("output") != "" && c.NArg() > 1 {
					return cli.Exit("cannot use --output with multiple inputs", 1)
				}

				logger := newLogger(c)

				for _, file := range c.Args().Slice() {
					out := c.String("output")
					if out == "" {
						out = stem(file) + ".pri"
					}
					if err := convertOne(c, logger, file, out); err != nil {
						return cli.Exit(fmt.Errorf("%s: %w", file, err), 1)
					}
				}

				return nil
			},
		},
		{
			Name:      "decode",
			Usage:     "Decode a badge stream to PNG",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "width",
					Value: pri.DefaultWidth,
					Usage: "image width, not stored in the stream",
				},
				&cli.IntFlag{
					Name:  "height",
					Value: pri.DefaultHeight,
					Usage: "image height, not stored in the stream",
				},
				&cli.StringFlag{
					Name:    "output",
					Aliases: []string{"o"},
					Usage:   "output path",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				file := c.Args().First()

				f, err := os.Open(file)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer f.Close()

				m, err := pri.Decode(f, c.Int("width"), c.Int("height"))
				if err != nil {
					return cli.Exit(err, 1)
				}

				out := c.String("output")
				if out == "" {
					out = stem(file) + ".png"
				}

				w, err := os.Create(out)
				if err != nil {
					return cli.Exit(err, 1)
				}

				if err := png.Encode(w, m); err != nil {
					w.Close()
					return cli.Exit(err, 1)
				}
				if err := w.Close(); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:      "info",
			Usage:     "Show stream statistics",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "width",
					Value: pri.DefaultWidth,
					Usage: "image width, not stored in the stream",
				},
				&cli.IntFlag{
					Name:  "height",
					Value: pri.DefaultHeight,
					Usage: "image height, not stored in the stream",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				file := c.Args().First()
				width, height := c.Int("width"), c.Int("height")

				f, err := os.Open(file)
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer f.Close()

				if _, err := pri.ReadPalette(f); err != nil {
					return cli.Exit(err, 1)
				}

				var stats statsSink
				if err := pri.Blit(f, width, height, &stats); err != nil {
					return cli.Exit(err, 1)
				}

				info, err := os.Stat(file)
				if err != nil {
					return cli.Exit(err, 1)
				}

				colors := 0
				for _, u := range stats.used {
					if u {
						colors++
					}
				}

				raw := pri.PaletteSize + width*height

				fmt.Printf("%s: %dx%d\n", file, width, height)
				fmt.Printf("  runs:           %d (%d pixels)\n", stats.runs, stats.runPixels)
				fmt.Printf("  literal pixels: %d\n", stats.literalPixels)
				fmt.Printf("  colors used:    %d\n", colors)
				fmt.Printf("  encoded size:   %d bytes (%.1f%% of %d raw)\n",
					info.Size(), float64(info.Size())*100/float64(raw), raw)

				return nil
			},
		},
		{
			Name:      "sync",
			Usage:     "Convert everything under a directory that changed",
			ArgsUsage: "DIRECTORY",
			Flags:     convertFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				g, err := tuftybadge.New(c.String("db"), newLogger(c))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer g.Close()

				if err := g.Sync(c.Context, c.Args().First(), options(c)); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
		{
			Name:      "watch",
			Usage:     "Sync a directory and convert as files change",
			ArgsUsage: "DIRECTORY",
			Flags:     convertFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					cli.ShowCommandHelpAndExit(c, c.Command.FullName(), 1)
				}

				g, err := tuftybadge.New(c.String("db"), newLogger(c))
				if err != nil {
					return cli.Exit(err, 1)
				}
				defer g.Close()

				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()

				if err := g.Watch(ctx, c.Args().First(), options(c)); err != nil {
					return cli.Exit(err, 1)
				}

				return nil
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
