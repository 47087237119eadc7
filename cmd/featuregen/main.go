package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"

	"github.com/joeblew999/plat-olmap/internal/config"
	"github.com/joeblew999/plat-olmap/internal/feature"
	"github.com/joeblew999/plat-olmap/internal/logger"
	"github.com/joeblew999/plat-olmap/internal/projection"
)

type Options struct {
	Config     string `short:"c" long:"config" description:"YAML demo configuration. Built-in demo nodes if empty"`
	Projection string `short:"p" long:"projection" description:"Output projection, overrides the config" choice:"EPSG:4326" choice:"EPSG:3857"`
	Output     string `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
	Pretty     bool   `long:"pretty" description:"Indent the GeoJSON output"`

	logger.Logger `group:"Logging"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	opts.Logger.Setup()

	cfg := config.Default()
	if opts.Config != "" {
		var err error
		if cfg, err = config.Load(opts.Config); err != nil {
			log.Fatal().Err(err).Str("path", opts.Config).Msg("Failed to load config")
		}
	}
	if opts.Projection != "" {
		cfg.Projection = opts.Projection
	}

	vc := cfg.View()
	features := feature.FromNodes(vc.Nodes, vc.Style, func(p orb.Point) orb.Point {
		return projection.Project(p, cfg.Projection)
	})

	var (
		data []byte
		err  error
	)
	fc := feature.Collection(features)
	if opts.Pretty {
		data, err = json.MarshalIndent(fc, "", "  ")
	} else {
		data, err = json.Marshal(fc)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to encode features")
	}
	data = append(data, '\n')

	if opts.Output == "" {
		fmt.Print(string(data))
		return
	}
	if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
		log.Fatal().Err(err).Str("path", opts.Output).Msg("Failed to write output")
	}
	log.Info().Int("features", len(features)).Str("path", opts.Output).Str("projection", cfg.Projection).Msg("Features written")
}
