package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-olmap/internal/config"
	"github.com/joeblew999/plat-olmap/internal/feature"
	"github.com/joeblew999/plat-olmap/internal/logger"
	"github.com/joeblew999/plat-olmap/internal/projection"
	"github.com/joeblew999/plat-olmap/internal/server"
)

// Options defines all CLI flags and env vars for the olmap server.
// Flags: --host, --port, --config, --data-dir, --web-dir, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_CONFIG, SERVICE_DATA_DIR, ...
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	Config    string `doc:"YAML demo configuration (built-in demo when empty)" short:"c"`
	DataDir   string `doc:"Directory for the drawings database (in-memory when empty)" default:".data"`
	WebDir    string `doc:"Serve templates and static files from this directory instead of the embedded ones"`
	LogLevel  string `doc:"Log level (trace, debug, info, warn, error)" default:"info"`
	LogFormat string `doc:"Log output format (console, json)" default:"console"`
	ViewTTL   string `doc:"Evict views idle for this long" default:"30m"`
	MaxViews  int    `doc:"Maximum number of live views (0 = unlimited)" default:"1000"`
	Minify    bool   `doc:"Minify HTML, CSS and JavaScript" default:"true"`
	NoDB      bool   `doc:"Do not store drawings"`
}

func loadConfig(opts *Options) (*config.Config, error) {
	if opts.Config == "" {
		return config.Default(), nil
	}
	return config.Load(opts.Config)
}

func newServer(opts *Options) (*server.Server, error) {
	logger.Logger{Level: opts.LogLevel, Format: opts.LogFormat}.Setup()

	demo, err := loadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	ttl, err := time.ParseDuration(opts.ViewTTL)
	if err != nil {
		return nil, fmt.Errorf("view ttl: %w", err)
	}
	return server.New(server.Config{
		Host:     opts.Host,
		Port:     opts.Port,
		DataDir:  opts.DataDir,
		WebDir:   opts.WebDir,
		Demo:     demo,
		ViewTTL:  ttl,
		MaxViews: opts.MaxViews,
		Minify:   opts.Minify,
		NoDB:     opts.NoDB,
	})
}

func fail(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			srv, err := newServer(opts)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to start")
			}
			defer srv.Close()

			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-olmap server starting...\n")
			fmt.Printf("  Page:    %s/\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()

			if err := srv.Run(ctx); err != nil {
				log.Fatal().Err(err).Msg("Server failed")
			}
		})

		hooks.OnStop(cancel)
	})

	cli.Root().Use = "olmap"
	cli.Root().Short = "Server-driven OpenLayers demo map"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			opts.NoDB = true
			srv, err := newServer(opts)
			if err != nil {
				fail("Error creating server", err)
			}
			defer srv.Close()
			spec := srv.API().OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fail("Error marshaling spec", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// features subcommand: print the configured nodes as GeoJSON
	featuresCmd := &cobra.Command{
		Use:   "features",
		Short: "Print the configured nodes as a GeoJSON FeatureCollection",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			demo, err := loadConfig(opts)
			if err != nil {
				fail("Error loading config", err)
			}
			vc := demo.View()
			fc := feature.Collection(feature.FromNodes(vc.Nodes, vc.Style, func(p orb.Point) orb.Point {
				return projection.Project(p, vc.Projection)
			}))
			out, err := json.MarshalIndent(fc, "", "  ")
			if err != nil {
				fail("Error marshaling features", err)
			}
			fmt.Println(string(out))
		}),
	}
	cli.Root().AddCommand(featuresCmd)

	// config subcommand: print the effective demo configuration
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective demo configuration as YAML",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			demo, err := loadConfig(opts)
			if err != nil {
				fail("Error loading config", err)
			}
			out, err := demo.Marshal()
			if err != nil {
				fail("Error marshaling config", err)
			}
			fmt.Print(string(out))
		}),
	}
	cli.Root().AddCommand(configCmd)

	cli.Run()
}
