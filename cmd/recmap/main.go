package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-recmap/internal/config"
	"github.com/joeblew999/plat-recmap/internal/db"
	"github.com/joeblew999/plat-recmap/internal/geometry"
	"github.com/joeblew999/plat-recmap/internal/logging"
	"github.com/joeblew999/plat-recmap/internal/server"
	"github.com/joeblew999/plat-recmap/internal/store"
)

// Options defines all CLI flags and env vars for the recmap server.
// Flags: --host, --port, --data-dir, --config, --log-level, --log-format
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG,
// SERVICE_LOG_LEVEL, SERVICE_LOG_FORMAT
type Options struct {
	Host      string `doc:"Host to bind to" default:"0.0.0.0"`
	Port      int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir   string `doc:"Directory for the DuckDB database" default:".data"`
	Config    string `doc:"Path to the YAML configuration" short:"c" default:"recmap.yaml"`
	LogLevel  string `doc:"Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `doc:"Log format (console, json)" default:"console"`
}

func serverConfig(opts *Options, log *zap.Logger) server.Config {
	return server.Config{
		Host:       opts.Host,
		Port:       fmt.Sprintf("%d", opts.Port),
		DataDir:    opts.DataDir,
		ConfigPath: opts.Config,
		Logger:     log,
	}
}

func mustLogger(opts *Options) *zap.Logger {
	log, err := logging.New(opts.LogLevel, opts.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return log
}

func main() {
	// Optional; flags and real env vars take precedence.
	_ = godotenv.Load(".env")

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		log := mustLogger(opts)
		var httpServer *http.Server

		hooks.OnStart(func() {
			defer log.Sync()

			srv, err := server.New(context.Background(), serverConfig(opts, log))
			if err != nil {
				log.Fatal("server setup failed", zap.Error(err))
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-recmap API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Config:  %s\n", opts.Config)
			fmt.Println()
			fmt.Printf("  Map:     %s/api/v1/map\n", baseURL)
			fmt.Printf("  Events:  %s/api/v1/events\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			httpServer = &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal("server error", zap.Error(err))
			}
		})

		hooks.OnStop(func() {
			if httpServer == nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				log.Warn("shutdown", zap.Error(err))
			}
		})
	})

	cli.Root().Use = "recmap"
	cli.Root().Short = "Map viewer for records with embedded geometry"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			spec := server.OpenAPI(serverConfig(opts, nil))

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// parse subcommand: show how a geometry value is read
	parseCmd := &cobra.Command{
		Use:   "parse <geometry>",
		Short: "Parse a WKT or coordinate-pair value and print it as GeoJSON",
		Args:  cobra.MinimumNArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := mustLogger(opts)
			defer log.Sync()

			decoder, err := geometry.LoadWKTDecoder(cmd.Context())
			if err != nil {
				log.Warn("WKT decoder unavailable", zap.Error(err))
			}
			g := geometry.NewParser(log, decoder).Parse(strings.Join(args, " "))
			if g == nil {
				fmt.Fprintln(os.Stderr, "No geometry parsed")
				os.Exit(1)
			}

			out, err := json.MarshalIndent(geojson.NewFeature(g.Orb()), "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling geometry: %v\n", err)
				os.Exit(1)
			}
			b := g.Bound()
			fmt.Println(string(out))
			fmt.Printf("Kind:   %s\n", g.Kind())
			fmt.Printf("Extent: lat %.6f..%.6f, lng %.6f..%.6f\n", b.Min.Lat(), b.Max.Lat(), b.Min.Lon(), b.Max.Lon())
		}),
	}
	cli.Root().AddCommand(parseCmd)

	// import subcommand: load a CSV/Parquet/JSON file into the record table
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the record table with the contents of a CSV, Parquet or JSON file",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := mustLogger(opts)
			defer log.Sync()

			app, err := config.Load(opts.Config)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}
			conn, err := db.Get(db.Config{DataDir: opts.DataDir, DBName: "recmap"})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
				os.Exit(1)
			}
			defer db.Close()

			st, err := store.New(conn, store.Options{
				Table:           app.Records.Table,
				IDField:         app.Records.IDField,
				GeometryColumns: app.Records.GeometryColumns,
				Logger:          log,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			n, err := st.Import(cmd.Context(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error importing %s: %v\n", args[0], err)
				os.Exit(1)
			}
			fmt.Printf("Imported %d records into %s\n", n, st.Table())
		}),
	}
	cli.Root().AddCommand(importCmd)

	cli.Run()
}
