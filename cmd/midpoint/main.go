// Command midpoint builds the weighted transit graph and answers
// meeting-point queries over it, either once from the command line or as an
// HTTP service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/midpoint-labs/midpoint/pkg/build"
	"github.com/midpoint-labs/midpoint/pkg/logger"
	"github.com/midpoint-labs/midpoint/pkg/metrics"
	"github.com/midpoint-labs/midpoint/pkg/query"
	"github.com/midpoint-labs/midpoint/pkg/server"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `Usage: midpoint <command> [flags]

Commands:
  build    run the graph build pipeline and publish final_graph.json
  query    find a meeting point for two or more people
  serve    serve the query API over HTTP
  version  print build information

Run "midpoint <command> --help" for command flags.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// godotenv doesn't override variables already set in the environment.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("no command given")
	}

	switch os.Args[1] {
	case "build":
		return runBuild(os.Args[2:])
	case "query":
		return runQuery(os.Args[2:])
	case "serve":
		return runServe(os.Args[2:])
	case "version":
		fmt.Printf("midpoint %s (commit %s, built %s)\n", version, commit, date)
		return nil
	case "-h", "--help", "help":
		fmt.Println(usage)
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", os.Args[1])
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runBuild(args []string) error {
	flags := flag.NewFlagSet("build", flag.ExitOnError)
	verboseFlag := flags.Bool("verbose", false, "enable verbose (debug) logging")
	dataDirFlag := flags.String("data-dir", "data", "directory for stage artifacts")
	cacheDirFlag := flags.String("cache-dir", "", "provider response cache directory (default <data-dir>/cache)")
	apiKeyFlag := flags.String("api-key", "", "provider API key (or set TFL_API_KEY env var)")
	proximityRadiusFlag := flags.Int("proximity-radius", 250, "walking transfer search radius in metres")
	sequenceWorkersFlag := flags.Int("sequence-workers", 8, "concurrent route sequence and stop point calls")
	journeyWorkersFlag := flags.Int("journey-workers", 8, "concurrent journey planner calls")
	timetableWorkersFlag := flags.Int("timetable-workers", 2, "concurrent timetable calls")
	keepNullTransfersFlag := flags.Bool("keep-null-transfers", false, "keep transfer edges whose walking time could not be measured")
	metricsAddrFlag := flags.String("metrics-addr", "", "address to listen on for prometheus metrics (empty disables)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	log := logger.New(*verboseFlag)
	apiKey := *apiKeyFlag
	if envKey := os.Getenv("TFL_API_KEY"); apiKey == "" && envKey != "" {
		apiKey = envKey
	}
	cacheDir := *cacheDirFlag
	if cacheDir == "" {
		cacheDir = filepath.Join(*dataDirFlag, "cache")
	}

	m := metrics.New()
	m.SetBuildInfo(version, commit)

	client, err := tfl.New(tfl.Config{
		Logger:   log,
		APIKey:   apiKey,
		CacheDir: cacheDir,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	pipeline, err := build.New(build.Config{
		Logger:            log,
		Provider:          client,
		DataDir:           *dataDirFlag,
		ProximityRadiusM:  *proximityRadiusFlag,
		SequenceWorkers:   *sequenceWorkersFlag,
		JourneyWorkers:    *journeyWorkersFlag,
		TimetableWorkers:  *timetableWorkersFlag,
		KeepNullTransfers: *keepNullTransfersFlag,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *metricsAddrFlag != "" {
		go func() {
			if err := m.Serve(ctx, log, *metricsAddrFlag); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	return pipeline.Run(ctx)
}

func runQuery(args []string) error {
	flags := flag.NewFlagSet("query", flag.ExitOnError)
	verboseFlag := flags.Bool("verbose", false, "enable verbose (debug) logging")
	dataDirFlag := flags.String("data-dir", "data", "directory holding final_graph.json")
	cacheDirFlag := flags.String("cache-dir", "", "provider response cache directory (default <data-dir>/cache)")
	apiKeyFlag := flags.String("api-key", "", "provider API key (or set TFL_API_KEY env var)")
	personFlags := flags.StringArray("person", nil, `participant as "Station Name:walk-minutes"; repeat per person`)
	if err := flags.Parse(args); err != nil {
		return err
	}
	if len(*personFlags) < 2 {
		return fmt.Errorf("need at least two --person participants")
	}

	log := logger.New(*verboseFlag)
	apiKey := *apiKeyFlag
	if envKey := os.Getenv("TFL_API_KEY"); apiKey == "" && envKey != "" {
		apiKey = envKey
	}
	cacheDir := *cacheDirFlag
	if cacheDir == "" {
		cacheDir = filepath.Join(*dataDirFlag, "cache")
	}

	g, err := build.ReadGraph(filepath.Join(*dataDirFlag, "final_graph.json"))
	if err != nil {
		return fmt.Errorf("loading graph (run \"midpoint build\" first): %w", err)
	}

	client, err := tfl.New(tfl.Config{
		Logger:   log,
		APIKey:   apiKey,
		CacheDir: cacheDir,
	})
	if err != nil {
		return err
	}

	engine, err := query.New(query.Config{
		Logger:  log,
		Graph:   g,
		Planner: client,
	})
	if err != nil {
		return err
	}

	people := make([]query.Person, 0, len(*personFlags))
	for _, spec := range *personFlags {
		person, err := parsePersonSpec(engine, spec)
		if err != nil {
			return err
		}
		people = append(people, person)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := engine.Meet(ctx, people)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parsePersonSpec parses "Station Name:walk-minutes" (walk optional,
// default 0) and resolves the station against the graph.
func parsePersonSpec(engine *query.Engine, spec string) (query.Person, error) {
	name := spec
	walk := 0.0
	if idx := strings.LastIndex(spec, ":"); idx > 0 {
		parsed, err := strconv.ParseFloat(spec[idx+1:], 64)
		if err != nil {
			return query.Person{}, fmt.Errorf("invalid walk minutes in %q: %w", spec, err)
		}
		name = spec[:idx]
		walk = parsed
	}
	person, err := engine.ResolveStart(strings.TrimSpace(name), walk)
	if err != nil {
		return query.Person{}, err
	}
	return person, nil
}

func runServe(args []string) error {
	flags := flag.NewFlagSet("serve", flag.ExitOnError)
	verboseFlag := flags.Bool("verbose", false, "enable verbose (debug) logging")
	dataDirFlag := flags.String("data-dir", "data", "directory holding final_graph.json")
	cacheDirFlag := flags.String("cache-dir", "", "provider response cache directory (default <data-dir>/cache)")
	apiKeyFlag := flags.String("api-key", "", "provider API key (or set TFL_API_KEY env var)")
	listenAddrFlag := flags.String("listen-addr", "0.0.0.0:8080", "address to listen on for the query API")
	metricsAddrFlag := flags.String("metrics-addr", "", "address to listen on for prometheus metrics (empty disables)")
	corsOriginsFlag := flags.StringArray("cors-origin", nil, "allowed browser origin; repeatable (empty disables CORS)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	log := logger.New(*verboseFlag)
	apiKey := *apiKeyFlag
	if envKey := os.Getenv("TFL_API_KEY"); apiKey == "" && envKey != "" {
		apiKey = envKey
	}
	cacheDir := *cacheDirFlag
	if cacheDir == "" {
		cacheDir = filepath.Join(*dataDirFlag, "cache")
	}

	g, err := build.ReadGraph(filepath.Join(*dataDirFlag, "final_graph.json"))
	if err != nil {
		return fmt.Errorf("loading graph (run \"midpoint build\" first): %w", err)
	}
	log.Info("graph loaded", "hubs", g.NumHubs(), "edges", g.NumEdges())

	m := metrics.New()
	m.SetBuildInfo(version, commit)

	client, err := tfl.New(tfl.Config{
		Logger:   log,
		APIKey:   apiKey,
		CacheDir: cacheDir,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	engine, err := query.New(query.Config{
		Logger:  log,
		Graph:   g,
		Planner: client,
		Metrics: m,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Logger:      log,
		Engine:      engine,
		ListenAddr:  *listenAddrFlag,
		CORSOrigins: *corsOriginsFlag,
		Version:     server.VersionInfo{Version: version, Commit: commit, Date: date},
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return srv.Run(egCtx) })
	if *metricsAddrFlag != "" {
		eg.Go(func() error { return m.Serve(egCtx, log, *metricsAddrFlag) })
	}
	return eg.Wait()
}
