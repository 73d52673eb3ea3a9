// Command fuse is the command-line interface to the fusion pipeline. It
// registers data sources from YAML declarations, triggers refreshes and
// uploads, builds knowledge graphs, and exports or queries persisted
// snapshots.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lucidrx/fusion"
	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/graph/query"
	"github.com/lucidrx/fusion/health"
	"github.com/lucidrx/fusion/source"
)

func main() {
	app := &cli.App{
		Name:  "fuse",
		Usage: "Pharmaceutical data fusion and knowledge graph construction",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the BadgerDB snapshot directory",
				Value:   defaultDBPath(),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "redis",
				Usage: "Publish lifecycle events to Redis at this URL",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:  "sources",
				Usage: "Manage data sources",
				Subcommands: []*cli.Command{
					{
						Name:   "register",
						Usage:  "Register sources declared in a YAML file",
						Action: sourcesRegisterCommand,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "file",
								Aliases:  []string{"f"},
								Usage:    "Path to the sources YAML file",
								Required: true,
							},
						},
					},
					{
						Name:   "list",
						Usage:  "List registered sources and their refresh state",
						Action: sourcesListCommand,
					},
					{
						Name:      "refresh",
						Usage:     "Force an immediate refresh of a source",
						ArgsUsage: "<source-id>",
						Action:    sourcesRefreshCommand,
					},
					{
						Name:      "upload",
						Usage:     "Ingest a local data file into a file source",
						ArgsUsage: "<source-id> <path>",
						Action:    sourcesUploadCommand,
					},
				},
			},
			{
				Name:   "run",
				Usage:  "Run the refresh scheduler until interrupted",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "watch",
						Usage: "Ingest data files dropped into this directory",
					},
				},
			},
			{
				Name:   "build",
				Usage:  "Build a knowledge graph from registered sources",
				Action: buildCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "sources",
						Usage: "Source ids to build from (default: all registered)",
					},
					&cli.IntFlag{
						Name:  "parallelism",
						Usage: "Agents run concurrently per source",
						Value: 1,
					},
					&cli.StringFlag{
						Name:  "merge-strategy",
						Usage: "Entity property merge strategy (overwrite, keep_first)",
						Value: string(graph.MergeOverwrite),
					},
				},
			},
			{
				Name:   "graphs",
				Usage:  "List persisted graph snapshots",
				Action: graphsCommand,
			},
			{
				Name:      "export",
				Usage:     "Export a persisted graph snapshot",
				ArgsUsage: "<graph-id>",
				Action:    exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"F"},
						Usage:   "Export format (json, cypher, graphlib)",
						Value:   string(graph.ExportJSON),
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Output file (defaults to stdout)",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Query entities in a persisted graph snapshot",
				ArgsUsage: "<graph-id>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "type",
						Aliases: []string{"t"},
						Usage:   "Entity type to match (repeatable)",
					},
					&cli.StringFlag{
						Name:  "neighbors-of",
						Usage: "Restrict to the neighborhood of this entity id",
					},
					&cli.IntFlag{
						Name:  "max-hops",
						Usage: "Neighborhood expansion depth",
						Value: query.DefaultMaxHops,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum entities to return (0 = unlimited)",
					},
				},
			},
			{
				Name:   "health",
				Usage:  "Check the pipeline's dependencies",
				Action: healthCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Per-check timeout",
						Value: 5 * time.Second,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openFramework builds a started Framework from the global flags. The
// returned shutdown func must be deferred.
func openFramework(c *cli.Context, opts ...fusion.Option) (*fusion.Framework, func(), error) {
	ctx := c.Context

	opts = append(opts, fusion.WithStorePath(c.String("db")))
	if redisURL := c.String("redis"); redisURL != "" {
		opts = append(opts, fusion.WithRedisBus(redisURL))
	}

	f, err := fusion.New(opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := f.Start(ctx); err != nil {
		return nil, nil, err
	}
	shutdown := func() {
		if err := f.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}
	return f, shutdown, nil
}

func sourcesRegisterCommand(c *cli.Context) error {
	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()

	if err := f.RegisterSourcesFromFile(c.Context, c.String("file")); err != nil {
		return err
	}
	for _, src := range f.Sources() {
		fmt.Printf("%s\t%s\t%s\t%d records\n", src.ID, src.Kind, src.Status(), src.RecordCount())
	}
	return nil
}

func sourcesListCommand(c *cli.Context) error {
	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()

	sources := f.Sources()
	if len(sources) == 0 {
		fmt.Println("no sources registered")
		return nil
	}
	for _, src := range sources {
		next := "-"
		if !src.NextRefreshAt().IsZero() {
			next = src.NextRefreshAt().Format(time.RFC3339)
		}
		fmt.Printf("%s\tkind=%s\tstatus=%s\tquality=%s\trecords=%d\tnext_refresh=%s\n",
			src.ID, src.Kind, src.Status(), src.Quality(), src.RecordCount(), next)
		if src.LastError() != "" {
			fmt.Printf("\tlast_error=%s\n", src.LastError())
		}
	}
	return nil
}

func sourcesRefreshCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: fuse sources refresh <source-id>")
	}
	id := c.Args().Get(0)

	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()

	if err := f.RefreshSource(c.Context, id); err != nil {
		return err
	}
	src, err := f.Source(id)
	if err != nil {
		return err
	}
	fmt.Printf("%s\tstatus=%s\trecords=%d\n", src.ID, src.Status(), src.RecordCount())
	return nil
}

func sourcesUploadCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: fuse sources upload <source-id> <path>")
	}
	id, path := c.Args().Get(0), c.Args().Get(1)

	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()

	res, err := f.UploadFile(c.Context, id, path)
	if err != nil {
		return err
	}
	fmt.Printf("accepted=%d rejected=%d\n", res.Accepted, res.Rejected)
	return nil
}

func runCommand(c *cli.Context) error {
	var opts []fusion.Option
	if dir := c.String("watch"); dir != "" {
		opts = append(opts, fusion.WithWatchDir(dir))
	}

	f, shutdown, err := openFramework(c, opts...)
	if err != nil {
		return err
	}
	defer shutdown()

	sources := f.Sources()
	if len(sources) == 0 {
		return fmt.Errorf("no sources registered; run 'fuse sources register' first")
	}
	fmt.Printf("scheduling refreshes for %d sources, ctrl-c to stop\n", len(sources))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func buildCommand(c *cli.Context) error {
	strategy := graph.MergeStrategy(c.String("merge-strategy"))
	if !strategy.IsValid() {
		return fmt.Errorf("invalid merge strategy %q", c.String("merge-strategy"))
	}

	f, shutdown, err := openFramework(c,
		fusion.WithParallelism(c.Int("parallelism")),
		fusion.WithMergeStrategy(strategy),
	)
	if err != nil {
		return err
	}
	defer shutdown()

	g, err := f.BuildGraph(c.Context, c.StringSlice("sources")...)
	if err != nil {
		return err
	}

	fmt.Printf("graph %s: %d entities, %d relationships, %d insights\n",
		g.ID, g.Metadata.EntityCount, g.Metadata.RelationshipCount, g.Metadata.InsightCount)
	if len(g.Metadata.DegradedSources) > 0 {
		fmt.Printf("degraded sources: %s\n", strings.Join(g.Metadata.DegradedSources, ", "))
	}
	return nil
}

func graphsCommand(c *cli.Context) error {
	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()

	ids, err := f.ListGraphs(c.Context)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no graphs persisted")
		return nil
	}
	for _, id := range ids {
		g, err := f.GetGraph(c.Context, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s\tstatus=%s\tentities=%d\trelationships=%d\tupdated=%s\n",
			g.ID, g.Status, g.Metadata.EntityCount, g.Metadata.RelationshipCount,
			g.Metadata.LastUpdated.Format(time.RFC3339))
	}
	return nil
}

func exportCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: fuse export <graph-id>")
	}
	format := graph.ExportFormat(c.String("format"))
	if !format.IsValid() {
		return fmt.Errorf("invalid export format %q", c.String("format"))
	}

	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()

	data, err := f.ExportGraph(c.Context, c.Args().Get(0), format)
	if err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		return os.WriteFile(out, data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: fuse query <graph-id>")
	}

	q := query.New().
		WithMaxHops(c.Int("max-hops")).
		WithLimit(c.Int("limit"))
	for _, t := range c.StringSlice("type") {
		q.WithEntityTypes(graph.EntityType(t))
	}
	if anchor := c.String("neighbors-of"); anchor != "" {
		q.WithNeighborsOf(anchor)
	}

	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()

	res, err := f.QueryGraph(c.Context, c.Args().Get(0), q)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func healthCommand(c *cli.Context) error {
	timeout := c.Duration("timeout")
	checks := []health.Status{health.StoreDirCheck(c.String("db"))}
	if redisURL := c.String("redis"); redisURL != "" {
		checks = append(checks, health.RedisCheck(c.Context, redisURL, timeout))
	}

	f, shutdown, err := openFramework(c)
	if err != nil {
		return err
	}
	defer shutdown()
	for _, src := range f.Sources() {
		if src.Kind == source.KindAPI {
			checks = append(checks, health.EndpointCheck(c.Context, src.Endpoint, timeout))
		}
	}

	overall := health.Combine(checks...)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(overall); err != nil {
		return err
	}
	if overall.IsUnhealthy() {
		return cli.Exit("", 1)
	}
	return nil
}

func defaultDBPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/fusion/db"
	}
	return ".fusion/db"
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
