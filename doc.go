// Package fusion is a data-fusion toolkit for pharmaceutical competitive
// intelligence. It ingests heterogeneous feeds (patent filings, clinical
// trial registries, financial data, analyst intelligence), normalizes them
// through per-source schemas and transformation rules, and fuses them into a
// queryable knowledge graph of companies, drugs, patents, trials, and the
// relationships between them.
//
// # Architecture
//
// The toolkit is organized as focused packages coordinated by the Framework
// in this root package:
//
//   - source: data source registry, refresh scheduler, HTTP fetcher, file
//     upload watcher, and etcd presence announcer
//   - record: parsing (CSV/JSON), schema validation, and CEL-based
//     transformation rules
//   - agent: extraction agents that turn validated records into entities,
//     relationships, and insights
//   - integrator: fuses agent output from all sources into one graph,
//     including cross-source entity resolution
//   - graph: the knowledge graph model, deterministic identity scheme,
//     exporters, and the query sub-package
//   - store: BadgerDB persistence for graph snapshots and registry state
//   - event: lifecycle event bus with in-memory and Redis backends
//
// # Usage
//
// Create a Framework, register sources, and build:
//
//	f, err := fusion.New(
//	    fusion.WithStorePath("/var/lib/fusion"),
//	    fusion.WithParallelism(4),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := f.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer f.Shutdown(ctx)
//
//	if err := f.RegisterSourcesFromFile(ctx, "sources.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	g, err := f.BuildGraph(ctx)
//
// Registered API sources refresh on their configured intervals until
// Shutdown; file sources ingest on registration and on explicit uploads.
package fusion
