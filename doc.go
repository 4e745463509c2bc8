// Package csvmachine is a high-throughput CSV to typed object mapper.
//
// CSV input is read as a character stream by a lexical state machine that
// feeds every field straight into a typed value parser, so no intermediate
// string table is built. Completed rows go through a bounded queue to a
// pool of entity factory goroutines, and the resulting entities are merged
// back into source line order.
//
// # Key Packages
//
//   - pkg/csvmachine: the public API (Parser[T], column registration, Parse)
//   - pkg/config: parser Configuration, YAML loading and validation
//   - pkg/source: file and stream opening, decompression and charset decoding
//   - pkg/compression: gzip, zstd, lz4, snappy and s2 readers and writers
//   - pkg/errors: structured, categorized errors and worker aggregation
//   - pkg/logger, pkg/metrics, pkg/observability: zap logging, Prometheus
//     metrics and OpenTelemetry spans for every run
//   - internal/machine: the CSV lexer
//   - internal/values: the per-type value parsers and formatters
//   - internal/workflow: producer, consumers and the ordered merge
//
// # Quick Start
//
//	type Trade struct {
//	    Symbol string
//	    Qty    int
//	    Price  decimal.Decimal
//	}
//
//	p := csvmachine.New[Trade]()
//	csvmachine.Property[string](p, "symbol", func(t *Trade) any { return &t.Symbol })
//	csvmachine.Property[int](p, "qty", func(t *Trade) any { return &t.Qty })
//	csvmachine.Property[decimal.Decimal](p, "price", func(t *Trade) any { return &t.Price })
//
//	cfg := config.NewConfiguration()
//	cfg.FactoryThreads = 4
//	trades, err := p.ParseFile(ctx, "trades.csv.zst", cfg)
//
// # Command Line
//
// cmd/csvmachine parses a file with a YAML column schema and writes one
// JSON object per row:
//
//	csvmachine parse --schema trades.yaml --config csv.yaml trades.csv.gz
//
// # Configuration
//
// Parser settings are YAML (see pkg/config). ${VAR} references in
// configuration and schema files are expanded from the environment, and
// every CLI flag can be set through a CSVMACHINE_<FLAG> variable or a .env
// file.
package csvmachine
