package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/csvmachine"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
	"github.com/ajitpratap0/csvmachine/pkg/logger"
	"github.com/ajitpratap0/csvmachine/pkg/observability"
)

var version = "0.1.0"

// parseOptions are the settings of one parse command, after flags and
// CSVMACHINE_* environment variables are merged.
type parseOptions struct {
	Schema      string
	Config      string
	Output      string
	Threads     int
	Delimiter   string
	Encoding    string
	Compression string
	Timeout     time.Duration
	LogLevel    string
	Trace       bool
	Text        bool
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "csvmachine",
		Short: "csvmachine - typed, multi-threaded CSV mapping",
		Long: `csvmachine maps CSV files onto typed columns and writes every row as a JSON object.
Columns are described in a YAML schema; parser settings come from a YAML configuration file.`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "csvmachine v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newParseCommand())
	return root
}

func newParseCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CSVMACHINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a CSV file into JSON lines",
		Long: `Parse a CSV file (or stdin when no file is given) with the columns of a YAML schema.
Every flag can also be set through a CSVMACHINE_<FLAG> environment variable.

Example:
  csvmachine parse --schema trades.yaml --config csv.yaml trades.csv.gz`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := parseOptions{
				Schema:      v.GetString("schema"),
				Config:      v.GetString("config"),
				Output:      v.GetString("output"),
				Threads:     v.GetInt("threads"),
				Delimiter:   v.GetString("delimiter"),
				Encoding:    v.GetString("encoding"),
				Compression: v.GetString("compression"),
				Timeout:     v.GetDuration("timeout"),
				LogLevel:    v.GetString("log-level"),
				Trace:       v.GetBool("trace"),
				Text:        v.GetBool("text"),
			}
			var input string
			if len(args) == 1 {
				input = args[0]
			}
			return runParse(cmd.Context(), opts, input, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("schema", "", "YAML schema describing the columns (required)")
	flags.String("config", "", "YAML parser configuration")
	flags.StringP("output", "o", "", "write JSON lines to this file instead of stdout")
	flags.Int("threads", 0, "entity factory goroutines (overrides the configuration)")
	flags.String("delimiter", "", "field delimiter (overrides the configuration)")
	flags.String("encoding", "", "input character encoding (overrides the configuration)")
	flags.String("compression", "", "input compression: auto, none, gzip, zstd, lz4, snappy, s2")
	flags.Duration("timeout", 0, "abort the parse after this long (0 disables)")
	flags.String("log-level", "info", "log level")
	flags.Bool("trace", false, "write OpenTelemetry spans to stderr")
	flags.Bool("text", false, "render values as CSV text instead of JSON values")
	return cmd
}

func runParse(ctx context.Context, opts parseOptions, input string, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := logger.Init(logger.Config{Level: opts.LogLevel, Encoding: "console"}); err != nil {
		return err
	}
	log := logger.Get().With(zap.String("component", "cli"))
	defer log.Sync() //nolint:errcheck

	if opts.Schema == "" {
		return errors.New(errors.ErrorTypeConfig, "--schema is required")
	}
	schema, err := LoadSchema(opts.Schema)
	if err != nil {
		return err
	}
	cfg, err := loadConfiguration(opts)
	if err != nil {
		return err
	}

	if opts.Trace {
		shutdown, err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "csvmachine",
			ServiceVersion: version,
			SamplingRate:   1,
			Writer:         os.Stderr,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
		}()
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	parser, err := schema.Build(csvmachine.WithLogger(log))
	if err != nil {
		return err
	}

	start := time.Now()
	var records []record
	if input == "" {
		records, err = parser.Parse(ctx, stdin, cfg)
	} else {
		records, err = parser.ParseFile(ctx, input, cfg)
	}
	if err != nil {
		return err
	}

	out := stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").
				WithDetail("path", opts.Output)
		}
		defer f.Close()
		out = f
	}
	w, err := newJSONLines(out, schema, cfg, opts.Text)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := w.write(r); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record")
		}
	}
	if err := w.flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write records")
	}

	log.Info("parse finished",
		zap.Int("records", len(records)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// loadConfiguration reads the configuration file, if any, and applies the
// flag overrides.
func loadConfiguration(opts parseOptions) (*config.Configuration, error) {
	cfg := config.NewConfiguration()
	if opts.Config != "" {
		loaded, err := config.LoadConfiguration(opts.Config)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load configuration").
				WithDetail("path", opts.Config)
		}
		cfg = loaded
	}
	if opts.Threads > 0 {
		cfg.FactoryThreads = opts.Threads
	}
	if opts.Delimiter != "" {
		if opts.Delimiter == `\t` {
			opts.Delimiter = "\t"
		}
		if err := cfg.Delimiter.UnmarshalText([]byte(opts.Delimiter)); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid delimiter").
				WithDetail("delimiter", opts.Delimiter)
		}
	}
	if opts.Encoding != "" {
		cfg.Encoding = opts.Encoding
	}
	if opts.Compression != "" {
		cfg.Compression = config.Compression(opts.Compression)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
