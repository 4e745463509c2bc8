package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvmachine/internal/column"
	"github.com/ajitpratap0/csvmachine/internal/factory"
	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
	"github.com/ajitpratap0/csvmachine/pkg/metrics"
	"github.com/ajitpratap0/csvmachine/pkg/testutil"
)

type basic struct {
	A string
	B int
	C decimal.Decimal
}

func basicColumns() []*column.Spec[basic] {
	return []*column.Spec[basic]{
		column.Property[basic, string]("a", column.Unresolved, func(b *basic) any { return &b.A }),
		column.Property[basic, int]("b", column.Unresolved, func(b *basic) any { return &b.B }),
		column.Property[basic, decimal.Decimal]("c", column.Unresolved, func(b *basic) any { return &b.C }),
	}
}

func run[T any](t *testing.T, opts Options[T], input string) ([]T, error) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testutil.TestLogger(t)
	}
	w, err := New(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := testutil.TestContext(t)
	defer cancel()
	return w.Run(ctx, strings.NewReader(input))
}

func TestBasicScenario(t *testing.T) {
	rows, err := run(t, Options[basic]{Columns: basicColumns()}, "a,b,c\n1,2,3\n")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].A)
	assert.Equal(t, 2, rows[0].B)
	assert.True(t, decimal.NewFromInt(3).Equal(rows[0].C))
}

func TestCommentBeforeHeader(t *testing.T) {
	cfg := config.NewConfiguration()
	cfg.Comment = '#'
	rows, err := run(t, Options[basic]{Config: cfg, Columns: basicColumns()}, "# comment\na,b,c\n1,2,3\n")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].B)
}

func TestHeaderOrderFromFile(t *testing.T) {
	input := "title line\n\nc,x,a,b\n1.5,skip,first,7\n2,,second,8\n"
	rows, err := run(t, Options[basic]{Columns: basicColumns()}, input)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "first", rows[0].A)
	assert.Equal(t, 7, rows[0].B)
	assert.True(t, decimal.RequireFromString("1.5").Equal(rows[0].C))
	assert.Equal(t, 8, rows[1].B)
	assert.True(t, decimal.NewFromInt(2).Equal(rows[1].C))
}

func TestHeaderOnly(t *testing.T) {
	rows, err := run(t, Options[basic]{Columns: basicColumns()}, "a,b,c")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestHeaderNotFoundIsSynchronous(t *testing.T) {
	cfg := config.NewConfiguration()
	cfg.HeaderSearchLimit = 2
	_, err := run(t, Options[basic]{Config: cfg, Columns: basicColumns()}, "x\ny\na,b,c\n1,2,3\n")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed))
	assert.False(t, errors.IsType(err, errors.ErrorTypeWorker))
}

func TestThreadCountDoesNotChangeResult(t *testing.T) {
	input := testutil.GenerateCSV(5000)

	parse := func(threads, queue int) []basic {
		cfg := config.NewConfiguration()
		cfg.FactoryThreads = threads
		cfg.EntityQueueSize = queue
		cfg.BufferSize = 97
		columns := []*column.Spec[basic]{
			column.Property[basic, string]("name", column.Unresolved, func(b *basic) any { return &b.A }),
			column.Property[basic, int]("id", column.Unresolved, func(b *basic) any { return &b.B }),
			column.Property[basic, decimal.Decimal]("amount", column.Unresolved, func(b *basic) any { return &b.C }),
		}
		rows, err := run(t, Options[basic]{Config: cfg, Columns: columns, Logger: zap.NewNop()}, input)
		require.NoError(t, err)
		return rows
	}

	single := parse(1, 20)
	require.Len(t, single, 5000)
	for i, row := range single {
		require.Equal(t, i, row.B)
		require.Equal(t, fmt.Sprintf("name-%d", i), row.A)
	}
	for _, threads := range []int{2, 4, 10} {
		assert.Equal(t, single, parse(threads, 20), "threads=%d", threads)
		assert.Equal(t, single, parse(threads, 2000), "threads=%d", threads)
	}
}

func TestProducerErrorIsAggregated(t *testing.T) {
	_, err := run(t, Options[basic]{Columns: basicColumns()}, "a,b,c\n1,2,3\n\"open,2,3\n")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeWorker))
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed))
	assert.Contains(t, err.Error(), "unterminated quoted field")
}

func TestNonNullableErrorCarriesLine(t *testing.T) {
	_, err := run(t, Options[basic]{Columns: basicColumns()}, "a,b,c\n1,2,3\n1,x,3\n")
	require.Error(t, err)

	causes := errors.Causes(err)
	require.Len(t, causes, 1)
	var typed *errors.Error
	require.True(t, errors.As(causes[0], &typed))
	line, _ := typed.Detail("line")
	assert.Equal(t, 2, line)
}

func TestFailedRunCountsEveryRowOnce(t *testing.T) {
	const source = "failed_run_counts.csv"
	var b strings.Builder
	b.WriteString("a,b,c\n")
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "x,%d,1\n", i)
	}
	b.WriteString("x,broken,1\n")

	_, err := run(t, Options[basic]{Columns: basicColumns(), Source: source}, b.String())
	require.Error(t, err)

	success := promtest.ToFloat64(metrics.RowsProcessed.WithLabelValues(source, metrics.StatusSuccess))
	failure := promtest.ToFloat64(metrics.RowsProcessed.WithLabelValues(source, metrics.StatusFailure))
	assert.Equal(t, 500.0, success+failure)
}

func TestConsumerErrorAbortsRun(t *testing.T) {
	columns := []*column.Spec[basic]{
		column.Custom[basic, int]("b", column.Unresolved, func(_ *basic, v int) {
			if v == 3000 {
				panic("unexpected value")
			}
		}),
	}
	cfg := config.NewConfiguration()
	cfg.EntityQueueSize = 20
	cfg.FactoryThreads = 4

	var b strings.Builder
	b.WriteString("b\n")
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	_, err := run(t, Options[basic]{Config: cfg, Columns: columns}, b.String())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeWorker))
	assert.Len(t, errors.Causes(err), 1)
	assert.Contains(t, err.Error(), "entity construction panicked")
}

func TestIndexBound(t *testing.T) {
	columns := []*column.Spec[basic]{
		column.Property[basic, int]("", 1, func(b *basic) any { return &b.B }),
		column.Property[basic, string]("", 3, func(b *basic) any { return &b.A }),
	}
	rows, err := run(t, Options[basic]{Columns: columns}, "x,1,y,first,z\nx,2\n")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, basic{A: "first", B: 1}, rows[0])
	assert.Equal(t, basic{B: 2}, rows[1])
}

func TestLineActions(t *testing.T) {
	var lines []factory.LineAction[basic]
	lines = append(lines, func(b *basic, vs []any) {
		b.A = fmt.Sprint(len(vs))
	})
	rows, err := run(t, Options[basic]{Columns: basicColumns()[1:2], Lines: lines}, "b\n5\n6\n")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, basic{A: "1", B: 5}, rows[0])
}

func TestValidation(t *testing.T) {
	mixed := []*column.Spec[basic]{
		column.Property[basic, string]("a", column.Unresolved, func(b *basic) any { return &b.A }),
		column.Property[basic, int]("", 1, func(b *basic) any { return &b.B }),
	}
	duplicate := []*column.Spec[basic]{
		column.Property[basic, string]("a", column.Unresolved, func(b *basic) any { return &b.A }),
		column.Property[basic, string]("a", column.Unresolved, func(b *basic) any { return &b.A }),
	}
	duplicateIndex := []*column.Spec[basic]{
		column.Property[basic, string]("", 0, func(b *basic) any { return &b.A }),
		column.Property[basic, string]("", 0, func(b *basic) any { return &b.A }),
	}
	mismatch := []*column.Spec[basic]{
		column.Property[basic, int]("a", column.Unresolved, func(b *basic) any { return &b.A }),
	}
	badConfig := config.NewConfiguration()
	badConfig.FactoryThreads = 0

	tests := []struct {
		name    string
		opts    Options[basic]
		message string
	}{
		{"no columns", Options[basic]{}, "no columns registered"},
		{"mixed", Options[basic]{Columns: mixed}, "cannot be mixed"},
		{"duplicate name", Options[basic]{Columns: duplicate}, "duplicate column name"},
		{"duplicate index", Options[basic]{Columns: duplicateIndex}, "duplicate column index"},
		{"type mismatch", Options[basic]{Columns: mismatch}, "column type mismatch"},
		{"configuration", Options[basic]{Config: badConfig, Columns: basicColumns()}, "factory_threads"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCancelledContext(t *testing.T) {
	w, err := New(Options[basic]{Columns: basicColumns(), Logger: testutil.TestLogger(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Run(ctx, strings.NewReader("a,b,c\n1,2,3\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLateCancellationNeverReturnsPartialRows(t *testing.T) {
	const rows = 200
	input := testutil.GenerateCSV(rows)

	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		columns := []*column.Spec[basic]{
			column.Custom[basic, int]("id", column.Unresolved, func(b *basic, v int) {
				b.B = v
				if v == rows-1 {
					cancel()
				}
			}),
		}
		cfg := config.NewConfiguration()
		cfg.FactoryThreads = 1 + i%4

		w, err := New(Options[basic]{Config: cfg, Columns: columns, Logger: zap.NewNop()})
		require.NoError(t, err)
		out, err := w.Run(ctx, strings.NewReader(input))
		cancel()

		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
			assert.True(t, errors.IsType(err, errors.ErrorTypeWorker))
			continue
		}
		require.Len(t, out, rows)
		assert.Equal(t, rows-1, out[rows-1].B)
	}
}

func TestSpecsReusableAcrossRuns(t *testing.T) {
	columns := basicColumns()
	for i := 0; i < 3; i++ {
		rows, err := run(t, Options[basic]{Columns: columns}, "c,b,a\n1,2,3\n")
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "3", rows[0].A)
	}
	assert.Equal(t, column.Unresolved, columns[0].Index)
}
