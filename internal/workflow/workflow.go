// Package workflow runs one parse: it finds the header row on the calling
// goroutine, then lexes the rest of the stream on a producer goroutine while
// N consumer goroutines turn queued rows into entities. The entities are
// merged back into source line order.
package workflow

import (
	"context"
	"io"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/csvmachine/internal/column"
	"github.com/ajitpratap0/csvmachine/internal/factory"
	"github.com/ajitpratap0/csvmachine/internal/machine"
	"github.com/ajitpratap0/csvmachine/internal/queue"
	"github.com/ajitpratap0/csvmachine/internal/values"
	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
	"github.com/ajitpratap0/csvmachine/pkg/logger"
	"github.com/ajitpratap0/csvmachine/pkg/metrics"
	"github.com/ajitpratap0/csvmachine/pkg/observability"
	"github.com/ajitpratap0/csvmachine/pkg/pool"
)

// Options describe one run.
type Options[T any] struct {
	Config  *config.Configuration
	Columns []*column.Spec[T]
	Lines   []factory.LineAction[T]
	// Source labels logs, metrics and spans. Defaults to "stream".
	Source string
	Logger *zap.Logger
}

// chunk is the output of one drained batch, tagged with the line of its
// first row.
type chunk[T any] struct {
	first int
	items []T
}

// Workflow is a validated run, ready to read its input.
type Workflow[T any] struct {
	cfg      *config.Configuration
	columns  []*column.Spec[T]
	byName   bool
	names    []string
	provider *values.Provider
	lines    []factory.LineAction[T]

	log        *zap.Logger
	collector  *metrics.Collector
	throughput *metrics.ThroughputTracker
	tracer     *observability.RunTracer
}

// New validates the configuration and the columns and resolves every
// column's setter and parser. All failures are ErrorTypeConfig errors.
func New[T any](opts Options[T]) (*Workflow[T], error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfiguration()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	source := opts.Source
	if source == "" {
		source = "stream"
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}

	w := &Workflow[T]{
		cfg:        cfg,
		provider:   values.NewProvider(cfg),
		lines:      opts.Lines,
		log:        log.With(zap.String("component", "csv_workflow"), zap.String("source", source)),
		collector:  metrics.NewCollector(source),
		throughput: metrics.NewThroughputTracker(source),
		tracer:     observability.NewRunTracer(source),
	}
	if err := w.prepare(opts.Columns); err != nil {
		w.provider.Release()
		return nil, err
	}
	return w, nil
}

func (w *Workflow[T]) prepare(specs []*column.Spec[T]) error {
	if len(specs) == 0 {
		return errors.New(errors.ErrorTypeConfig, "no columns registered")
	}
	w.byName = specs[0].Index == column.Unresolved

	names := make(map[string]bool, len(specs))
	indices := make(map[int]bool, len(specs))
	for _, spec := range specs {
		c := spec.Clone()
		switch {
		case w.byName != (c.Index == column.Unresolved):
			return errors.New(errors.ErrorTypeConfig, "columns bound by name and by index cannot be mixed").
				WithDetail("column", c.Label())
		case w.byName && c.Name == "":
			return errors.New(errors.ErrorTypeConfig, "column name is empty")
		case w.byName && names[c.Name]:
			return errors.New(errors.ErrorTypeConfig, "duplicate column name").
				WithDetail("column", c.Name)
		case !w.byName && c.Index < 0:
			return errors.New(errors.ErrorTypeConfig, "column index must not be negative").
				WithDetail("index", c.Index)
		case !w.byName && indices[c.Index]:
			return errors.New(errors.ErrorTypeConfig, "duplicate column index").
				WithDetail("index", c.Index)
		}
		names[c.Name] = true
		indices[c.Index] = true
		if w.byName {
			w.names = append(w.names, c.Name)
		}

		if err := c.Bind(); err != nil {
			return err
		}
		if err := c.Resolve(w.provider); err != nil {
			return err
		}
		w.columns = append(w.columns, c)
	}
	return nil
}

// Run reads r and returns the entities in source line order. Once Run
// returns the workflow cannot be reused.
func (w *Workflow[T]) Run(ctx context.Context, r io.Reader) ([]T, error) {
	defer w.provider.Release()
	total := metrics.NewTimer()

	ctx, span := w.tracer.StartSpan(ctx, "parse")
	if id, ok := logger.RunID(ctx); ok {
		span.SetAttribute("run_id", id)
	}
	out, err := w.run(ctx, r)
	span.SetAttribute("rows", len(out))
	span.End(err)

	elapsed := total.Stop()
	w.collector.ObserveLatency(metrics.OpTotal, elapsed)
	metrics.RecordBufferPool(pool.GlobalBufferPool.Stats())
	if err != nil {
		w.log.Debug("csv workflow failed", zap.Error(err), zap.Duration("duration", elapsed))
		return nil, err
	}
	w.log.Info("csv workflow completed",
		zap.Int("rows", len(out)),
		zap.Int("threads", w.cfg.FactoryThreads),
		zap.Float64("rows_per_second", w.throughput.GetAndReset()),
		zap.Duration("duration", elapsed))
	return out, nil
}

func (w *Workflow[T]) run(ctx context.Context, r io.Reader) ([]T, error) {
	rr := newRuneReader(r, w.cfg.BufferSize)
	defer rr.release()

	m := machine.New(w.cfg, w.provider, w.names, w.log)
	pending, err := w.header(ctx, m, rr)
	if err != nil {
		return nil, err
	}

	f, err := factory.New(w.columns, w.lines...)
	if err != nil {
		return nil, err
	}

	threads := w.cfg.FactoryThreads
	q := queue.New[machine.ResultLine](w.cfg.EntityQueueSize, threads)
	if err := m.SetContent(w.parsers(), q.Insert); err != nil {
		return nil, err
	}

	results := make([][]chunk[T], threads)
	errs := make([]error, threads+1)
	var wg sync.WaitGroup

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results[id], errs[id] = w.consume(ctx, id, f, q)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[threads] = w.produce(ctx, m, rr, pending, q)
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.Abort(ctx.Err())
		case <-done:
		}
	}()
	wg.Wait()
	close(done)

	// a drained queue means every row reached a consumer, so a late
	// cancellation does not void the result
	if err := ctx.Err(); err != nil && !q.Drained() {
		w.collector.AddRows(metrics.StatusFailure, m.Rows()-converted(results))
		return nil, errors.Wrap(err, errors.ErrorTypeWorker, "csv workflow cancelled")
	}
	if err := errors.Aggregate("csv workflow failed", errs...); err != nil {
		w.collector.AddRows(metrics.StatusFailure, m.Rows()-converted(results))
		return nil, err
	}
	return w.merge(results), nil
}

// converted counts the entities the consumers built. Those rows are already
// recorded as successful.
func converted[T any](results [][]chunk[T]) int {
	n := 0
	for _, r := range results {
		for _, c := range r {
			n += len(c.items)
		}
	}
	return n
}

// header runs the header search on the calling goroutine. It returns the
// runes of the current buffer that follow the header row.
func (w *Workflow[T]) header(ctx context.Context, m *machine.Machine, rr *runeReader) ([]rune, error) {
	if !w.byName {
		return nil, nil
	}
	timer := metrics.NewTimer()
	_, span := w.tracer.StartSpan(ctx, "header")
	pending, err := w.findHeader(ctx, m, rr)
	span.SetAttribute("line", m.Line())
	span.End(err)
	w.collector.ObserveLatency(metrics.OpHeader, timer.Stop())
	if err != nil {
		return nil, err
	}

	headers := m.Headers()
	for _, c := range w.columns {
		c.Index = headers[c.Name]
	}
	w.log.Debug("columns resolved from header row",
		zap.Int("lines_read", m.Line()),
		zap.Any("columns", headers))
	return pending, nil
}

func (w *Workflow[T]) findHeader(ctx context.Context, m *machine.Machine, rr *runeReader) ([]rune, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeWorker, "csv workflow cancelled")
		}
		buf, err := rr.next()
		if err == io.EOF {
			if err := m.Finish(); err != nil {
				return nil, err
			}
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		n, err := m.Process(buf)
		if err != nil {
			return nil, err
		}
		if m.HeaderFound() {
			return buf[n:], nil
		}
	}
}

// parsers lays the column parsers out by CSV index. Gaps stay nil and are
// filled with the discarding parser by the machine.
func (w *Workflow[T]) parsers() []values.Parser {
	width := 0
	for _, c := range w.columns {
		if c.Index+1 > width {
			width = c.Index + 1
		}
	}
	parsers := make([]values.Parser, width)
	for _, c := range w.columns {
		parsers[c.Index] = c.Parser
	}
	return parsers
}

func (w *Workflow[T]) produce(ctx context.Context, m *machine.Machine, rr *runeReader, pending []rune, q *queue.Queue[machine.ResultLine]) (err error) {
	timer := metrics.NewTimer()
	_, span := w.tracer.StartSpan(ctx, "produce")
	defer func() {
		span.SetAttribute("rows", m.Rows())
		span.SetAttribute("bytes", rr.bytes)
		span.End(err)
		w.collector.ObserveLatency(metrics.OpProduce, timer.Stop())
	}()

	err = w.lex(ctx, m, rr, pending, q)
	if errors.Is(err, queue.ErrAborted) {
		// a consumer failed or the run was cancelled; that error is reported
		return nil
	}
	if err != nil {
		q.Abort(err)
		w.log.Debug("producer failed", zap.Error(err), zap.Int("line", m.Line()))
		return err
	}
	w.log.Debug("producer finished", zap.Int("rows", m.Rows()), zap.Int("lines", m.Line()))
	return nil
}

func (w *Workflow[T]) lex(ctx context.Context, m *machine.Machine, rr *runeReader, pending []rune, q *queue.Queue[machine.ResultLine]) error {
	if len(pending) > 0 {
		if _, err := m.Process(pending); err != nil {
			return err
		}
	}
	for {
		if ctx.Err() != nil {
			return queue.ErrAborted
		}
		buf, err := rr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if _, err := m.Process(buf); err != nil {
			return err
		}
	}
	if err := m.Finish(); err != nil {
		return err
	}
	return q.Close()
}

func (w *Workflow[T]) consume(ctx context.Context, id int, f *factory.Factory[T], q *queue.Queue[machine.ResultLine]) (out []chunk[T], err error) {
	var (
		busy time.Duration
		rows int
	)
	_, span := w.tracer.StartSpan(ctx, "consume")
	span.SetAttribute("worker", id)
	log := w.log.With(zap.Int("worker", id))
	log.Debug("consumer started")
	defer func() {
		span.SetAttribute("rows", rows)
		span.End(err)
		w.collector.ObserveLatency(metrics.OpConsume, busy)
		log.Debug("consumer finished", zap.Int("rows", rows), zap.Int("batches", len(out)))
	}()

	for {
		batch, closed := q.DrainBatch()
		if len(batch) > 0 {
			start := time.Now()
			first := batch[0].Line
			items, err := f.CreateAll(make([]T, 0, len(batch)), batch)
			q.Recycle(batch)
			busy += time.Since(start)
			if err != nil {
				q.Abort(err)
				return out, err
			}
			out = append(out, chunk[T]{first: first, items: items})
			rows += len(items)
			w.collector.ObserveBatch(len(items))
			w.collector.SetQueueDepth(q.Len())
			w.collector.AddRows(metrics.StatusSuccess, len(items))
			w.throughput.Increment(int64(len(items)))
		} else {
			q.Recycle(batch)
		}
		if closed {
			return out, nil
		}
	}
}

// merge orders the chunks of every consumer by first line and concatenates
// them.
func (w *Workflow[T]) merge(results [][]chunk[T]) []T {
	var (
		chunks []chunk[T]
		total  int
	)
	for _, r := range results {
		for _, c := range r {
			chunks = append(chunks, c)
			total += len(c.items)
		}
	}
	slices.SortFunc(chunks, func(a, b chunk[T]) int { return a.first - b.first })

	out := make([]T, 0, total)
	for _, c := range chunks {
		out = append(out, c.items...)
	}
	return out
}
