// Package pipeline runs a load: every selected stage file is decoded,
// assembled into rows and handed to the write path by a bounded pool of file
// tasks.
//
// Each file task owns its decoder, its ledger and its row channel; nothing
// mutable is shared between files. Accepted rows cross a bounded channel to
// the writer, so a slow write path blocks decoding instead of buffering rows.
// Reports reach the caller through a single collector goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ingest/internal/datasource"
	"ingest/internal/format"
	"ingest/internal/ledger"
	"ingest/internal/materialize"
	"ingest/internal/metrics"
	"ingest/internal/parser"
	"ingest/internal/parser/avro"
	"ingest/internal/parser/csv"
	"ingest/internal/parser/json"
	"ingest/internal/schema"
	"ingest/internal/transformer"
)

// Writer is the write path for one file's accepted rows. It must drain rows
// until the channel closes, ctx is canceled or it fails, and must Free every
// row it takes.
type Writer interface {
	WriteFile(ctx context.Context, path string, rows <-chan *transformer.Row) (int64, error)
}

// Options are the immutable settings of one load.
type Options struct {
	Job     string
	Columns []schema.ColumnSpec
	Format  format.FileFormatOptions
	Policy  format.LoadPolicy

	// Concurrency bounds the number of files read at once.
	Concurrency int
	// ChannelBuffer is the capacity of each file's accepted-row channel.
	ChannelBuffer int
	// ErrorSample is the number of rejection messages logged per file.
	ErrorSample int
	// Verbose logs one line per file state change.
	Verbose bool
}

// Pipeline runs loads against one stage and writer.
type Pipeline struct {
	opts    Options
	stage   datasource.Stage
	writer  Writer
	history History
	loadID  string
	mpolicy materialize.Policy
	names   []string
}

// New returns a pipeline. Zero runtime knobs fall back to 4 workers and a
// 1024-row channel.
func New(stage datasource.Stage, w Writer, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ChannelBuffer <= 0 {
		opts.ChannelBuffer = 1024
	}
	if opts.Job == "" {
		opts.Job = "ingest"
	}
	return &Pipeline{
		opts:    opts,
		stage:   stage,
		writer:  w,
		loadID:  uuid.NewString(),
		mpolicy: materialize.PolicyOf(opts.Format),
		names:   schema.Names(opts.Columns),
	}
}

// WithHistory enables skipping of files already loaded. Without Force, a file
// whose fingerprint is in h is not attempted.
func (p *Pipeline) WithHistory(h History) *Pipeline {
	p.history = h
	return p
}

// LoadID identifies this pipeline's load in logs and metrics.
func (p *Pipeline) LoadID() string { return p.loadID }

// Run loads files and returns one report per attempted file, sorted by path.
//
// The error is nil unless the load as a whole failed: an *AbortError when the
// ABORT policy fired, or ctx.Err() when the caller canceled. Reports are
// returned in both cases.
func (p *Pipeline) Run(ctx context.Context, files []datasource.FileInfo) ([]LoadReport, error) {
	start := time.Now()
	log.Printf("pipeline: load=%s job=%s files=%d concurrency=%d buffer=%d on_error=%s limit=%d size_limit=%d",
		p.loadID, p.opts.Job, len(files), p.opts.Concurrency, p.opts.ChannelBuffer,
		p.opts.Policy.OnError, p.opts.Policy.ErrorLimit, p.opts.Policy.SizeLimit)

	files, err := p.skipLoaded(ctx, files)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	quota := newRowQuota(p.opts.Policy.SizeLimit)

	results := make(chan LoadReport, p.opts.Concurrency)
	collected := make(chan []LoadReport, 1)
	go func() {
		var out []LoadReport
		for r := range results {
			out = append(out, r)
		}
		collected <- out
	}()

	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Admitted after cancellation: the file is not attempted.
			if gctx.Err() != nil {
				return nil
			}
			if quota.exhausted() {
				log.Printf("pipeline: load=%s file=%s skipped=size_limit", p.loadID, f.Path)
				return nil
			}
			r, abortErr := p.loadFile(gctx, f, quota)
			results <- r
			if abortErr != nil {
				return abortErr
			}
			return nil
		})
	}
	runErr := g.Wait()
	close(results)
	reports := <-collected
	SortReports(reports)

	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr == nil {
		p.record(ctx, files, reports)
		if p.opts.Policy.Purge {
			p.purge(ctx, reports)
		}
	}

	metrics.RecordLoad(p.opts.Job, runErr)
	log.Printf("pipeline: load=%s done files=%d elapsed=%s err=%v",
		p.loadID, len(reports), time.Since(start).Truncate(time.Millisecond), runErr)

	if p.opts.Policy.ReturnFailedOnly {
		reports = FailedOnly(reports)
	}
	return reports, runErr
}

func (p *Pipeline) skipLoaded(ctx context.Context, files []datasource.FileInfo) ([]datasource.FileInfo, error) {
	if p.history == nil || p.opts.Policy.Force {
		return files, nil
	}
	out := files[:0:0]
	for _, f := range files {
		seen, err := p.history.Seen(ctx, f.Fingerprint())
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
		if seen {
			log.Printf("pipeline: load=%s file=%s skipped=already_loaded", p.loadID, f.Path)
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// loadFile runs one file to a terminal state. The second return is non-nil
// only when the file ends the whole load under ABORT.
func (p *Pipeline) loadFile(ctx context.Context, f datasource.FileInfo, quota *rowQuota) (LoadReport, error) {
	start := time.Now()
	st := &fileState{path: f.Path}
	led := ledger.New(p.opts.Policy, p.opts.ErrorSample)

	finish := func(to State, err error) (LoadReport, error) {
		if mErr := st.moveTo(to); mErr != nil {
			// Only reachable through a bug in this file; keep the report honest.
			log.Printf("pipeline: load=%s %v", p.loadID, mErr)
		}
		r := newReport(f.Path, led.Stats(), st.state, err)
		p.logFile(r, led, time.Since(start))
		metrics.RecordFile(p.opts.Job, st.state.String(), time.Since(start))
		metrics.RecordRows(p.opts.Job, "loaded", r.RowsLoaded)
		metrics.RecordRows(p.opts.Job, "error", r.RowsError)
		return r, p.abortFor(r, led)
	}

	src, err := p.stage.Open(ctx, f.Path)
	if err != nil {
		if ctx.Err() != nil {
			return finish(Aborted, ctx.Err())
		}
		return finish(Aborted, fmt.Errorf("open: %w", err))
	}
	defer src.Close()
	if err := st.moveTo(Reading); err != nil {
		return finish(Aborted, err)
	}
	if p.opts.Verbose {
		log.Printf("pipeline: load=%s file=%s state=%s size=%d", p.loadID, f.Path, st.state, f.Size)
	}

	dec, closeDec, err := p.openDecoder(src, f.Path)
	if err != nil {
		var de *parser.DecodeError
		if errors.As(err, &de) {
			// A header or framing failure is the file's one rejected record.
			led.Rejected(*transformer.RejectDecode(de).Rejected)
			return finish(p.terminal(led), nil)
		}
		return finish(Aborted, fmt.Errorf("read: %w", err))
	}
	defer closeDec()

	var obs transformer.Observer = led
	if quota != nil {
		obs = quotaLedger{Ledger: led, q: quota}
	}
	loopErr, writeErr := p.stream(ctx, f.Path, dec, led, obs)
	switch {
	case led.Decision() == ledger.Abort:
		return finish(Aborted, nil)
	case (loopErr != nil || writeErr != nil) && ctx.Err() != nil:
		return finish(Aborted, ctx.Err())
	case writeErr != nil:
		return finish(Aborted, fmt.Errorf("write: %w", writeErr))
	case loopErr != nil:
		return finish(Aborted, fmt.Errorf("read: %w", loopErr))
	}
	return finish(Succeeded, nil)
}

// stream connects the assemble loop to the writer through a bounded channel.
// obs receives the outcomes and wraps led. Rows left in the channel after the
// writer stops are returned to the pool.
func (p *Pipeline) stream(ctx context.Context, path string, dec parser.Decoder, led *ledger.Ledger, obs transformer.Observer) (loopErr, writeErr error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rows := make(chan *transformer.Row, p.opts.ChannelBuffer)
	done := make(chan struct{})
	var written int64
	go func() {
		defer close(done)
		written, writeErr = p.writer.WriteFile(fctx, path, rows)
		if writeErr != nil {
			cancel()
		}
	}()

	loopErr = transformer.AssembleLoop(fctx, dec, p.opts.Columns, p.mpolicy, rows, obs)
	close(rows)
	<-done
	for r := range rows {
		r.Free()
	}

	if writeErr == nil && loopErr == nil && written != led.Stats().RowsLoaded {
		log.Printf("pipeline: load=%s file=%s warning=write_count_mismatch accepted=%d written=%d",
			p.loadID, path, led.Stats().RowsLoaded, written)
	}
	return loopErr, writeErr
}

// openDecoder frames src and selects the decoder for the format kind.
func (p *Pipeline) openDecoder(src io.Reader, path string) (parser.Decoder, func(), error) {
	framed, err := parser.Frame(src, path, p.opts.Format)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() { _ = framed.Close() }

	var dec parser.Decoder
	switch p.opts.Format.Kind {
	case format.CSV, format.TSV:
		dec = csv.NewDecoder(framed, len(p.names), p.opts.Format)
	case format.NDJSON:
		dec = json.NewDecoder(framed, p.names)
	case format.Avro:
		dec, err = avro.NewDecoder(framed, p.names)
	default:
		err = fmt.Errorf("unsupported format kind %s", p.opts.Format.Kind)
	}
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return dec, closeFn, nil
}

// terminal maps the ledger's verdict to the file's final state.
func (p *Pipeline) terminal(led *ledger.Ledger) State {
	if led.Decision() == ledger.Abort {
		return Aborted
	}
	return Succeeded
}

// abortFor returns the load-ending error for r, if any. Under ABORT both a
// rejection and a collaborator failure end the load; cancellation caused by
// a sibling does not produce a second abort.
func (p *Pipeline) abortFor(r LoadReport, led *ledger.Ledger) error {
	if p.opts.Policy.OnError != format.Abort || r.State != Aborted {
		return nil
	}
	if led.Decision() == ledger.Abort {
		return &AbortError{File: r.Path, Line: r.FirstErrorLine, Message: r.FirstErrorMessage}
	}
	if r.Err != nil && !errors.Is(r.Err, context.Canceled) && !errors.Is(r.Err, context.DeadlineExceeded) {
		return &AbortError{File: r.Path, Message: r.Err.Error()}
	}
	return nil
}

func (p *Pipeline) logFile(r LoadReport, led *ledger.Ledger, d time.Duration) {
	if r.Err != nil {
		log.Printf("pipeline: load=%s file=%s state=%s rows_loaded=%d rows_error=%d err=%v",
			p.loadID, r.Path, r.State, r.RowsLoaded, r.RowsError, r.Err)
	} else if p.opts.Verbose || r.RowsError > 0 {
		log.Printf("pipeline: load=%s file=%s state=%s rows_loaded=%d rows_error=%d elapsed=%s",
			p.loadID, r.Path, r.State, r.RowsLoaded, r.RowsError, d.Truncate(time.Millisecond))
	}
	if msg, line, ok := r.FirstError(); ok {
		log.Printf("pipeline: load=%s file=%s first_error_line=%d first_error=%q", p.loadID, r.Path, line, msg)
		if sample := led.Sample(); len(sample) > 1 {
			log.Printf("pipeline: load=%s file=%s rejections=%d sample=[%s]",
				p.loadID, r.Path, r.RowsError, strings.Join(sample, "; "))
		}
	}
	if led.Decision() == ledger.StopLimit {
		log.Printf("pipeline: load=%s file=%s stopped=error_limit limit=%d", p.loadID, r.Path, p.opts.Policy.ErrorLimit)
	}
}

// record stores fully loaded files in the history.
func (p *Pipeline) record(ctx context.Context, files []datasource.FileInfo, reports []LoadReport) {
	if p.history == nil {
		return
	}
	byPath := make(map[string]datasource.FileInfo, len(files))
	for _, f := range files {
		byPath[f.Path] = f
	}
	for _, r := range reports {
		if r.State != Succeeded {
			continue
		}
		if err := p.history.Record(ctx, byPath[r.Path].Fingerprint(), r); err != nil {
			log.Printf("pipeline: load=%s file=%s history_err=%v", p.loadID, r.Path, err)
		}
	}
}

// purge removes files that loaded without rejections. Failures are logged
// and do not fail the load.
func (p *Pipeline) purge(ctx context.Context, reports []LoadReport) {
	rm, ok := p.stage.(datasource.Remover)
	if !ok {
		log.Printf("pipeline: load=%s purge=unsupported stage=%T", p.loadID, p.stage)
		return
	}
	for _, r := range reports {
		if r.State != Succeeded || r.RowsError > 0 {
			continue
		}
		if err := rm.Remove(ctx, r.Path); err != nil {
			log.Printf("pipeline: load=%s file=%s purge_err=%v", p.loadID, r.Path, err)
			continue
		}
		if p.opts.Verbose {
			log.Printf("pipeline: load=%s file=%s purged=true", p.loadID, r.Path)
		}
	}
}
