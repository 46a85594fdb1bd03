package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"ingest/internal/catalog"
	"ingest/internal/config"
	"ingest/internal/datasource"
	"ingest/internal/format"
	"ingest/internal/pipeline"
	"ingest/internal/schema"
	"ingest/internal/storage"
)

// loadPlan is a load file resolved into the values the pipeline runs on.
type loadPlan struct {
	path   string
	cfg    config.Load
	format format.FileFormatOptions
	policy format.LoadPolicy
	cols   []schema.ColumnSpec

	stage datasource.Stage
	files []datasource.FileInfo
}

// resolve reads and lints the load file, then builds the format options,
// the load policy and the target columns. Lint findings go to errw.
func resolve(path string, errw io.Writer) (*loadPlan, error) {
	cfg, err := config.ReadFile(path)
	if err != nil {
		return nil, err
	}

	issues := config.ValidateLoad(cfg)
	for _, iss := range issues {
		fmt.Fprintf(errw, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return nil, fmt.Errorf("configuration is invalid: %s", path)
	}

	lp := &loadPlan{path: path, cfg: cfg}
	if lp.format, err = format.Resolve(cfg.FileFormat); err != nil {
		return nil, fmt.Errorf("file_format: %w", err)
	}
	if lp.policy, err = format.ResolvePolicy(cfg.Copy); err != nil {
		return nil, fmt.Errorf("copy: %w", err)
	}
	cat, err := catalog.NewStatic(cfg.Table)
	if err != nil {
		return nil, err
	}
	if lp.cols, err = cat.Resolve(context.Background(), cfg.Table.Name); err != nil {
		return nil, err
	}
	return lp, nil
}

// selectFiles opens the stage, lists it and applies the file selection.
func (lp *loadPlan) selectFiles(ctx context.Context) error {
	st, err := datasource.Open(ctx, lp.cfg.Stage.URL, lp.cfg.Stage.Options)
	if err != nil {
		return err
	}
	listed, err := datasource.List(ctx, st, lp.cfg.Stage.URL)
	if err != nil {
		return err
	}
	files, missing, err := datasource.Select(listed, datasource.Selection{
		Files:    lp.cfg.Files,
		Pattern:  lp.cfg.Pattern,
		MaxFiles: lp.cfg.MaxFiles,
	})
	if err != nil {
		return err
	}
	for _, m := range missing {
		log.Printf("stage: file not found in %s: %s", lp.cfg.Stage.URL, m)
	}
	lp.stage, lp.files = st, files
	return nil
}

// runLoad executes a complete load and prints the per-file report to out.
// A load ended by the ABORT policy returns its *pipeline.AbortError after the
// report was printed. In validation mode (copy.validation_mode or dryRun) rows
// are decoded and checked but discarded, the target database is never opened
// and neither history nor purge is applied.
func runLoad(ctx context.Context, path string, verbose, dryRun bool, out, errw io.Writer) error {
	lp, err := resolve(path, errw)
	if err != nil {
		return err
	}
	if err := lp.selectFiles(ctx); err != nil {
		return err
	}
	rt := runtimeOptions(lp.cfg.Runtime)
	validating := dryRun || lp.cfg.Copy.ValidationMode

	var (
		w    pipeline.Writer = storage.Discard{}
		hist pipeline.History
	)
	if validating {
		lp.policy.Purge = false
		log.Printf("load: job=%s validation mode, no rows are written", lp.cfg.Job)
	} else {
		repo, err := storage.New(ctx, storage.Config{
			Kind:  lp.cfg.Storage.Kind,
			DSN:   lp.cfg.Storage.DSN,
			Table: lp.cfg.Table.Name,
		})
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer repo.Close()

		if lp.cfg.Storage.AutoCreateTable {
			if err := storage.EnsureTable(ctx, lp.cfg.Storage.Kind, repo, lp.cfg.Table.Name, lp.cols); err != nil {
				return fmt.Errorf("storage: %w", err)
			}
		}
		if hist, err = openHistory(lp.cfg.Copy.HistoryFile); err != nil {
			return err
		}
		w = &storage.RepoWriter{
			Repo:      repo,
			Columns:   schema.Names(lp.cols),
			BatchSize: rt.batchSize,
			Job:       lp.cfg.Job,
		}
	}

	p := pipeline.New(lp.stage, w, pipeline.Options{
		Job:           lp.cfg.Job,
		Columns:       lp.cols,
		Format:        lp.format,
		Policy:        lp.policy,
		Concurrency:   rt.concurrency,
		ChannelBuffer: rt.channelBuffer,
		ErrorSample:   rt.errorSample,
		Verbose:       verbose,
	})
	if hist != nil {
		p = p.WithHistory(hist)
	}

	flush := setupMetrics(lp.cfg.Metrics, lp.cfg.Job, p.LoadID(), verbose)
	defer flush()

	start := time.Now()
	reports, runErr := p.Run(ctx, lp.files)
	printReports(out, reports)

	var ae *pipeline.AbortError
	switch {
	case errors.As(runErr, &ae):
		return runErr
	case runErr != nil:
		return fmt.Errorf("load: %w", runErr)
	}
	if verbose {
		log.Printf("load: job=%s files=%d completed in %s", lp.cfg.Job, len(lp.files), time.Since(start).Truncate(time.Millisecond))
	}
	return nil
}

func openHistory(path string) (pipeline.History, error) {
	if path == "" {
		return pipeline.NewMemoryHistory(), nil
	}
	return pipeline.OpenFileHistory(path)
}
