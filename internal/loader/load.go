package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"iam-platform/internal/models"
	"iam-platform/pkg/logging"
)

// ErrNoSources is returned when no input file could be loaded
var ErrNoSources = errors.New("no input files could be loaded")

// FileReport summarises one file of a load
type FileReport struct {
	Name       string   `json:"name"`
	Rows       int      `json:"rows"`
	FailedRows int      `json:"failed_rows"`
	RowErrors  []string `json:"row_errors,omitempty"`
	Err        string   `json:"error,omitempty"`
}

// Result is the concatenation of every successfully parsed file
type Result struct {
	Observations []models.Observation
	Files        []FileReport
	Duration     time.Duration
}

// Loaded counts the files that contributed rows
func (r *Result) Loaded() int {
	n := 0
	for _, f := range r.Files {
		if f.Err == "" {
			n++
		}
	}
	return n
}

// Skipped counts the files that failed
func (r *Result) Skipped() int {
	return len(r.Files) - r.Loaded()
}

// Options tune LoadAll
type Options struct {
	// Workers bounds concurrent file parsing; values below 1 mean 1
	Workers int
	Logger  *logging.StructuredLogger
}

// LoadAll parses every file of src. Files are parsed concurrently but the
// observations are concatenated in file-name order, so the result does not
// depend on scheduling. A file that cannot be opened or parsed is logged and
// skipped; ErrNoSources is returned when nothing could be loaded.
func LoadAll(ctx context.Context, src Source, opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	names, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "[LOAD_FILES] Found input files", logging.Fields{
		"source":     src.String(),
		"file_count": len(names),
		"workers":    workers,
	})
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: %w", src, ErrNoSources)
	}

	parsed := make([]*ParsedFile, len(names))
	failures := make([]error, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pf, err := loadOne(gctx, src, name)
			if err != nil {
				failures[i] = err
				return nil
			}
			parsed[i] = pf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Files: make([]FileReport, len(names))}
	for i, name := range names {
		report := FileReport{Name: name}
		if failures[i] != nil {
			report.Err = failures[i].Error()
			logger.Warn(ctx, "[LOAD_SKIP] Skipping unreadable file", logging.Fields{
				"file":  name,
				"error": report.Err,
			})
			res.Files[i] = report
			continue
		}
		pf := parsed[i]
		report.Rows = len(pf.Observations)
		report.FailedRows = pf.FailedRows
		report.RowErrors = pf.RowErrors
		if pf.FailedRows > 0 {
			logger.Warn(ctx, "[LOAD_ROWS] Skipped unparsable rows", logging.Fields{
				"file":        name,
				"failed_rows": pf.FailedRows,
			})
		}
		res.Observations = append(res.Observations, pf.Observations...)
		res.Files[i] = report
	}
	res.Duration = time.Since(start)

	if res.Loaded() == 0 {
		return res, fmt.Errorf("%s: %w", src, ErrNoSources)
	}

	logger.Info(ctx, "[LOAD_COMPLETE] Input files loaded", logging.Fields{
		"files_loaded":  res.Loaded(),
		"files_skipped": res.Skipped(),
		"rows":          len(res.Observations),
		"duration_ms":   res.Duration.Milliseconds(),
	})
	return res, nil
}

func loadOne(ctx context.Context, src Source, name string) (*ParsedFile, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ParseFile(name, rc)
}
