// Package export writes stored events to files, one per detector kind.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"SignalScanner/internal/store"
)

// File is one written export.
type File struct {
	Kind string
	Path string
	Rows int
}

// Exporter reads events from a store and writes them in one format.
type Exporter struct {
	reader store.Reader
	format string
	dir    string
	log    zerolog.Logger
}

// NewExporter validates the format and returns an exporter writing to dir.
func NewExporter(reader store.Reader, format, dir string, log zerolog.Logger) (*Exporter, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return &Exporter{
		reader: reader,
		format: f,
		dir:    dir,
		log:    log.With().Str("component", "export").Logger(),
	}, nil
}

// Export writes fractals, narrow ranges, crosses and divergences matching q.
func (e *Exporter) Export(ctx context.Context, q store.Query) ([]File, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	var files []File
	write := func(kind string, n int, fn func(path string) error) error {
		path := filepath.Join(e.dir, kind+"."+e.format)
		if err := fn(path); err != nil {
			return fmt.Errorf("write %s: %w", kind, err)
		}
		files = append(files, File{Kind: kind, Path: path, Rows: n})
		e.log.Info().Str("kind", kind).Int("rows", n).Str("path", path).Msg("exported")
		return nil
	}

	fractals, err := e.reader.Fractals(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read fractals: %w", err)
	}
	if err := write("fractals", len(fractals), func(p string) error { return save(e.format, p, FractalRows(fractals)) }); err != nil {
		return nil, err
	}

	nrs, err := e.reader.NarrowRanges(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read narrow ranges: %w", err)
	}
	if err := write("narrow_ranges", len(nrs), func(p string) error { return save(e.format, p, NarrowRangeRows(nrs)) }); err != nil {
		return nil, err
	}

	crosses, err := e.reader.Crosses(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read crosses: %w", err)
	}
	if err := write("crosses", len(crosses), func(p string) error { return save(e.format, p, CrossRows(crosses)) }); err != nil {
		return nil, err
	}

	divs, err := e.reader.Divergences(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("read divergences: %w", err)
	}
	if err := write("divergences", len(divs), func(p string) error { return save(e.format, p, DivergenceRows(divs)) }); err != nil {
		return nil, err
	}
	return files, nil
}
