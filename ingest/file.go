package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yairfalse/reitti/normalizer"
	"github.com/yairfalse/reitti/orchestrator"
)

// ProcessFile runs one local file through the pipeline. The format
// comes from the file extension; the batch ID is the file name.
func ProcessFile(ctx context.Context, proc Processor, path string) (*orchestrator.BatchResult, error) {
	format, ok := normalizer.FormatForPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty: %s", path)
	}

	return proc.ProcessBatch(ctx, data, format, filepath.Base(path)), nil
}
