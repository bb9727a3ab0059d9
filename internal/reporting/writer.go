package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write renders r into dir as run_<id>.md, swaps_<id>.csv and
// contracts_<id>.csv, creating dir if needed. It returns the written paths.
func Write(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{"run_" + r.Run.RunID + ".md", RenderMarkdown(r)},
		{"swaps_" + r.Run.RunID + ".csv", RenderSwapsCSV(r.SwapRows)},
		{"contracts_" + r.Run.RunID + ".csv", RenderContractsCSV(r.Contracts)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
