// Package publish writes published forecast documents for downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

const (
	// JSONFile is the raw document for direct API access.
	JSONFile = "forecast.json"
	// ScriptFile wraps the document in a JS constant for the map website.
	ScriptFile = "data.js"
)

// FilePublisher writes each document to a directory, replacing the previous one.
type FilePublisher struct {
	dir    string
	logger zerolog.Logger
}

// NewFilePublisher creates a publisher writing into dir.
func NewFilePublisher(dir string, logger zerolog.Logger) *FilePublisher {
	return &FilePublisher{
		dir:    dir,
		logger: logger.With().Str("component", "publish.file").Logger(),
	}
}

// Publish writes forecast.json and data.js. Files are replaced atomically.
func (p *FilePublisher) Publish(ctx context.Context, doc forecast.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", p.dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := writeAtomic(filepath.Join(p.dir, JSONFile), data); err != nil {
		return err
	}

	script := make([]byte, 0, len(data)+32)
	script = append(script, "const aqiData = "...)
	script = append(script, data...)
	script = append(script, ";\n"...)
	if err := writeAtomic(filepath.Join(p.dir, ScriptFile), script); err != nil {
		return err
	}

	p.logger.Info().Str("run_id", doc.RunID).Str("dir", p.dir).Int("stations", len(doc.Forecasts)).Msg("published forecast")
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

var _ forecast.Publisher = (*FilePublisher)(nil)
