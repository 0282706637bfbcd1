package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	v1 "github.com/cogconvo/captioner/internal/storage/memory/export/v1"
)

// exportJSON writes the session data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := v1.Build(&v1.SessionData{
		Session:   b.session,
		Captions:  b.captions,
		Focus:     b.focus,
		Targets:   b.targets,
		Positions: b.positions,
	})

	outputPath := filepath.Join(b.cfg.OutputDir, b.fileName())

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

// fileName is session_<rendering method>_<start>_<short id>.json(.gz)
func (b *Backend) fileName() string {
	id := b.session.UUID
	if len(id) > 8 {
		id = id[:8]
	}
	name := fmt.Sprintf("session_%s_%s_%s.json",
		b.session.RenderingMethod, b.session.StartTime.Format("20060102_150405"), id)
	if b.cfg.CompressOutput {
		name += ".gz"
	}
	return name
}

func writeJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(data)
}

func writeGzipJSON(path string, data v1.Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	if err := json.NewEncoder(gzWriter).Encode(data); err != nil {
		_ = gzWriter.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return gzWriter.Close()
}
