// Package reporting renders comparison reports into documents and writes them
// out.
package reporting

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// Supported formats.
const (
	FormatJSON  = "json"
	FormatSARIF = "sarif"
)

// New returns the renderer for format.
func New(format, toolVersion string, logger *zap.Logger) (schemas.ReportRenderer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	switch format {
	case FormatJSON, "":
		return NewJSONRenderer(), nil
	case FormatSARIF:
		return NewSARIFRenderer(toolVersion, logger), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// OpenOutput returns a writer for outputPath. An empty path or "stdout"
// writes to standard output, and closing it is a no-op.
func OpenOutput(outputPath string) (io.WriteCloser, error) {
	if outputPath == "" || outputPath == "stdout" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return f, nil
}

// WriteDocument writes a rendered document to outputPath.
func WriteDocument(outputPath string, doc []byte) error {
	w, err := OpenOutput(outputPath)
	if err != nil {
		return err
	}
	_, writeErr := w.Write(doc)
	closeErr := w.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	return nil
}
