package log

import (
	"fmt"
	"io"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// NewGraylogWriter returns a writer that ships log lines to a GELF UDP input.
func NewGraylogWriter(addr string) (*gelf.Writer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create graylog writer for %s: %w", addr, err)
	}
	return w, nil
}

// MultiWriter fans log lines out to every writer. Nil writers are skipped.
func MultiWriter(writers ...io.Writer) io.Writer {
	nonNil := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			nonNil = append(nonNil, w)
		}
	}
	if len(nonNil) == 1 {
		return nonNil[0]
	}
	return zerolog.MultiLevelWriter(nonNil...)
}
