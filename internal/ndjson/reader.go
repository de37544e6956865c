package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"dbrestore/internal/compression"
)

const maxLineSize = 64 * 1024 * 1024

// Rows iterates the row objects of one data file. Blank lines are ignored;
// lines that are not a single JSON object are counted and dropped.
type Rows struct {
	file    afero.File
	dec     *compression.Decompressor
	scanner *bufio.Scanner

	row     map[string]any
	line    int
	invalid int
	err     error

	onInvalid func(line int, err error)
}

// OpenRows opens path, decompressing .gz and .zst files
func OpenRows(fsys afero.Fs, path string) (*Rows, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := compression.NewDecompressor(f, path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 1024*1024), maxLineSize)
	return &Rows{file: f, dec: dec, scanner: scanner}, nil
}

// Next advances to the next valid row
func (r *Rows) Next() bool {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		row, err := decodeRow(line)
		if err != nil {
			r.invalid++
			if r.onInvalid != nil {
				r.onInvalid(r.line, err)
			}
			continue
		}
		r.row = row
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return false
}

// Row returns the current row
func (r *Rows) Row() map[string]any { return r.row }

// Invalid returns the number of dropped lines so far
func (r *Rows) Invalid() int { return r.invalid }

// Err returns the read error that stopped iteration, if any
func (r *Rows) Err() error { return r.err }

// Close releases the decoder and the file
func (r *Rows) Close() error {
	decErr := r.dec.Close()
	if err := r.file.Close(); err != nil {
		return err
	}
	return decErr
}

func decodeRow(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	row, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a JSON object, got %T", v)
	}
	return row, nil
}
