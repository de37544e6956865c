package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitWriter commits on Close unless its context was cancelled first
type commitWriter struct {
	ctx       context.Context
	buf       bytes.Buffer
	committed bool
}

func (w *commitWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *commitWriter) Close() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.committed = true
	return nil
}

func TestWriteObjectCommitsCompleteBody(t *testing.T) {
	var w *commitWriter
	err := writeObject(context.Background(), func(ctx context.Context) io.WriteCloser {
		w = &commitWriter{ctx: ctx}
		return w
	}, strings.NewReader("payload"), "media/a.txt")

	require.NoError(t, err)
	assert.True(t, w.committed)
	assert.Equal(t, "payload", w.buf.String())
}

func TestWriteObjectReadFailureDoesNotCommit(t *testing.T) {
	readErr := errors.New("disk vanished")
	body := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(readErr))

	var w *commitWriter
	err := writeObject(context.Background(), func(ctx context.Context) io.WriteCloser {
		w = &commitWriter{ctx: ctx}
		return w
	}, body, "media/a.txt")

	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)
	assert.Contains(t, err.Error(), "media/a.txt")
	assert.False(t, w.committed, "partial object must not be committed")
	assert.Equal(t, "partial", w.buf.String())
}
