package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fentz26/recsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()

	w := NewPDRWriter(s)
	entry, err := w.Record(context.Background(), "job.dispatch", []byte(`{"a":1}`), "success", "job-1", "sent")
	require.NoError(t, err)
	assert.Equal(t, HashInputs([]byte(`{"a":1}`)), entry.InputsHash)

	entries, err := s.ListPDRs(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job.dispatch", entries[0].Action)
}

func TestHashInputsIsStable(t *testing.T) {
	a := HashInputs(map[string]int{"x": 1, "y": 2})
	b := HashInputs(map[string]int{"y": 2, "x": 1})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestNilWriter(t *testing.T) {
	var w *PDRWriter
	entry, err := w.Record(context.Background(), "x", nil, "success", "", "")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}
