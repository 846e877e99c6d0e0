package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestWriteJSONLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	require.NoError(t, WriteJSON(path, doc{Name: "a", Value: 1.5}))

	assert.True(t, Exists(path))
	assert.False(t, Exists(path+".tmp"))

	var got doc
	found, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc{Name: "a", Value: 1.5}, got)
}

func TestReadJSONMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()

	var got doc
	found, err := ReadJSON(filepath.Join(dir, "missing.json"), &got)
	require.NoError(t, err)
	assert.False(t, found)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	found, err = ReadJSON(bad, &got)
	assert.Error(t, err)
	assert.True(t, found)
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	assert.NoError(t, Remove(filepath.Join(t.TempDir(), "nope")))
}

func TestAppendLogRoundTrip(t *testing.T) {
	l, err := NewAppendLog(filepath.Join(t.TempDir(), "log", "history.jsonl"))
	require.NoError(t, err)

	require.NoError(t, l.Append(doc{Name: "a", Value: 1}, doc{Name: "b", Value: 2}))
	require.NoError(t, l.Append(doc{Name: "c", Value: 3}))

	var names []string
	require.NoError(t, l.Scan(func(line []byte) error {
		var d doc
		if err := json.Unmarshal(line, &d); err != nil {
			return err
		}
		names = append(names, d.Name)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, names)
}
