package gameconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/xdooria-roster/pkg/logger"
)

type row struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Star int    `json:"star"`
}

func TestFileJSONLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "characters.json"),
		[]byte(`[{"id":1205,"name":"Changli","star":"5"},{"id":1102,"name":"Sanhua","star":4}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{`), 0o644))

	core, logs := observer.New(zap.WarnLevel)
	load := NewFileJSONLoader(dir, logger.NewWithCore(core, nil), "manifest")

	rows, err := load("Characters")
	require.NoError(t, err)
	decoded, err := DecodeRows[row](rows)
	require.NoError(t, err)
	assert.Equal(t, []row{{1205, "Changli", 5}, {1102, "Sanhua", 4}}, decoded)

	rows, err = load("weapons")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 1, logs.FilterMessage("optional table file not found, initializing as empty").Len())

	rows, err = load("manifest")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = load("broken")
	assert.Error(t, err)
}

func TestDecodeRowsError(t *testing.T) {
	_, err := DecodeRows[row]([]map[string]interface{}{{"id": "not-a-number"}})
	assert.Error(t, err)
}
