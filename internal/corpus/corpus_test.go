package corpus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadSkipsBlankLines(t *testing.T) {
	in := `{"topic": "t1", "report": "## A\nbody"}


{"topic": "t2", "report": "text", "extra": true}
`
	items, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "t1", items[0].Topic)
	assert.Equal(t, "## A\nbody", items[0].Report)
	assert.Equal(t, "t2", items[1].Topic)
}

func TestReadNamesBadLine(t *testing.T) {
	in := "{\"topic\": \"ok\", \"report\": \"r\"}\n\nnot json\n"
	_, err := Read(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestReadLongLine(t *testing.T) {
	report := strings.Repeat("x", 3<<20)
	items, err := Read(strings.NewReader(`{"topic": "big", "report": "` + report + `"}`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Len(t, items[0].Report, len(report))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"topic": "t", "report": "r"}`+"\n"), 0o644))

	items, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.ErrorContains(t, err, "open corpus")
}
