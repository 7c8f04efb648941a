package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	w, err := New(dir)
	require.NoError(t, err)

	path, err := w.Write("tx-rn", []byte("# Texas"), ".md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tx-rn.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Texas", string(data))
}

func TestFilename(t *testing.T) {
	tests := []struct {
		slug string
		want string
	}{
		{"tx-rn", "tx-rn"},
		{"ca_teacher.v2", "ca_teacher.v2"},
		{"../etc/passwd", "_etc_passwd"},
		{"a b", "a_b"},
		{"..", "article"},
		{"", "article"},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			assert.Equal(t, tt.want, Filename(tt.slug))
		})
	}
}
