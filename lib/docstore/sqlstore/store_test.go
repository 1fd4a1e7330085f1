package sqlstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dVer/lib/docstore"
	dstesting "github.com/ValentinKolb/dVer/lib/docstore/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test(t *testing.T) {
	dir := t.TempDir()
	var n atomic.Int32
	dstesting.RunDocStoreTests(t, "SQLiteStore", func() (docstore.IDocStore, error) {
		return Open(filepath.Join(dir, fmt.Sprintf("store-%d.sqlite", n.Add(1))))
	})
}

func TestReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dver.sqlite")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, "pages", docstore.Document{"_id": "p1", "_version": 1}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "pages", "p1")
	assert.NoError(t, err)
}

func TestScanPrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "dver.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	for _, id := range []string{"a_b", "axb", "a%c"} {
		require.NoError(t, s.Insert(ctx, "c", docstore.Document{"_id": id}))
	}
	docs, err := s.Scan(ctx, "c", "a_")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a_b", docs[0]["_id"])
}

func TestExtractUp(t *testing.T) {
	assert.Equal(t, "\nCREATE x;\n", extractUp("-- +migrate Up\nCREATE x;\n-- +migrate Down\nDROP x;"))
	assert.Equal(t, "CREATE y;", extractUp("CREATE y;"))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}
