package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDedupsAndSorts(t *testing.T) {
	inv := New("b.jar", "a.jar", "b.jar")

	assert.Equal(t, []string{"a.jar", "b.jar"}, inv.Names())
	assert.Equal(t, 2, inv.Len())
	assert.True(t, inv.Has("a.jar"))
	assert.False(t, inv.Has("c.jar"))
}

func TestNamesReturnsCopy(t *testing.T) {
	inv := New("a.jar")
	names := inv.Names()
	names[0] = "changed"

	assert.Equal(t, []string{"a.jar"}, inv.Names())
}

func TestScanCreatesArchiveDir(t *testing.T) {
	fsys := memfs.New()

	inv, err := Scan(fsys)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.Len())

	fi, err := fsys.Stat(ArchiveDir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestScanRegularFilesOnly(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "b.jar", []byte("b"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "a.jar", []byte("a"), 0o644))
	require.NoError(t, util.WriteFile(fsys, "config/options.txt", []byte("x"), 0o644))
	require.NoError(t, util.WriteFile(fsys, ArchiveDir+"/old.jar", []byte("o"), 0o644))
	require.NoError(t, fsys.Symlink("a.jar", "link.jar"))

	inv, err := Scan(fsys)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.jar", "b.jar"}, inv.Names())
	assert.False(t, inv.Has("config"))
	assert.False(t, inv.Has(ArchiveDir))
	assert.False(t, inv.Has("link.jar"))
}

func TestScanOnDisk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.jar"), []byte("m"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "mod.jar"), filepath.Join(dir, "link.jar")))

	inv, err := Scan(osfs.New(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{"mod.jar"}, inv.Names())

	_, err = os.Stat(filepath.Join(dir, ArchiveDir))
	assert.NoError(t, err)
}

func TestScanError(t *testing.T) {
	dir := t.TempDir()
	notADir := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))

	_, err := Scan(osfs.New(notADir))
	require.Error(t, err)

	var scanErr *ScanError
	require.True(t, errors.As(err, &scanErr))
	assert.Equal(t, notADir, scanErr.Dir)
	assert.NotNil(t, errors.Unwrap(err))
}
