package allowlist_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subsvc/internal/allowlist"
)

func TestValidateAcceptsFolderUnderAllowedPrefix(t *testing.T) {
	base := t.TempDir()
	movies := filepath.Join(base, "movies")
	require.NoError(t, os.MkdirAll(movies, 0o755))

	al := allowlist.New([]allowlist.Entry{{Path: base, Label: "media"}}, nil)

	resolved, err := al.Validate(movies)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(movies), resolved)
}

func TestValidateRejectsFolderOutsideAllowList(t *testing.T) {
	base := t.TempDir()
	other := t.TempDir()

	al := allowlist.New([]allowlist.Entry{{Path: base}}, nil)

	_, err := al.Validate(other)
	assert.Error(t, err)
}

func TestValidateRejectsNonExistentFolder(t *testing.T) {
	base := t.TempDir()
	al := allowlist.New([]allowlist.Entry{{Path: base}}, nil)

	_, err := al.Validate(filepath.Join(base, "does-not-exist"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, allowlist.ErrNotExist))
}

func TestValidateRejectsRelativePath(t *testing.T) {
	al := allowlist.New(nil, nil)
	_, err := al.Validate("relative/path")
	assert.Error(t, err)
}

func TestReloadReplacesEntries(t *testing.T) {
	base := t.TempDir()
	al := allowlist.New(nil, nil)

	_, err := al.Validate(base)
	assert.Error(t, err)

	al.Reload([]allowlist.Entry{{Path: base}})
	resolved, err := al.Validate(base)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(base), resolved)
}
