package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommandWiring(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "discover")
	assert.Contains(t, names, "download")
	assert.Contains(t, names, "validate")

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("site"))
}

func TestRootCommandInstancesAreIndependent(t *testing.T) {
	first := NewRootCommand()
	second := NewRootCommand()
	require.NoError(t, first.PersistentFlags().Set("site", "https://a.corp"))

	got, err := second.PersistentFlags().GetString("site")
	require.NoError(t, err)
	assert.Empty(t, got, "flag state must not leak between command trees")
}

func TestReadURLList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := `# document links to check
https://sp.corp/sites/a/doc1.pdf

https://sp.corp/sites/b/doc2.docx
  https://sp.corp/sites/c/doc3.pdf
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	urls, err := readURLList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://sp.corp/sites/a/doc1.pdf",
		"https://sp.corp/sites/b/doc2.docx",
		"https://sp.corp/sites/c/doc3.pdf",
	}, urls)
}

func TestReadURLListMissingFile(t *testing.T) {
	_, err := readURLList(filepath.Join(t.TempDir(), "absent.txt"))
	assert.Error(t, err)
}

func TestValidateCommandRequiresURLs(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"validate"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no URLs given")
}
