package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/internal/crypto"
	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	root := t.TempDir()
	cipher := crypto.NewCipher(crypto.NewKeychain(crypto.NewMemorySecretStore()))
	m, err := NewManager(root, cipher, nil)
	require.NoError(t, err)
	return m, root
}

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{name: "json object", content: `{"title":"Census"}`, want: types.FormFormatJSON},
		{name: "json array", content: `[1,2]`, want: types.FormFormatJSON},
		{name: "xml with leading whitespace", content: "\n  <h:html/>", want: types.FormFormatXML},
		{name: "plain text rejected", content: "title: Census", wantErr: true},
		{name: "empty rejected", content: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sniffFormat([]byte(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSaveFormWritesDefinitionAndMetadata(t *testing.T) {
	m, root := newTestManager(t)

	definition := []byte(`{"title":"Household Census"}`)
	err := m.SaveForm(types.FormMetadata{FormID: "census", Title: "Household Census", Version: "3"},
		definition, map[string][]byte{"logo.png": {0x89, 0x50}})
	require.NoError(t, err)

	// Definition written under the detected format name.
	written, err := os.ReadFile(filepath.Join(root, "forms", "census", "definition.json"))
	require.NoError(t, err)
	assert.Equal(t, definition, written)

	meta, err := m.FormMeta("census")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, crypto.Hash(definition), meta.Hash)
	assert.Equal(t, 0, meta.InstanceCount)
	assert.True(t, meta.HasMedia)
	assert.Equal(t, 1, meta.MediaCount)

	// XML definitions land in definition.xml.
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "visit"}, []byte(`<h:html/>`), nil))
	_, err = os.Stat(filepath.Join(root, "forms", "visit", "definition.xml"))
	assert.NoError(t, err)
}

// Re-downloading a form must not lose track of instances already saved
// against it.
func TestSaveFormPreservesInstanceCount(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "census", Version: "1"}, []byte(`{}`), nil))
	require.NoError(t, m.SaveInstance("census", "i1", []byte(`a`), nil, types.InstanceMetadata{}))
	require.NoError(t, m.SaveInstance("census", "i2", []byte(`b`), nil, types.InstanceMetadata{}))

	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "census", Version: "2"}, []byte(`{"v":2}`), nil))

	meta, err := m.FormMeta("census")
	require.NoError(t, err)
	assert.Equal(t, 2, meta.InstanceCount)
	assert.Equal(t, "2", meta.Version)
}

func TestFormDefinitionAbsentIsNil(t *testing.T) {
	m, _ := newTestManager(t)

	data, err := m.FormDefinition("nope")
	require.NoError(t, err)
	assert.Nil(t, data)

	meta, err := m.FormMeta("nope")
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestFormMetaCacheRepopulatesFromTree(t *testing.T) {
	m, root := newTestManager(t)
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "census"}, []byte(`{}`), nil))

	// A fresh manager over the same tree starts with an empty cache and
	// falls back to the side-file.
	cipher := crypto.NewCipher(crypto.NewKeychain(crypto.NewMemorySecretStore()))
	m2, err := NewManager(root, cipher, nil)
	require.NoError(t, err)

	meta, err := m2.FormMeta("census")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "census", meta.FormID)
}

func TestListFormsUsesCacheUnlessForced(t *testing.T) {
	m, root := newTestManager(t)
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "a"}, []byte(`{}`), nil))
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "b"}, []byte(`{}`), nil))

	list, err := m.ListForms(false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].FormID)

	// Drop a form behind the cache's back: the cached list still serves it,
	// a forced scan re-derives the truth from the tree.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "forms", "b")))

	list, err = m.ListForms(false)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = m.ListForms(true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].FormID)
}

func TestListFormsSkipsPartialDirectories(t *testing.T) {
	m, root := newTestManager(t)
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "good"}, []byte(`{}`), nil))

	// A half-written directory with no metadata must not fail the scan.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "forms", "halfwritten"), 0755))

	list, err := m.ListForms(true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].FormID)
}

// A well-formed form directory outside forms/ is migrated into place by a
// forced scan, appearing exactly once in the result and on disk.
func TestScanMigratesLegacyFormDirectory(t *testing.T) {
	m, root := newTestManager(t)

	legacyDir := filepath.Join(root, "oldform")
	require.NoError(t, os.MkdirAll(legacyDir, 0755))
	raw, err := json.Marshal(types.FormMetadata{FormID: "legacy", Title: "Old Layout"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "metadata.json"), raw, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "definition.json"), []byte(`{}`), 0644))

	list, err := m.ListForms(true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "legacy", list[0].FormID)

	// Moved, not copied: canonical location exists, legacy is gone.
	_, err = os.Stat(filepath.Join(root, "forms", "legacy", "metadata.json"))
	assert.NoError(t, err)
	_, err = os.Stat(legacyDir)
	assert.True(t, os.IsNotExist(err))

	// A second scan stays stable.
	list, err = m.ListForms(true)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

// Migration must not overwrite an existing canonical entry.
func TestScanSkipsLegacyWhenCanonicalExists(t *testing.T) {
	m, root := newTestManager(t)
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "census", Title: "Canonical"}, []byte(`{}`), nil))

	legacyDir := filepath.Join(root, "census-old")
	require.NoError(t, os.MkdirAll(legacyDir, 0755))
	raw, err := json.Marshal(types.FormMetadata{FormID: "census", Title: "Legacy"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "metadata.json"), raw, 0644))

	list, err := m.ListForms(true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Canonical", list[0].Title)

	// Legacy dir left alone for manual inspection.
	_, err = os.Stat(legacyDir)
	assert.NoError(t, err)
}

// After DeleteForm, neither the definition nor any instance data survives.
func TestDeleteFormRemovesInstancesToo(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.SaveForm(types.FormMetadata{FormID: "census"}, []byte(`{}`), nil))
	require.NoError(t, m.SaveInstance("census", "i1", []byte(`{"a":1}`), nil, types.InstanceMetadata{}))

	require.NoError(t, m.DeleteForm("census"))

	def, err := m.FormDefinition("census")
	require.NoError(t, err)
	assert.Nil(t, def)

	instances, err := m.ListInstances("census")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
