package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAttributesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	yaml := `
- key: tax_clearance_status
  label: Tax clearance
  type: text
  api_name: tax_registry
  api_key: clearance_status
  required: true
- key: company_notes
  label: Notes
  type: text
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	attrs, err := readAttributesFile(path)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	assert.Equal(t, "tax_clearance_status", attrs[0].Key)
	assert.Equal(t, "tax_registry", attrs[0].APIName)
	assert.True(t, attrs[0].Required)
	assert.True(t, attrs[0].AutoFilled())
	assert.False(t, attrs[1].AutoFilled())
}

func TestReadAttributesFile_Missing(t *testing.T) {
	_, err := readAttributesFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestReadAttributesFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))
	_, err := readAttributesFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestReadAttributesFile_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attributes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- label: No key\n"), 0644))
	_, err := readAttributesFile(path)
	require.Error(t, err)
}
