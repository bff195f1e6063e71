package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopObject(t *testing.T) {
	obj, err := topObject([]byte(`{"data":{"a":"b"}}`), "data")
	require.NoError(t, err)
	assert.Equal(t, "b", strField(obj, "a"))

	// JSON null is present-but-empty, not an error.
	obj, err = topObject([]byte(`{"data":null}`), "data")
	require.NoError(t, err)
	assert.Nil(t, obj)

	_, err = topObject([]byte(`{"other":{}}`), "data")
	assert.Error(t, err)

	_, err = topObject([]byte(`{"data":[1,2]}`), "data")
	assert.Error(t, err)

	_, err = topObject([]byte(`not json`), "data")
	assert.Error(t, err)
}

func TestTopArray(t *testing.T) {
	arr, err := topArray([]byte(`{"items":[1,2,3]}`), "items")
	require.NoError(t, err)
	assert.Len(t, arr, 3)

	// Empty and null arrays are valid empty results.
	arr, err = topArray([]byte(`{"items":[]}`), "items")
	require.NoError(t, err)
	assert.Empty(t, arr)

	arr, err = topArray([]byte(`{"items":null}`), "items")
	require.NoError(t, err)
	assert.Empty(t, arr)

	_, err = topArray([]byte(`{}`), "items")
	assert.Error(t, err)

	_, err = topArray([]byte(`{"items":{"a":1}}`), "items")
	assert.Error(t, err)
}
