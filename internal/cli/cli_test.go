package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poimirror/poimirror/internal/config"
)

var testScopes = []config.Scope{
	{Name: "berlin", Filter: `["payment:bitcoin"](area:berlin)`},
	{Name: "hamburg", Filter: `["payment:bitcoin"](area:hamburg)`},
}

func TestResolveQueries_AllConfigured(t *testing.T) {
	queries, err := resolveQueries(testScopes, nil, "")
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "berlin", queries[0].Name)
	assert.Equal(t, "hamburg", queries[1].Name)
}

func TestResolveQueries_ByName(t *testing.T) {
	queries, err := resolveQueries(testScopes, []string{"hamburg"}, "")
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, testScopes[1].Filter, queries[0].Filter)
}

func TestResolveQueries_UnknownName(t *testing.T) {
	_, err := resolveQueries(testScopes, []string{"munich"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "munich")
	assert.Contains(t, err.Error(), "berlin, hamburg")
}

func TestResolveQueries_AdHocFilter(t *testing.T) {
	queries, err := resolveQueries(nil, nil, `["amenity"="cafe"]`)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "adhoc", queries[0].Name)

	_, err = resolveQueries(testScopes, []string{"berlin"}, `["amenity"]`)
	require.Error(t, err)
}

func TestResolveQueries_NothingToSync(t *testing.T) {
	_, err := resolveQueries(nil, nil, "")
	require.Error(t, err)
}

func TestParseTags(t *testing.T) {
	tags, err := parseTags([]string{"type=community", "continent=europe"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"type": "community", "continent": "europe"}, tags)

	tags, err = parseTags(nil)
	require.NoError(t, err)
	assert.Nil(t, tags)

	// Values may contain '='; keys may not be empty.
	tags, err = parseTags([]string{"note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "a=b", tags["note"])

	_, err = parseTags([]string{"bare"})
	require.Error(t, err)
	_, err = parseTags([]string{"=value"})
	require.Error(t, err)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad flag", nil)))
	assert.Equal(t, ExitFailure, GetExitCode(assert.AnError))
}
