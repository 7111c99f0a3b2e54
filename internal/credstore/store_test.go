package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestNew_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "sessions")
	store, err := New(root)
	require.NoError(t, err)
	assert.Equal(t, root, store.Root())
	assert.DirExists(t, root)
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	creds := json.RawMessage(`{"identity":"5551234","keys":{"noise":"abc"}}`)

	require.NoError(t, store.Save("main", creds))

	loaded, err := store.Load("main")
	require.NoError(t, err)
	assert.JSONEq(t, string(creds), string(loaded))
}

func TestLoad_MissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	loaded, err := store.Load("unknown")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSave_RejectsMalformedJSON(t *testing.T) {
	store := newTestStore(t)

	err := store.Save("main", json.RawMessage(`{"identity":`))
	assert.Error(t, err)
	assert.False(t, store.Exists("main"))
}

func TestSave_LeavesNoTempFileBehind(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("main", json.RawMessage(`{"keys":{}}`)))

	entries, err := os.ReadDir(filepath.Join(store.Root(), "main"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "creds.json", entries[0].Name())
}

func TestValidateID_RejectsEscapes(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"", "..", "a/../b", "a/b", `a\b`, "a\x00b"} {
		assert.Error(t, store.Save(id, json.RawMessage(`{}`)), "id %q must be rejected", id)
		_, err := store.Load(id)
		assert.Error(t, err, "id %q must be rejected", id)
	}
}

func TestSetIdentity_PreservesKeys(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("main", json.RawMessage(`{"keys":{"noise":"abc"}}`)))

	require.NoError(t, store.SetIdentity("main", "5551234"))

	raw, err := store.Load("main")
	require.NoError(t, err)
	var creds Credentials
	require.NoError(t, json.Unmarshal(raw, &creds))
	assert.Equal(t, "5551234", creds.Identity)
	assert.JSONEq(t, `{"noise":"abc"}`, string(creds.Keys))
}

func TestSetIdentity_CreatesFileWhenAbsent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetIdentity("fresh", "5551234"))
	assert.True(t, store.HasValid("fresh"))
}

func TestHasValid_RequiresIdentity(t *testing.T) {
	store := newTestStore(t)

	assert.False(t, store.HasValid("absent"))

	require.NoError(t, store.Save("keysonly", json.RawMessage(`{"keys":{"noise":"abc"}}`)))
	assert.True(t, store.Exists("keysonly"))
	assert.False(t, store.HasValid("keysonly"))

	require.NoError(t, store.Save("paired", json.RawMessage(`{"identity":"5551234"}`)))
	assert.True(t, store.HasValid("paired"))
}

func TestHasValid_MalformedFileIsInvalid(t *testing.T) {
	store := newTestStore(t)
	dir := filepath.Join(store.Root(), "broken")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "creds.json"), []byte("not json"), 0600))

	assert.True(t, store.Exists("broken"))
	assert.False(t, store.HasValid("broken"))
}

func TestWipe_KeepsDirectory(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("main", json.RawMessage(`{"identity":"5551234"}`)))

	require.NoError(t, store.Wipe("main"))

	assert.False(t, store.Exists("main"))
	assert.DirExists(t, filepath.Join(store.Root(), "main"))

	// Wiping again is harmless.
	require.NoError(t, store.Wipe("main"))
}

func TestDelete_RemovesDirectory(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("main", json.RawMessage(`{"identity":"5551234"}`)))

	require.NoError(t, store.Delete("main"))

	assert.NoDirExists(t, filepath.Join(store.Root(), "main"))

	// Deleting an unknown id is harmless.
	require.NoError(t, store.Delete("main"))
}

func TestList_OnlySessionsWithCredentials(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save("alpha", json.RawMessage(`{"identity":"1"}`)))
	require.NoError(t, store.Save("bravo", json.RawMessage(`{"keys":{}}`)))

	// A bare directory without creds.json is skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(store.Root(), "empty"), 0700))
	// Stray files at the root are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "notes.txt"), []byte("x"), 0600))

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "bravo"}, ids)
}
