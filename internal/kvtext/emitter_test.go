package kvtext_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/keyval/internal/kvstore"
	"github.com/calvinalkan/keyval/internal/kvtext"
)

func Test_Save_Produces_The_Canonical_Sorted_Output(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("seagram's"), []byte("7")))
	require.NoError(t, store.Set([]byte("jack"), []byte("daniel's")))

	var buf bytes.Buffer
	require.NoError(t, kvtext.Save(store, &buf, kvtext.SaveOptions{}))

	assert.Equal(t, "`jack` = `daniel's`\n`seagram's` = `7`\n", buf.String())
}

func Test_Save_Twice_Is_Idempotent(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("a"), []byte("1")))
	require.NoError(t, store.Set([]byte("b"), []byte("2")))

	var first, second bytes.Buffer
	require.NoError(t, kvtext.Save(store, &first, kvtext.SaveOptions{}))
	require.NoError(t, kvtext.Save(store, &second, kvtext.SaveOptions{}))

	assert.Equal(t, first.String(), second.String())
}

func Test_Save_With_Alignment_Pads_Key_Columns_To_A_Common_Width(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("a"), []byte("1")))
	require.NoError(t, store.Set([]byte("longer"), []byte("2")))

	var buf bytes.Buffer
	require.NoError(t, kvtext.Save(store, &buf, kvtext.SaveOptions{Align: true}))

	assert.Equal(t, "`a`      = `1`\n`longer` = `2`\n", buf.String())
}

func Test_Save_With_Interpolation_Expands_Values_Before_Escaping(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("k1"), []byte("2")))
	require.NoError(t, store.Set([]byte("k2"), []byte("asdf${k1}zxcv")))

	var buf bytes.Buffer
	require.NoError(t, kvtext.Save(store, &buf, kvtext.SaveOptions{Interpolate: true}))

	assert.Contains(t, buf.String(), "`k2` = `asdf2zxcv`\n")
}

func Test_SaveFile_Then_LoadFile_Round_Trips_The_Same_Entries(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("a::1"), []byte("one")))
	require.NoError(t, store.Set([]byte("a::2"), []byte("two")))

	path := filepath.Join(t.TempDir(), "store.kv")
	require.NoError(t, kvtext.SaveFile(store, path, kvtext.SaveOptions{}))

	loaded := kvstore.New()
	result, err := kvtext.LoadFile(loaded, path, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	if diff := cmp.Diff(store.GetAllKeys(), loaded.GetAllKeys()); diff != "" {
		t.Errorf("key set changed across a save/load round trip (-before +after):\n%s", diff)
	}

	v1, _ := loaded.Get([]byte("a::1"))
	assert.Equal(t, "one", string(v1))
}

func Test_LoadFile_Reports_OpenFailure_For_A_Missing_File(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	_, err := kvtext.LoadFile(store, filepath.Join(t.TempDir(), "does-not-exist.kv"), nil)
	require.ErrorIs(t, err, kvtext.ErrOpenFailure)
}
