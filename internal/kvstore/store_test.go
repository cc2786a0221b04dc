package kvstore_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/keyval/internal/kvstore"
	"github.com/calvinalkan/keyval/internal/pathorder"
)

func Test_Get_Returns_Absent_For_Empty_Store(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	_, ok := store.Get([]byte("missing"))
	assert.False(t, ok)
	assert.False(t, store.HasValue([]byte("missing")))
}

func Test_Set_Then_Get_Round_Trips_The_Value(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	require.NoError(t, store.Set([]byte("k"), []byte("v")))

	value, ok := store.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, "v", string(value))
}

func Test_Set_Overwrites_With_Last_Write_Wins(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	require.NoError(t, store.Set([]byte("k"), []byte("v1")))
	require.NoError(t, store.Set([]byte("k"), []byte("v2")))

	value, ok := store.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, "v2", string(value))
	assert.Equal(t, 1, store.Size())
}

func Test_Remove_Absent_Key_Is_A_NoOp(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("k"), []byte("v")))

	store.Remove([]byte("missing"))

	assert.Equal(t, 1, store.Size())
}

func Test_Remove_Deletes_The_Key(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("k"), []byte("v")))

	store.Remove([]byte("k"))

	_, ok := store.Get([]byte("k"))
	assert.False(t, ok)
	assert.Equal(t, 0, store.Size())
}

func Test_Size_Counts_Distinct_Keys_Across_Set_And_Remove(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	require.NoError(t, store.Set([]byte("a"), []byte("1")))
	require.NoError(t, store.Set([]byte("b"), []byte("1")))
	require.NoError(t, store.Set([]byte("a"), []byte("2"))) // overwrite, not a new key
	assert.Equal(t, 2, store.Size())

	store.Remove([]byte("a"))
	assert.Equal(t, 1, store.Size())
}

func Test_Set_Rejects_Nil_Key_Or_Value(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	require.ErrorIs(t, store.Set(nil, []byte("v")), kvstore.ErrInvalidArgument)
	require.ErrorIs(t, store.Set([]byte("k"), nil), kvstore.ErrInvalidArgument)
}

func Test_Set_Rejects_Strings_Exceeding_The_Escaped_Length_Limit(t *testing.T) {
	t.Parallel()

	store := kvstore.New(kvstore.WithMaxStrLen(8))

	require.NoError(t, store.Set([]byte("k"), []byte(strings.Repeat("a", 8))))
	require.ErrorIs(t, store.Set([]byte("k2"), []byte(strings.Repeat("a", 9))), kvstore.ErrInvalidArgument)
}

func Test_Set_Accepts_A_Value_Whose_Escaping_Doubles_Its_Length_Up_To_The_Limit(t *testing.T) {
	t.Parallel()

	store := kvstore.New(kvstore.WithMaxStrLen(1024))

	// 512 backticks escape to exactly 1024 bytes: the boundary case from the
	// specification, accepted rather than rejected.
	value := strings.Repeat("`", 512)
	require.NoError(t, store.Set([]byte("k"), []byte(value)))

	got, ok := store.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, value, string(got))
}

func Test_EnsureSorted_Produces_A_Strictly_Increasing_Array(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	keys := []string{"foo::10", "foo::1", "bar", "foo::1::bar", "aaa"}
	for _, k := range keys {
		require.NoError(t, store.Set([]byte(k), []byte("")))
	}

	all := store.GetAllKeys()
	for i := 0; i < len(all)-1; i++ {
		assert.Negative(t, pathorder.Compare(all[i], all[i+1]), "entries must be strictly increasing under PathOrder, got %q then %q", all[i], all[i+1])
	}
}

func Test_GetAllKeys_Orders_Numeric_Looking_Segments_Under_PathOrder(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	require.NoError(t, store.Set([]byte("foo::1"), []byte("")))
	require.NoError(t, store.Set([]byte("foo::10"), []byte("")))
	require.NoError(t, store.Set([]byte("foo::1::bar"), []byte("")))

	all := store.GetAllKeys()

	got := make([]string, len(all))
	for i, k := range all {
		got[i] = string(k)
	}

	assert.Equal(t, []string{"foo::1", "foo::1::bar", "foo::10"}, got)
}

func Test_Store_Grows_And_Shrinks_Across_The_Capacity_Boundary(t *testing.T) {
	t.Parallel()

	store := kvstore.New(kvstore.WithMinCapacity(2))

	for i := 0; i < 40; i++ {
		require.NoError(t, store.Set([]byte(strings.Repeat("k", i+1)), []byte("v")))
	}

	assert.Equal(t, 40, store.Size())

	for i := 0; i < 40; i++ {
		store.Remove([]byte(strings.Repeat("k", i+1)))
	}

	assert.Equal(t, 0, store.Size())
}

func Test_Set_Incorporates_An_Unsorted_Tail_Append_Out_Of_Order(t *testing.T) {
	t.Parallel()

	store := kvstore.New()

	// Ascending appends keep the fast path; the final, out-of-order append
	// forces the unsorted tail to go through ensureSorted's incorporation.
	require.NoError(t, store.Set([]byte("b"), []byte("1")))
	require.NoError(t, store.Set([]byte("c"), []byte("1")))
	require.NoError(t, store.Set([]byte("a"), []byte("1")))

	assert.Equal(t, 3, store.Size())

	all := store.GetAllKeys()
	got := make([]string, len(all))
	for i, k := range all {
		got[i] = string(k)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func Test_DebugString_Renders_Every_Entry_Sorted(t *testing.T) {
	t.Parallel()

	store := kvstore.New()
	require.NoError(t, store.Set([]byte("b"), []byte("2")))
	require.NoError(t, store.Set([]byte("a"), []byte("1")))

	assert.Equal(t, "a = 1\nb = 2\n", store.DebugString())
}
