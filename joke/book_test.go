package joke

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminID = "42"

func newTestBook(t testing.TB, contents string) (*Book, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jokes.json")
	if contents != "" {
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
	cfg := DefaultConfig()
	cfg.JokesFile = path
	cfg.AdminUserID = testAdminID
	return NewBook(cfg, nil), path
}

func TestBook_Load(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		wantLen  int
		wantErr  bool
	}{
		{name: "missing file", wantErr: true},
		{name: "invalid json", contents: "{", wantErr: true},
		{name: "not a list", contents: `{"a": 1}`, wantErr: true},
		{name: "empty list", contents: `[]`},
		{name: "duplicates dropped", contents: `["a joke", "b joke", "a joke"]`, wantLen: 2},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				book, _ := newTestBook(t, tt.contents)
				err := book.Load(context.Background())
				if tt.wantErr {
					assert.Error(t, err)
				} else {
					assert.NoError(t, err)
				}
				assert.Equal(t, tt.wantLen, book.Len())
				if tt.wantLen == 0 {
					assert.Equal(t, DefaultJoke, book.Pick())
				}
			},
		)
	}
}

func TestBook_Pick(t *testing.T) {
	book, _ := newTestBook(t, `["first joke", "second joke", "third joke"]`)
	require.NoError(t, book.Load(context.Background()))

	book.intN = func(int) int { return 2 }
	assert.Equal(t, "third joke", book.Pick())

	seen := map[string]bool{}
	book.intN = func(n int) int { return len(seen) % n }
	for range 3 {
		seen[book.Pick()] = true
	}
	assert.Len(t, seen, 3)
}

func TestBook_Add(t *testing.T) {
	ctx := context.Background()
	book, path := newTestBook(t, `["첫 번째 농담"]`)
	require.NoError(t, book.Load(ctx))

	added, count, err := book.Add(ctx, testAdminID, "  부엉이가 웃었다  ")
	require.NoError(t, err)
	assert.Equal(t, "부엉이가 웃었다", added)
	assert.Equal(t, 2, count)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  \"첫 번째 농담\",\n  \"부엉이가 웃었다\"\n]\n", string(data))

	reloaded, _ := newTestBook(t, "")
	reloaded.path = path
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 2, reloaded.Len())
}

func TestBook_Add_Errors(t *testing.T) {
	ctx := context.Background()
	book, _ := newTestBook(t, `["existing joke"]`)
	require.NoError(t, book.Load(ctx))

	tests := []struct {
		name   string
		caller string
		text   string
		err    error
	}{
		{name: "not admin", caller: "7", text: "a new joke", err: ErrForbidden},
		{name: "no caller", caller: "", text: "a new joke", err: ErrForbidden},
		{name: "too short", caller: testAdminID, text: "  ab  ", err: ErrTooShort},
		{name: "too short runes", caller: testAdminID, text: "부엉", err: ErrTooShort},
		{name: "duplicate", caller: testAdminID, text: " existing joke ", err: ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				_, _, err := book.Add(ctx, tt.caller, tt.text)
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, 1, book.Len())
			},
		)
	}

	_, count, err := book.Add(ctx, testAdminID, "부엉이")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestBook_Add_FromFallback(t *testing.T) {
	ctx := context.Background()
	book, path := newTestBook(t, "")
	require.Error(t, book.Load(ctx))

	_, count, err := book.Add(ctx, testAdminID, "the only joke")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "the only joke", book.Pick())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), DefaultJoke)
}

func TestBook_Add_SaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	book, _ := newTestBook(t, `["existing joke"]`)
	require.NoError(t, book.Load(ctx))

	// A file in place of the parent directory makes the write fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	book.path = filepath.Join(blocker, "jokes.json")

	_, count, err := book.Add(ctx, testAdminID, "a new joke")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, book.Len())

	book.intN = func(int) int { return 0 }
	assert.Equal(t, "existing joke", book.Pick())
}
