package entry

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Create(t *testing.T) {
	ctx := context.Background()
	r, backend := newTestRegistry(t)

	code, store, err := r.Create(
		ctx, ownerCaller(), CreateOptions{
			Name:        "Cafe",
			MinRoleID:   roleMemberID,
			GrantRoleID: roleVisitorID,
			Passphrase:  "owl",
		},
	)
	require.NoError(t, err)
	assert.Len(t, code, 2)
	assert.Equal(t, "Cafe", store.Name)
	assert.Equal(t, Snowflake(testOwnerID), store.OwnerID)
	assert.Equal(t, Snowflake(testGuildID), store.GuildID)
	assert.Empty(t, store.ApprovedUsers)
	assert.NotNil(t, store.ApprovedUsers)
	assert.Nil(t, store.UpdatedAt)
	assert.Equal(t, 1, backend.saveCount())
	assert.Contains(t, backend.stores, code)
}

func TestRegistry_Create_Forbidden(t *testing.T) {
	r, backend := newTestRegistry(t)

	_, _, err := r.Create(
		context.Background(),
		Caller{UserID: testVisitorID, GuildID: testGuildID, RoleNames: []string{"Member"}},
		CreateOptions{Name: "Cafe"},
	)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, backend.saveCount())
}

func TestRegistry_Create_InvalidOptions(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, _, err := r.Create(
		context.Background(),
		ownerCaller(),
		CreateOptions{Name: "Cafe", MinRoleID: "not-a-role"},
	)
	assert.ErrorIs(t, err, ErrInvalidOptions)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Create_UniqueCodesUntilExhausted(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	seen := map[string]bool{}
	for n := minCode; n <= maxCode; n++ {
		code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "store"})
		require.NoError(t, err)
		require.False(t, seen[code], "duplicate code %s", code)
		require.Regexp(t, `^(0[1-9]|[1-9][0-9])$`, code)
		seen[code] = true
	}
	assert.Equal(t, maxCode, r.Len())

	_, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "one too many"})
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
	assert.Equal(t, maxCode, r.Len())
}

func TestRegistry_Create_PicksAmongFreeCodes(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	r.intN = func(int) int { return 0 }

	first, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "a"})
	require.NoError(t, err)
	second, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "b"})
	require.NoError(t, err)

	assert.Equal(t, "01", first)
	assert.Equal(t, "02", second)
}

func TestRegistry_Update(t *testing.T) {
	ctx := context.Background()
	r, backend := newTestRegistry(t)
	code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe", Passphrase: "owl"})
	require.NoError(t, err)

	store, changes, err := r.Update(
		ctx, ownerCaller(), code, UpdateOptions{
			Name:      ptr("Bar"),
			MinRoleID: ptr(roleVIPID),
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "Bar", store.Name)
	assert.Equal(t, Snowflake(roleVIPID), store.MinRoleID)
	assert.Equal(t, NullableString("owl"), store.Passphrase)
	require.NotNil(t, store.UpdatedAt)
	assert.Equal(
		t,
		[]Change{{Kind: ChangeName, Value: "Bar"}, {Kind: ChangeMinRole, Value: roleVIPID}},
		changes,
	)
	assert.Equal(t, 2, backend.saveCount())
}

func TestRegistry_Update_Passphrase(t *testing.T) {
	tests := []struct {
		name       string
		passphrase *string
		want       NullableString
		kind       ChangeKind
	}{
		{name: "set", passphrase: ptr("secret"), want: "secret", kind: ChangePassphraseSet},
		{name: "cleared", passphrase: ptr(""), want: "", kind: ChangePassphraseCleared},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				ctx := context.Background()
				r, _ := newTestRegistry(t)
				code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe", Passphrase: "owl"})
				require.NoError(t, err)

				store, changes, err := r.Update(ctx, ownerCaller(), code, UpdateOptions{Passphrase: tt.passphrase})
				require.NoError(t, err)
				assert.Equal(t, tt.want, store.Passphrase)
				assert.Equal(t, []Change{{Kind: tt.kind}}, changes)
			},
		)
	}
}

func TestRegistry_Update_NoChangeDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	r, backend := newTestRegistry(t)
	code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe"})
	require.NoError(t, err)
	saves := backend.saveCount()

	for _, opts := range []UpdateOptions{
		{},
		{Name: ptr(""), MinRoleID: ptr(""), GrantRoleID: ptr("")},
	} {
		store, changes, err := r.Update(ctx, ownerCaller(), code, opts)
		assert.ErrorIs(t, err, ErrNoChange)
		assert.Empty(t, changes)
		assert.Nil(t, store.UpdatedAt)
	}
	assert.Equal(t, saves, backend.saveCount())
}

func TestRegistry_Update_EmptyFieldsLeftAlone(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	code, _, err := r.Create(
		ctx,
		ownerCaller(),
		CreateOptions{Name: "Cafe", MinRoleID: roleMemberID, GrantRoleID: roleVIPID},
	)
	require.NoError(t, err)

	store, changes, err := r.Update(
		ctx,
		ownerCaller(),
		code,
		UpdateOptions{Name: ptr("Bar"), MinRoleID: ptr(""), GrantRoleID: ptr("")},
	)
	require.NoError(t, err)
	assert.Equal(t, []Change{{Kind: ChangeName, Value: "Bar"}}, changes)
	assert.Equal(t, "Bar", store.Name)
	assert.Equal(t, Snowflake(roleMemberID), store.MinRoleID)
	assert.Equal(t, Snowflake(roleVIPID), store.GrantRoleID)

	_, _, err = r.Update(ctx, ownerCaller(), code, UpdateOptions{MinRoleID: ptr("abc")})
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestRegistry_Update_Errors(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe"})
	require.NoError(t, err)

	otherHelper := Caller{UserID: "3", GuildID: testGuildID, RoleNames: []string{"Helper"}}
	noRole := Caller{UserID: testOwnerID, GuildID: testGuildID}

	_, _, err = r.Update(ctx, ownerCaller(), "00", UpdateOptions{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = r.Update(ctx, otherHelper, code, UpdateOptions{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, err, ErrForbidden)

	_, _, err = r.Update(ctx, noRole, code, UpdateOptions{Name: ptr("x")})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.NotErrorIs(t, err, ErrNotOwner)

	store, ok := r.Get(code)
	require.True(t, ok)
	assert.Equal(t, "Cafe", store.Name)
}

func TestRegistry_List(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	other := Caller{UserID: "3", GuildID: testGuildID, RoleNames: []string{"Helper"}}

	for _, name := range []string{"a", "b", "c"} {
		_, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: name})
		require.NoError(t, err)
	}
	_, _, err := r.Create(ctx, other, CreateOptions{Name: "theirs"})
	require.NoError(t, err)

	listings, err := r.List(ctx, ownerCaller())
	require.NoError(t, err)
	require.Len(t, listings, 3)
	for i := 1; i < len(listings); i++ {
		assert.Less(t, listings[i-1].Code, listings[i].Code)
	}
	for _, l := range listings {
		assert.Equal(t, Snowflake(testOwnerID), l.Store.OwnerID)
	}

	assert.Len(t, r.Owned(""), 4)

	_, err = r.List(ctx, Caller{UserID: testOwnerID})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestRegistry_Delete(t *testing.T) {
	ctx := context.Background()
	r, backend := newTestRegistry(t)
	code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe"})
	require.NoError(t, err)

	artifact := r.ArtifactPath(code)
	require.NoError(t, os.WriteFile(artifact, []byte("png"), 0o644))

	otherHelper := Caller{UserID: "3", GuildID: testGuildID, RoleNames: []string{"Helper"}}

	tests := []struct {
		name   string
		caller Caller
		code   string
		err    error
	}{
		{name: "not found", caller: ownerCaller(), code: "00", err: ErrNotFound},
		{name: "no allowed role", caller: Caller{UserID: testOwnerID}, code: code, err: ErrForbidden},
		{name: "not owner", caller: otherHelper, code: code, err: ErrNotOwner},
	}
	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				_, err := r.Delete(ctx, tt.caller, tt.code)
				assert.ErrorIs(t, err, tt.err)
				assert.Equal(t, 1, r.Len())
				assert.FileExists(t, artifact)
			},
		)
	}

	store, err := r.Delete(ctx, ownerCaller(), code)
	require.NoError(t, err)
	assert.Equal(t, "Cafe", store.Name)
	assert.Equal(t, 0, r.Len())
	assert.NoFileExists(t, artifact)
	assert.Empty(t, backend.stores)

	_, err = r.Delete(ctx, ownerCaller(), code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Delete_MissingArtifact(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe"})
	require.NoError(t, err)

	_, err = r.Delete(ctx, ownerCaller(), code)
	assert.NoError(t, err)
}

func TestRegistry_PersistenceFailureKeepsChange(t *testing.T) {
	ctx := context.Background()
	r, backend := newTestRegistry(t)
	diskFull := errors.New("disk full")
	backend.saveErr = diskFull

	code, store, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe"})
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, "Cafe", store.Name)

	got, ok := r.Get(code)
	require.True(t, ok)
	assert.Equal(t, "Cafe", got.Name)
}

func TestRegistry_Approve(t *testing.T) {
	ctx := context.Background()
	r, backend := newTestRegistry(t)
	code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe"})
	require.NoError(t, err)

	added, err := r.Approve(ctx, code, testVisitorID)
	require.NoError(t, err)
	assert.True(t, added)
	saves := backend.saveCount()

	added, err = r.Approve(ctx, code, testVisitorID)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, saves, backend.saveCount())

	store, _ := r.Get(code)
	assert.Equal(t, []Snowflake{testVisitorID}, store.ApprovedUsers)

	_, err = r.Approve(ctx, "00", testVisitorID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	code, _, err := r.Create(ctx, ownerCaller(), CreateOptions{Name: "Cafe"})
	require.NoError(t, err)

	store, _ := r.Get(code)
	store.ApprovedUsers = append(store.ApprovedUsers, "999")
	store.Name = "changed"

	again, _ := r.Get(code)
	assert.Equal(t, "Cafe", again.Name)
	assert.Empty(t, again.ApprovedUsers)
}

func TestRegistry_Load(t *testing.T) {
	backend := newMemoryBackend()
	backend.stores["07"] = &Store{Name: "Cafe", OwnerID: testOwnerID, ApprovedUsers: []Snowflake{}}
	r := NewRegistry(backend, newTestEntryConfig(t), nil)

	require.NoError(t, r.Load(context.Background()))
	store, ok := r.Get("07")
	require.True(t, ok)
	assert.Equal(t, "Cafe", store.Name)
}

func TestChallengeTracker(t *testing.T) {
	tracker := NewChallengeTracker()

	tracker.Put(testVisitorID, Challenge{Code: "01", RolePassed: true})
	tracker.Put(testVisitorID, Challenge{Code: "02", RolePassed: true})
	assert.Equal(t, 1, tracker.Len())

	c, ok := tracker.Take(testVisitorID)
	require.True(t, ok)
	assert.Equal(t, "02", c.Code)

	_, ok = tracker.Take(testVisitorID)
	assert.False(t, ok)

	tracker.Put(testVisitorID, Challenge{Code: "03"})
	tracker.Delete(testVisitorID)
	assert.Equal(t, 0, tracker.Len())
}
