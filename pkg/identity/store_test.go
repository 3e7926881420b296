package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/identity/pkg/token"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db, SQLiteDialect())
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func newTestUser(t *testing.T, store *SQLStore, userName, email string) *User {
	t.Helper()

	user := &User{
		ID:          uuid.NewString(),
		UserName:    userName,
		Email:       email,
		DisplayName: userName,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return user
}

func TestSQLStoreCreateAndFindUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := newTestUser(t, store, "jake", "jake@example.com")
	assert.Equal(t, "JAKE", created.NormalizedUserName)
	assert.Equal(t, "JAKE@EXAMPLE.COM", created.NormalizedEmail)

	byEmail, err := store.UserByEmail(ctx, "  Jake@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
	assert.Equal(t, "jake", byEmail.UserName)

	byID, err := store.UserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "jake@example.com", byID.Email)

	_, err = store.UserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStoreUniquenessIsCaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	newTestUser(t, store, "jake", "jake@example.com")

	err := store.CreateUser(ctx, &User{
		ID:        uuid.NewString(),
		UserName:  "JAKE",
		Email:     "other@example.com",
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateUserName)

	err = store.CreateUser(ctx, &User{
		ID:        uuid.NewString(),
		UserName:  "other",
		Email:     "Jake@EXAMPLE.com",
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	taken, err := store.UserNameTaken(ctx, " jAkE ")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = store.EmailTaken(ctx, "jake@example.com")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = store.EmailTaken(ctx, "free@example.com")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestSQLStoreUpdateProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := newTestUser(t, store, "jake", "jake@example.com")

	require.NoError(t, store.UpdateProfile(ctx, user.ID, "Jake F.", "up for anything"))

	updated, err := store.UserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jake F.", updated.DisplayName)
	assert.Equal(t, "up for anything", updated.Bio)

	err = store.UpdateProfile(ctx, "missing", "x", "y")
	assert.ErrorIs(t, err, ErrNoRowsAffected)
}

func TestSQLStoreRefreshTokenLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	user := newTestUser(t, store, "jake", "jake@example.com")

	_, rec, err := token.Mint(user.ID, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, store.InsertRefreshToken(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.EqualValues(t, 1, rec.Version)

	tokens, err := store.RefreshTokensByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, rec.Digest, tokens[0].Digest)
	assert.Nil(t, tokens[0].RevokedAt)

	_, err = token.Rotate(rec, time.Hour, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.RotateRefreshToken(ctx, rec))
	assert.EqualValues(t, 2, rec.Version)

	require.NoError(t, store.RevokeRefreshToken(ctx, rec.ID, now.Add(2*time.Minute)))
	tokens, err = store.RefreshTokensByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.NotNil(t, tokens[0].RevokedAt)
	assert.True(t, tokens[0].Revoked())
}

func TestSQLStoreRotateRefreshTokenConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	user := newTestUser(t, store, "jake", "jake@example.com")

	_, rec, err := token.Mint(user.ID, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, store.InsertRefreshToken(ctx, rec))

	// Two requests loaded the same record; the first rotation wins.
	stale := *rec
	_, err = token.Rotate(rec, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, store.RotateRefreshToken(ctx, rec))

	_, err = token.Rotate(&stale, time.Hour, now)
	require.NoError(t, err)
	err = store.RotateRefreshToken(ctx, &stale)
	assert.ErrorIs(t, err, token.ErrRotationConflict)
	assert.EqualValues(t, 1, stale.Version)
}

func TestSQLStorePurgeExpiredRefreshTokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	user := newTestUser(t, store, "jake", "jake@example.com")
	other := newTestUser(t, store, "mina", "mina@example.com")

	_, live, err := token.Mint(user.ID, time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, store.InsertRefreshToken(ctx, live))

	_, stale, err := token.Mint(user.ID, -time.Minute, now)
	require.NoError(t, err)
	require.NoError(t, store.InsertRefreshToken(ctx, stale))

	_, revokedStale, err := token.Mint(user.ID, -time.Hour, now)
	require.NoError(t, err)
	require.NoError(t, store.InsertRefreshToken(ctx, revokedStale))
	require.NoError(t, store.RevokeRefreshToken(ctx, revokedStale.ID, now))

	_, otherStale, err := token.Mint(other.ID, -time.Minute, now)
	require.NoError(t, err)
	require.NoError(t, store.InsertRefreshToken(ctx, otherStale))

	purged, err := store.PurgeExpiredRefreshTokens(ctx, user.ID, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, purged)

	remaining, err := store.RefreshTokensByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, live.ID, remaining[0].ID)

	// Other users keep their rows until their own flows purge them.
	otherTokens, err := store.RefreshTokensByUser(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, otherTokens, 1)
}
