package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retroim/internal/domain"
)

func newTestStore(t *testing.T) (*UserStore, *sql.DB) {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db))
	return NewUserStore(db), db
}

func TestCreateUserAndLogin(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, "Alice@Example.com", "secret", "Alice")
	require.NoError(t, err)
	require.NotEmpty(t, u.UUID)

	_, err = store.CreateUser(ctx, "alice@example.com", "other", "Dup")
	assert.Error(t, err, "duplicate email regardless of case")

	id, err := store.Login(ctx, "alice@EXAMPLE.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, u.UUID, id)

	id, err = store.Login(ctx, "alice@example.com", "wrong")
	require.NoError(t, err)
	assert.Empty(t, id, "bad password is not an error")

	id, err = store.Login(ctx, "nobody@example.com", "secret")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestGetUUIDAndGetUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, "bob@example.com", "pw", "Bob")
	require.NoError(t, err)

	id, err := store.GetUUID(ctx, "BOB@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.UUID, id)

	id, err = store.GetUUID(ctx, "nope@example.com")
	require.NoError(t, err)
	assert.Empty(t, id)

	head, err := store.GetUser(ctx, u.UUID)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "bob@example.com", head.Email)
	assert.Equal(t, "Bob", head.Status.Name)
	assert.Equal(t, domain.SubstatusOffline, head.Status.Substatus)
	assert.Nil(t, head.Detail)

	head, err = store.GetUser(ctx, "missing-uuid")
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestSaveBatchRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, "carol@example.com", "pw", "Carol")
	require.NoError(t, err)

	detail := domain.NewUserDetail()
	detail.Settings["BLP"] = "BL"
	detail.Settings["GTC"] = "N"
	detail.Groups["1"] = &domain.Group{ID: "1", Name: "Friends", IsFavorite: true}

	ctc := domain.NewContact("peer-uuid", "Peer")
	ctc.Lists = domain.ListFL | domain.ListAL
	ctc.IsMessengerUser = true
	ctc.Groups["1"] = struct{}{}
	detail.Contacts["peer-uuid"] = ctc

	u.Status.Name = "Carol C."
	u.Status.Message = "out to lunch"
	u.Status.Media = "song"

	require.NoError(t, store.SaveBatch(ctx, []domain.BatchEntry{{User: u, Detail: detail}}))

	head, err := store.GetUser(ctx, u.UUID)
	require.NoError(t, err)
	assert.Equal(t, "Carol C.", head.Status.Name)
	assert.Equal(t, "out to lunch", head.Status.Message)
	assert.Equal(t, "song", head.Status.Media)

	got, err := store.GetDetail(ctx, u.UUID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "BL", got.Settings["BLP"])
	require.Contains(t, got.Groups, "1")
	assert.Equal(t, "Friends", got.Groups["1"].Name)
	assert.True(t, got.Groups["1"].IsFavorite)

	gotCtc, ok := got.Contacts["peer-uuid"]
	require.True(t, ok)
	assert.True(t, gotCtc.Lists.Has(domain.ListFL))
	assert.True(t, gotCtc.Lists.Has(domain.ListAL))
	assert.False(t, gotCtc.Lists.Has(domain.ListBL))
	assert.True(t, gotCtc.IsMessengerUser)
	assert.Contains(t, gotCtc.Groups, "1")
}

func TestSaveBatchHeadOnly(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, "dave@example.com", "pw", "Dave")
	require.NoError(t, err)

	detail := domain.NewUserDetail()
	detail.Settings["BLP"] = "BL"
	require.NoError(t, store.SaveBatch(ctx, []domain.BatchEntry{{User: u, Detail: detail}}))

	u.Status.Name = "David"
	require.NoError(t, store.SaveBatch(ctx, []domain.BatchEntry{{User: u}}))

	head, err := store.GetUser(ctx, u.UUID)
	require.NoError(t, err)
	assert.Equal(t, "David", head.Status.Name)

	got, err := store.GetDetail(ctx, u.UUID)
	require.NoError(t, err)
	assert.Equal(t, "BL", got.Settings["BLP"], "nil detail leaves blobs untouched")
}

func TestGetDetailEmptyDefaults(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	u, err := store.CreateUser(ctx, "erin@example.com", "pw", "Erin")
	require.NoError(t, err)

	got, err := store.GetDetail(ctx, u.UUID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.Settings)
	assert.Empty(t, got.Groups)
	assert.Empty(t, got.Contacts)

	got, err = store.GetDetail(ctx, "missing-uuid")
	require.NoError(t, err)
	assert.Nil(t, got)
}
