package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakehouse/models"
	"stakehouse/repository/testutil"
)

func TestRoomRepository_CreateAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoomRepository(testDB.DB)
	ctx := context.Background()

	t.Run("missing room", func(t *testing.T) {
		room, err := repo.GetByID(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, room)
	})

	t.Run("round trip", func(t *testing.T) {
		room := testutil.CreateTestRoom(models.RoomKindUser, models.CurrencyTON, models.GameJackpot, 2_000_000_000)
		require.NoError(t, repo.Create(ctx, room))
		assert.False(t, room.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, room.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, room.ServerSeedHash, got.ServerSeedHash)
		assert.Equal(t, room.ServerSeed, got.ServerSeed)
		assert.Equal(t, models.RoomStatusOpen, got.Status)
		assert.Equal(t, int64(0), got.Nonce)
		assert.Nil(t, got.StartsAt)
	})
}

func TestRoomRepository_UpdateStatus(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoomRepository(testDB.DB)
	ctx := context.Background()

	room := testutil.CreateTestRoom(models.RoomKindUser, models.CurrencyXTR, models.GameCoinflip, 1_000_000_000)
	require.NoError(t, repo.Create(ctx, room))

	require.NoError(t, repo.UpdateStatus(ctx, room.ID, models.RoomStatusOpen, models.RoomStatusLocked))

	t.Run("stale from status conflicts", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, room.ID, models.RoomStatusOpen, models.RoomStatusCancelled)
		assert.ErrorIs(t, err, models.ErrStatusConflict)
	})

	t.Run("mark settled requires running", func(t *testing.T) {
		err := repo.MarkSettled(ctx, room.ID, 1)
		assert.ErrorIs(t, err, models.ErrStatusConflict)

		require.NoError(t, repo.UpdateStatus(ctx, room.ID, models.RoomStatusLocked, models.RoomStatusRunning))
		require.NoError(t, repo.MarkSettled(ctx, room.ID, 1))

		got, err := repo.GetByID(ctx, room.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoomStatusSettled, got.Status)
		assert.Equal(t, int64(1), got.Nonce)
	})
}

func TestRoomRepository_SystemTierIndex(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoomRepository(testDB.DB)
	ctx := context.Background()

	first := testutil.CreateTestRoom(models.RoomKindSystem, models.CurrencyTON, models.GameRoulette, 1_000_000_000)
	created, err := repo.CreateSystemIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := testutil.CreateTestRoom(models.RoomKindSystem, models.CurrencyTON, models.GameRoulette, 1_000_000_000)
	created, err = repo.CreateSystemIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created, "tier already has a live room")

	found, err := repo.FindActiveSystemRoom(ctx, models.CurrencyTON, models.GameRoulette, 1_000_000_000)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	t.Run("user rooms do not occupy the tier", func(t *testing.T) {
		user := testutil.CreateTestRoom(models.RoomKindUser, models.CurrencyTON, models.GameRoulette, 1_000_000_000)
		require.NoError(t, repo.Create(ctx, user))
	})

	t.Run("finished room frees the tier", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, first.ID, models.RoomStatusOpen, models.RoomStatusCancelled))

		created, err := repo.CreateSystemIfAbsent(ctx, second)
		require.NoError(t, err)
		assert.True(t, created)
	})
}

func TestRoomRepository_ListActive(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewRoomRepository(testDB.DB)
	ledger := NewLedgerRepository(testDB.DB)
	players := NewRoomPlayerRepository(testDB.DB)
	ctx := context.Background()

	user := testutil.CreateTestRoom(models.RoomKindUser, models.CurrencyXTR, models.GameCrash, 5_000_000_000)
	require.NoError(t, repo.Create(ctx, user))
	system := testutil.CreateTestRoom(models.RoomKindSystem, models.CurrencyTON, models.GameCoinflip, 1_000_000_000)
	_, err := repo.CreateSystemIfAbsent(ctx, system)
	require.NoError(t, err)
	done := testutil.CreateTestRoom(models.RoomKindUser, models.CurrencyXTR, models.GameCrash, 5_000_000_000)
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.UpdateStatus(ctx, done.ID, models.RoomStatusOpen, models.RoomStatusCancelled))

	account, err := ledger.EnsureAccount(ctx, models.AccountRef{UserID: uuid.New(), Currency: models.CurrencyXTR})
	require.NoError(t, err)
	lock := testutil.CreateTestEntry(account, models.EntryBetLock, -5_000_000_000, models.RefTypeRoom, user.ID.String())
	require.NoError(t, ledger.Append(ctx, lock))
	require.NoError(t, players.Create(ctx, testutil.CreateTestPlayer(user.ID, account.UserID, "seed", lock.ID)))

	t.Run("system first and finished rooms hidden", func(t *testing.T) {
		rooms, err := repo.ListActive(ctx, models.RoomFilter{}, 10)
		require.NoError(t, err)
		require.Len(t, rooms, 2)
		assert.Equal(t, system.ID, rooms[0].ID)
		assert.Equal(t, user.ID, rooms[1].ID)
		assert.Equal(t, 1, rooms[1].PlayersCount)
		assert.Equal(t, "5", rooms[1].StakeAmount)
	})

	t.Run("filters", func(t *testing.T) {
		currency := models.CurrencyXTR
		game := models.GameCrash
		rooms, err := repo.ListActive(ctx, models.RoomFilter{Currency: &currency, Game: &game}, 10)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, user.ID, rooms[0].ID)

		kind := models.RoomKindSystem
		rooms, err = repo.ListActive(ctx, models.RoomFilter{Kind: &kind}, 10)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, system.ID, rooms[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		rooms, err := repo.ListActive(ctx, models.RoomFilter{}, 1)
		require.NoError(t, err)
		assert.Len(t, rooms, 1)
	})
}

func TestRoomPlayerRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	rooms := NewRoomRepository(testDB.DB)
	ledger := NewLedgerRepository(testDB.DB)
	repo := NewRoomPlayerRepository(testDB.DB)
	ctx := context.Background()

	room := testutil.CreateTestRoom(models.RoomKindUser, models.CurrencyTON, models.GameJackpot, 1_000_000_000)
	require.NoError(t, rooms.Create(ctx, room))

	var userIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		account, err := ledger.EnsureAccount(ctx, models.AccountRef{UserID: uuid.New(), Currency: models.CurrencyTON})
		require.NoError(t, err)
		entry := testutil.CreateTestEntry(account, models.EntryBetLock, -room.StakeAmount, models.RefTypeRoom, room.ID.String())
		require.NoError(t, ledger.Append(ctx, entry))

		player := testutil.CreateTestPlayer(room.ID, account.UserID, "client", entry.ID)
		require.NoError(t, repo.Create(ctx, player))
		assert.NotZero(t, player.ID)
		userIDs = append(userIDs, account.UserID)
	}

	t.Run("join order", func(t *testing.T) {
		listed, err := repo.ListByRoom(ctx, room.ID)
		require.NoError(t, err)
		require.Len(t, listed, 3)
		for i, p := range listed {
			assert.Equal(t, userIDs[i], p.UserID)
		}
	})

	t.Run("duplicate join rejected", func(t *testing.T) {
		listed, err := repo.ListByRoom(ctx, room.ID)
		require.NoError(t, err)

		dup := testutil.CreateTestPlayer(room.ID, userIDs[0], "again", listed[0].BetLockEntryID)
		assert.Error(t, repo.Create(ctx, dup))
	})
}
