package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestLocalState(t *testing.T) *LocalState {
	t.Helper()

	// A named in-memory database per test keeps the pool's connections on
	// the same store without sharing state across tests.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName,
		fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	t.Cleanup(func() { sqldb.Close() })

	db := bun.NewDB(sqldb, sqlitedialect.New())
	local := NewLocalState(db)
	require.NoError(t, local.Init(context.Background()))

	return local
}

func TestLocalState(t *testing.T) {
	ctx := context.Background()

	t.Run("load before any save answers nil nil", func(t *testing.T) {
		local := newTestLocalState(t)

		identity, err := local.Load(ctx)
		assert.NoError(t, err)
		assert.Nil(t, identity)
	})

	t.Run("save then load round trips", func(t *testing.T) {
		local := newTestLocalState(t)

		require.NoError(t, local.Save(ctx, *studentIdentity()))

		identity, err := local.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, identity)
		assert.Equal(t, "jane.doe@cit.edu", identity.Email)
		assert.Equal(t, RoleStudent, identity.Role)
	})

	t.Run("saves overwrite the single row", func(t *testing.T) {
		local := newTestLocalState(t)

		require.NoError(t, local.Save(ctx, *studentIdentity()))

		second := *studentIdentity()
		second.Name = "Renamed"
		require.NoError(t, local.Save(ctx, second))

		identity, err := local.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", identity.Name)
	})

	t.Run("clear removes the row", func(t *testing.T) {
		local := newTestLocalState(t)

		require.NoError(t, local.Save(ctx, *studentIdentity()))
		require.NoError(t, local.Clear(ctx))

		identity, err := local.Load(ctx)
		assert.NoError(t, err)
		assert.Nil(t, identity)
	})
}

func TestLocalStateRefreshToken(t *testing.T) {
	ctx := context.Background()

	t.Run("load before any save answers empty", func(t *testing.T) {
		local := newTestLocalState(t)

		token, err := local.LoadRefreshToken(ctx)
		assert.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("save then load round trips", func(t *testing.T) {
		local := newTestLocalState(t)

		require.NoError(t, local.SaveRefreshToken(ctx, "refresh-123"))

		token, err := local.LoadRefreshToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "refresh-123", token)
	})

	t.Run("identity saves leave the token alone", func(t *testing.T) {
		local := newTestLocalState(t)

		require.NoError(t, local.SaveRefreshToken(ctx, "refresh-123"))
		require.NoError(t, local.Save(ctx, *studentIdentity()))

		token, err := local.LoadRefreshToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "refresh-123", token)

		// And the other way around: a rotated token keeps the identity.
		require.NoError(t, local.SaveRefreshToken(ctx, "refresh-456"))
		identity, err := local.Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, identity)
		assert.Equal(t, "jane.doe@cit.edu", identity.Email)
	})

	t.Run("clear wipes identity and token together", func(t *testing.T) {
		local := newTestLocalState(t)

		require.NoError(t, local.Save(ctx, *studentIdentity()))
		require.NoError(t, local.SaveRefreshToken(ctx, "refresh-123"))
		require.NoError(t, local.Clear(ctx))

		token, err := local.LoadRefreshToken(ctx)
		assert.NoError(t, err)
		assert.Empty(t, token)
	})
}
