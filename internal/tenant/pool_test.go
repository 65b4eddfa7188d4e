package tenant

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"flowlytix/internal/common"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// staticPathResolver serves database paths from a fixed map.
type staticPathResolver struct {
	paths map[uuid.UUID]string
}

func (r *staticPathResolver) DatabasePath(ctx context.Context, id uuid.UUID) (string, error) {
	path, ok := r.paths[id]
	if !ok {
		return "", &common.TenantNotFoundError{AgencyID: id}
	}
	return path, nil
}

type PoolTestSuite struct {
	suite.Suite
	dataDir  string
	resolver *staticPathResolver
	pool     *Pool
}

func (suite *PoolTestSuite) SetupTest() {
	suite.dataDir = suite.T().TempDir()
	suite.resolver = &staticPathResolver{paths: make(map[uuid.UUID]string)}
	suite.pool = NewPool(suite.resolver, nil)
}

func (suite *PoolTestSuite) TearDownTest() {
	suite.pool.Shutdown()
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}

func (suite *PoolTestSuite) addAgency(name string) uuid.UUID {
	id := uuid.New()
	suite.resolver.paths[id] = filepath.Join(suite.dataDir, name+".db")
	return id
}

func (suite *PoolTestSuite) TestGetConnection_ReusesHandle() {
	ctx := context.Background()
	id := suite.addAgency("acme")

	first, err := suite.pool.GetConnection(ctx, id)
	assert.NoError(suite.T(), err)

	second, err := suite.pool.GetConnection(ctx, id)
	assert.NoError(suite.T(), err)
	assert.Same(suite.T(), first, second)
	assert.Same(suite.T(), first.DB(), second.DB())

	stats := suite.pool.Stats()
	assert.Equal(suite.T(), 1, stats.TotalConnections)
	assert.Equal(suite.T(), 1, stats.ActiveConnections)
}

func (suite *PoolTestSuite) TestGetConnection_UnknownAgency() {
	ctx := context.Background()

	_, err := suite.pool.GetConnection(ctx, uuid.New())

	var notFound *common.TenantNotFoundError
	assert.ErrorAs(suite.T(), err, &notFound)
	assert.Equal(suite.T(), 0, suite.pool.Stats().TotalConnections)
}

func (suite *PoolTestSuite) TestGetConnection_HandleIsUsable() {
	ctx := context.Background()
	id := suite.addAgency("acme")

	db, err := suite.pool.Handle(ctx, id)
	assert.NoError(suite.T(), err)

	var mode string
	assert.NoError(suite.T(), db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(suite.T(), "wal", mode)
}

func (suite *PoolTestSuite) TestEvict_DropsHandle() {
	ctx := context.Background()
	id := suite.addAgency("acme")

	first, err := suite.pool.GetConnection(ctx, id)
	assert.NoError(suite.T(), err)

	assert.True(suite.T(), suite.pool.Evict(id))
	assert.Equal(suite.T(), 0, suite.pool.Stats().TotalConnections)

	// A fresh handle is opened on the next request.
	second, err := suite.pool.GetConnection(ctx, id)
	assert.NoError(suite.T(), err)
	assert.NotSame(suite.T(), first, second)
}

func (suite *PoolTestSuite) TestEvict_MissingHandle() {
	assert.False(suite.T(), suite.pool.Evict(uuid.New()))
}

func (suite *PoolTestSuite) TestEvictIdle_ClosesStaleHandles() {
	ctx := context.Background()
	stale := suite.addAgency("stale")
	fresh := suite.addAgency("fresh")

	staleConn, err := suite.pool.GetConnection(ctx, stale)
	assert.NoError(suite.T(), err)
	staleConn.LastUsed = time.Now().Add(-2 * time.Hour)

	_, err = suite.pool.GetConnection(ctx, fresh)
	assert.NoError(suite.T(), err)

	assert.Equal(suite.T(), 1, suite.pool.EvictIdle(time.Hour))

	stats := suite.pool.Stats()
	assert.Equal(suite.T(), 1, stats.TotalConnections)
}

func (suite *PoolTestSuite) TestShutdown_Idempotent() {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		id := suite.addAgency(fmt.Sprintf("agency-%d", i))
		_, err := suite.pool.GetConnection(ctx, id)
		assert.NoError(suite.T(), err)
	}

	suite.pool.Shutdown()
	assert.Equal(suite.T(), 0, suite.pool.Stats().TotalConnections)

	suite.pool.Shutdown()
	assert.Equal(suite.T(), 0, suite.pool.Stats().TotalConnections)
}
