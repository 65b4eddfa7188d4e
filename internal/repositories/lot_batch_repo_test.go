package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"flowlytix/internal/models"
	"flowlytix/internal/tenant"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// fixedPathResolver maps every agency to one database file.
type fixedPathResolver struct {
	path string
}

func (r *fixedPathResolver) DatabasePath(ctx context.Context, id uuid.UUID) (string, error) {
	return r.path, nil
}

type LotBatchRepoTestSuite struct {
	suite.Suite
	pool      *tenant.Pool
	repo      LotBatchRepository
	agencyID  uuid.UUID
	productID uuid.UUID
	userID    uuid.UUID
	context   context.Context
}

func (suite *LotBatchRepoTestSuite) SetupTest() {
	suite.context = context.Background()
	suite.agencyID = uuid.New()
	suite.productID = uuid.New()
	suite.userID = uuid.New()

	dbPath := filepath.Join(suite.T().TempDir(), "agency.db")
	agency := &models.Agency{
		ID:           suite.agencyID,
		Name:         "test-agency",
		DatabasePath: dbPath,
		Status:       models.AgencyStatusActive,
	}
	provisioner := tenant.NewProvisioner(nil)
	assert.NoError(suite.T(), provisioner.InitializeAgencyDatabase(suite.context, agency))

	suite.pool = tenant.NewPool(&fixedPathResolver{path: dbPath}, nil)
	suite.repo = NewLotBatchRepo(suite.pool)

	suite.insertProduct(suite.productID)
}

func (suite *LotBatchRepoTestSuite) TearDownTest() {
	suite.pool.Shutdown()
}

func TestLotBatchRepoTestSuite(t *testing.T) {
	suite.Run(t, new(LotBatchRepoTestSuite))
}

func (suite *LotBatchRepoTestSuite) insertProduct(id uuid.UUID) {
	db, err := suite.pool.Handle(suite.context, suite.agencyID)
	assert.NoError(suite.T(), err)

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(suite.context,
		`INSERT INTO products (id, name, sku, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), "Wheat Flour 5kg", "SKU-"+id.String()[:8], now, now)
	assert.NoError(suite.T(), err)
}

func (suite *LotBatchRepoTestSuite) newLot(lotNumber string, manufactured time.Time, quantity int) *models.LotBatch {
	return &models.LotBatch{
		ID:                uuid.New(),
		LotNumber:         lotNumber,
		ProductID:         suite.productID,
		AgencyID:          suite.agencyID,
		ManufacturingDate: manufactured,
		Quantity:          quantity,
		RemainingQuantity: quantity,
		Status:            models.LotStatusActive,
		CreatedBy:         suite.userID,
		UpdatedBy:         suite.userID,
	}
}

func (suite *LotBatchRepoTestSuite) TestCreateAndGetByID() {
	expiry := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	lot := suite.newLot("LOT-001", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 500)
	lot.ExpiryDate = &expiry

	assert.NoError(suite.T(), suite.repo.Create(suite.context, lot))

	got, err := suite.repo.GetByID(suite.context, suite.agencyID, lot.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), lot.ID, got.ID)
	assert.Equal(suite.T(), "LOT-001", got.LotNumber)
	assert.Equal(suite.T(), suite.productID, got.ProductID)
	assert.Equal(suite.T(), 500, got.Quantity)
	assert.Equal(suite.T(), 500, got.RemainingQuantity)
	assert.Equal(suite.T(), 0, got.ReservedQuantity)
	assert.Equal(suite.T(), models.LotStatusActive, got.Status)
	assert.NotNil(suite.T(), got.ExpiryDate)
	assert.True(suite.T(), got.ExpiryDate.Equal(expiry))
	assert.Nil(suite.T(), got.SupplierID)
}

func (suite *LotBatchRepoTestSuite) TestGetByID_Missing() {
	_, err := suite.repo.GetByID(suite.context, suite.agencyID, uuid.New())
	assert.True(suite.T(), IsLotNotFound(err))
}

func (suite *LotBatchRepoTestSuite) TestCreate_DuplicateLotNumberForProduct() {
	first := suite.newLot("LOT-001", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 100)
	second := suite.newLot("LOT-001", time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), 200)

	assert.NoError(suite.T(), suite.repo.Create(suite.context, first))
	assert.Error(suite.T(), suite.repo.Create(suite.context, second))
}

func (suite *LotBatchRepoTestSuite) TestListActiveByProduct_FifoOrder() {
	// Inserted out of order; the listing must come back oldest first with
	// lot number breaking the tie.
	march := suite.newLot("LOT-C", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 100)
	januaryB := suite.newLot("LOT-B", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100)
	januaryA := suite.newLot("LOT-A", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 100)

	for _, lot := range []*models.LotBatch{march, januaryB, januaryA} {
		assert.NoError(suite.T(), suite.repo.Create(suite.context, lot))
	}

	// Non-ACTIVE lots stay out of the FIFO listing.
	quarantined := suite.newLot("LOT-Q", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), 100)
	quarantined.Status = models.LotStatusQuarantine
	assert.NoError(suite.T(), suite.repo.Create(suite.context, quarantined))

	lots, err := suite.repo.ListActiveByProduct(suite.context, suite.agencyID, suite.productID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), lots, 3)
	assert.Equal(suite.T(), "LOT-A", lots[0].LotNumber)
	assert.Equal(suite.T(), "LOT-B", lots[1].LotNumber)
	assert.Equal(suite.T(), "LOT-C", lots[2].LotNumber)
}

func (suite *LotBatchRepoTestSuite) TestApplyQuantities_Success() {
	lot := suite.newLot("LOT-001", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 500)
	assert.NoError(suite.T(), suite.repo.Create(suite.context, lot))

	lot.ReservedQuantity = 200
	assert.NoError(suite.T(), suite.repo.ApplyQuantities(suite.context, lot, 500, 0))

	got, err := suite.repo.GetByID(suite.context, suite.agencyID, lot.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 200, got.ReservedQuantity)
	assert.Equal(suite.T(), 500, got.RemainingQuantity)
}

func (suite *LotBatchRepoTestSuite) TestApplyQuantities_StaleReadConflicts() {
	lot := suite.newLot("LOT-001", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 500)
	assert.NoError(suite.T(), suite.repo.Create(suite.context, lot))

	// A different writer updates the row between our read and write.
	other := *lot
	other.ReservedQuantity = 50
	assert.NoError(suite.T(), suite.repo.ApplyQuantities(suite.context, &other, 500, 0))

	lot.ReservedQuantity = 200
	err := suite.repo.ApplyQuantities(suite.context, lot, 500, 0)
	assert.ErrorIs(suite.T(), err, ErrQuantityConflict)

	// The first write stands.
	got, getErr := suite.repo.GetByID(suite.context, suite.agencyID, lot.ID)
	assert.NoError(suite.T(), getErr)
	assert.Equal(suite.T(), 50, got.ReservedQuantity)
}

func (suite *LotBatchRepoTestSuite) TestUpdateStatus() {
	lot := suite.newLot("LOT-001", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 500)
	assert.NoError(suite.T(), suite.repo.Create(suite.context, lot))

	assert.NoError(suite.T(), suite.repo.UpdateStatus(suite.context, suite.agencyID, lot.ID,
		models.LotStatusRecalled, suite.userID))

	got, err := suite.repo.GetByID(suite.context, suite.agencyID, lot.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.LotStatusRecalled, got.Status)
}

func (suite *LotBatchRepoTestSuite) TestUpdateStatus_Missing() {
	err := suite.repo.UpdateStatus(suite.context, suite.agencyID, uuid.New(),
		models.LotStatusRecalled, suite.userID)
	assert.True(suite.T(), IsLotNotFound(err))
}

func (suite *LotBatchRepoTestSuite) TestListActiveExpired() {
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	expired := suite.newLot("LOT-OLD", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 100)
	expired.ExpiryDate = &past
	fresh := suite.newLot("LOT-NEW", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 100)
	fresh.ExpiryDate = &future
	undated := suite.newLot("LOT-NONE", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 100)

	for _, lot := range []*models.LotBatch{expired, fresh, undated} {
		assert.NoError(suite.T(), suite.repo.Create(suite.context, lot))
	}

	lots, err := suite.repo.ListActiveExpired(suite.context, suite.agencyID, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), lots, 1)
	assert.Equal(suite.T(), "LOT-OLD", lots[0].LotNumber)
}

func (suite *LotBatchRepoTestSuite) TestGetByLotNumber() {
	lot := suite.newLot("LOT-001", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), 500)
	assert.NoError(suite.T(), suite.repo.Create(suite.context, lot))

	got, err := suite.repo.GetByLotNumber(suite.context, suite.agencyID, suite.productID, "LOT-001")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), lot.ID, got.ID)
}
