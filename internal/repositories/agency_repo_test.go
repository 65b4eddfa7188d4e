package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"flowlytix/internal/common"
	"flowlytix/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type AgencyRepoTestSuite struct {
	suite.Suite
	mock     pgxmock.PgxPoolIface
	repo     AgencyRepository
	agencyID uuid.UUID
	context  context.Context
}

func (suite *AgencyRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewAgencyRepo(mock)
	suite.agencyID = uuid.New()
	suite.context = context.Background()
}

func (suite *AgencyRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestAgencyRepoTestSuite(t *testing.T) {
	suite.Run(t, new(AgencyRepoTestSuite))
}

func (suite *AgencyRepoTestSuite) newAgency() *models.Agency {
	return &models.Agency{
		ID:           suite.agencyID,
		Name:         "Acme Distributors",
		DatabasePath: "/data/agencies/acme-distributors.db",
		Status:       models.AgencyStatusActive,
		Settings:     models.AgencySettings{Currency: "INR"},
	}
}

func (suite *AgencyRepoTestSuite) agencyRow(agency *models.Agency) *pgxmock.Rows {
	settings, err := json.Marshal(agency.Settings)
	assert.NoError(suite.T(), err)
	return pgxmock.NewRows([]string{"id", "name", "database_path", "status", "contact_name",
		"contact_email", "contact_phone", "settings", "created_by", "created_at", "updated_at"}).
		AddRow(agency.ID, agency.Name, agency.DatabasePath, agency.Status,
			agency.ContactName, agency.ContactEmail, agency.ContactPhone, settings,
			agency.CreatedBy, time.Now(), time.Now())
}

func (suite *AgencyRepoTestSuite) TestCreate_Success() {
	agency := suite.newAgency()

	suite.mock.ExpectExec(`INSERT INTO agencies`).
		WithArgs(agency.ID, agency.Name, agency.DatabasePath, agency.Status,
			agency.ContactName, agency.ContactEmail, agency.ContactPhone, pgxmock.AnyArg(), agency.CreatedBy).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(suite.T(), suite.repo.Create(suite.context, agency))
}

func (suite *AgencyRepoTestSuite) TestCreate_DuplicateName() {
	agency := suite.newAgency()

	suite.mock.ExpectExec(`INSERT INTO agencies`).
		WithArgs(agency.ID, agency.Name, agency.DatabasePath, agency.Status,
			agency.ContactName, agency.ContactEmail, agency.ContactPhone, pgxmock.AnyArg(), agency.CreatedBy).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "agencies_name_key"})

	err := suite.repo.Create(suite.context, agency)

	var exists *common.TenantAlreadyExistsError
	assert.ErrorAs(suite.T(), err, &exists)
	assert.Equal(suite.T(), agency.Name, exists.Name)
}

func (suite *AgencyRepoTestSuite) TestCreate_DatabaseError() {
	agency := suite.newAgency()

	suite.mock.ExpectExec(`INSERT INTO agencies`).
		WithArgs(agency.ID, agency.Name, agency.DatabasePath, agency.Status,
			agency.ContactName, agency.ContactEmail, agency.ContactPhone, pgxmock.AnyArg(), agency.CreatedBy).
		WillReturnError(errors.New("database connection failed"))

	err := suite.repo.Create(suite.context, agency)
	assert.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "database connection failed")
}

func (suite *AgencyRepoTestSuite) TestFindByID_Success() {
	agency := suite.newAgency()

	suite.mock.ExpectQuery(`SELECT (.+) FROM agencies WHERE id = \$1`).
		WithArgs(suite.agencyID).
		WillReturnRows(suite.agencyRow(agency))

	got, err := suite.repo.FindByID(suite.context, suite.agencyID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), agency.Name, got.Name)
	assert.Equal(suite.T(), agency.DatabasePath, got.DatabasePath)
	assert.Equal(suite.T(), "INR", got.Settings.Currency)
}

func (suite *AgencyRepoTestSuite) TestFindByID_NotFound() {
	suite.mock.ExpectQuery(`SELECT (.+) FROM agencies WHERE id = \$1`).
		WithArgs(suite.agencyID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := suite.repo.FindByID(suite.context, suite.agencyID)
	assert.Nil(suite.T(), got)

	var notFound *common.TenantNotFoundError
	assert.ErrorAs(suite.T(), err, &notFound)
	assert.Equal(suite.T(), suite.agencyID, notFound.AgencyID)
}

func (suite *AgencyRepoTestSuite) TestFindByName_NotFound() {
	suite.mock.ExpectQuery(`SELECT (.+) FROM agencies WHERE name = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := suite.repo.FindByName(suite.context, "ghost")
	assert.Nil(suite.T(), got)

	var notFound *common.TenantNotFoundError
	assert.ErrorAs(suite.T(), err, &notFound)
	assert.Equal(suite.T(), "ghost", notFound.Name)
}

func (suite *AgencyRepoTestSuite) TestUpdateStatus_Success() {
	suite.mock.ExpectExec(`UPDATE agencies SET status = \$1`).
		WithArgs(models.AgencyStatusSuspended, suite.agencyID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(suite.T(), suite.repo.UpdateStatus(suite.context, suite.agencyID, models.AgencyStatusSuspended))
}

func (suite *AgencyRepoTestSuite) TestUpdateStatus_NotFound() {
	suite.mock.ExpectExec(`UPDATE agencies SET status = \$1`).
		WithArgs(models.AgencyStatusSuspended, suite.agencyID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := suite.repo.UpdateStatus(suite.context, suite.agencyID, models.AgencyStatusSuspended)

	var notFound *common.TenantNotFoundError
	assert.ErrorAs(suite.T(), err, &notFound)
}

func (suite *AgencyRepoTestSuite) TestDelete_Success() {
	suite.mock.ExpectExec(`DELETE FROM agencies WHERE id = \$1`).
		WithArgs(suite.agencyID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(suite.T(), suite.repo.Delete(suite.context, suite.agencyID))
}

func (suite *AgencyRepoTestSuite) TestDelete_NotFound() {
	suite.mock.ExpectExec(`DELETE FROM agencies WHERE id = \$1`).
		WithArgs(suite.agencyID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := suite.repo.Delete(suite.context, suite.agencyID)

	var notFound *common.TenantNotFoundError
	assert.ErrorAs(suite.T(), err, &notFound)
}

func (suite *AgencyRepoTestSuite) TestList_Success() {
	agency := suite.newAgency()

	suite.mock.ExpectQuery(`SELECT (.+) FROM agencies`).
		WithArgs(10, 0).
		WillReturnRows(suite.agencyRow(agency))

	agencies, err := suite.repo.List(suite.context, 10, 0)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), agencies, 1)
	assert.Equal(suite.T(), agency.Name, agencies[0].Name)
}

func (suite *AgencyRepoTestSuite) TestDatabasePath_Success() {
	suite.mock.ExpectQuery(`SELECT database_path FROM agencies WHERE id = \$1`).
		WithArgs(suite.agencyID).
		WillReturnRows(pgxmock.NewRows([]string{"database_path"}).AddRow("/data/agencies/acme.db"))

	path, err := suite.repo.DatabasePath(suite.context, suite.agencyID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "/data/agencies/acme.db", path)
}

func (suite *AgencyRepoTestSuite) TestDatabasePath_NotFound() {
	suite.mock.ExpectQuery(`SELECT database_path FROM agencies WHERE id = \$1`).
		WithArgs(suite.agencyID).
		WillReturnRows(pgxmock.NewRows([]string{"database_path"}))

	_, err := suite.repo.DatabasePath(suite.context, suite.agencyID)

	var notFound *common.TenantNotFoundError
	assert.ErrorAs(suite.T(), err, &notFound)
}
