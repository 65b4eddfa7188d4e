package repositories

import (
	"context"
	"testing"
	"time"

	"flowlytix/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type AgencyAuditRepoTestSuite struct {
	suite.Suite
	mock     pgxmock.PgxPoolIface
	repo     AgencyAuditRepository
	agencyID uuid.UUID
	context  context.Context
}

func (suite *AgencyAuditRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewAgencyAuditRepo(mock)
	suite.agencyID = uuid.New()
	suite.context = context.Background()
}

func (suite *AgencyAuditRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestAgencyAuditRepoTestSuite(t *testing.T) {
	suite.Run(t, new(AgencyAuditRepoTestSuite))
}

func (suite *AgencyAuditRepoTestSuite) TestRecordDatabaseEvent_AssignsID() {
	event := &models.DatabaseEvent{
		AgencyID:     suite.agencyID,
		DatabasePath: "/data/agencies/acme.db",
		Status:       models.ProvisionStatusSuccess,
	}

	suite.mock.ExpectExec(`INSERT INTO agency_databases`).
		WithArgs(pgxmock.AnyArg(), event.AgencyID, event.DatabasePath, event.Status, event.Detail).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(suite.T(), suite.repo.RecordDatabaseEvent(suite.context, event))
	assert.NotEqual(suite.T(), uuid.Nil, event.ID)
}

func (suite *AgencyAuditRepoTestSuite) TestRecordConnectionEvent() {
	detail := "/data/agencies/acme.db"
	event := &models.ConnectionEvent{
		AgencyID: suite.agencyID,
		Event:    models.ConnectionEventOpened,
		Detail:   &detail,
	}

	suite.mock.ExpectExec(`INSERT INTO agency_database_connections`).
		WithArgs(pgxmock.AnyArg(), event.AgencyID, event.Event, event.Detail).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(suite.T(), suite.repo.RecordConnectionEvent(suite.context, event))
}

func (suite *AgencyAuditRepoTestSuite) TestListDatabaseEvents() {
	rows := pgxmock.NewRows([]string{"id", "agency_id", "database_path", "status", "detail", "created_at"}).
		AddRow(uuid.New(), suite.agencyID, "/data/agencies/acme.db", models.ProvisionStatusSuccess, nil, time.Now()).
		AddRow(uuid.New(), suite.agencyID, "/data/agencies/acme.db", models.ProvisionStatusFailed, nil, time.Now())

	suite.mock.ExpectQuery(`SELECT (.+) FROM agency_databases`).
		WithArgs(suite.agencyID, 50).
		WillReturnRows(rows)

	events, err := suite.repo.ListDatabaseEvents(suite.context, suite.agencyID, 50)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), events, 2)
	assert.Equal(suite.T(), models.ProvisionStatusSuccess, events[0].Status)
}

func (suite *AgencyAuditRepoTestSuite) TestListConnectionEvents() {
	rows := pgxmock.NewRows([]string{"id", "agency_id", "event", "detail", "created_at"}).
		AddRow(uuid.New(), suite.agencyID, models.ConnectionEventOpened, nil, time.Now())

	suite.mock.ExpectQuery(`SELECT (.+) FROM agency_database_connections`).
		WithArgs(suite.agencyID, 25).
		WillReturnRows(rows)

	events, err := suite.repo.ListConnectionEvents(suite.context, suite.agencyID, 25)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), events, 1)
	assert.Equal(suite.T(), models.ConnectionEventOpened, events[0].Event)
}
