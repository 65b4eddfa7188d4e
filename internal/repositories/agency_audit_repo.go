package repositories

import (
	"context"

	"flowlytix/internal/models"

	"github.com/google/uuid"
)

// AgencyAuditRepository records provisioning and connection events for
// observability. Writers treat failures as non-fatal; auditing must never
// block the operation it describes.
type AgencyAuditRepository interface {
	RecordDatabaseEvent(ctx context.Context, event *models.DatabaseEvent) error
	RecordConnectionEvent(ctx context.Context, event *models.ConnectionEvent) error
	ListDatabaseEvents(ctx context.Context, agencyID uuid.UUID, limit int) ([]*models.DatabaseEvent, error)
	ListConnectionEvents(ctx context.Context, agencyID uuid.UUID, limit int) ([]*models.ConnectionEvent, error)
}

type agencyAuditRepo struct {
	db Database
}

func NewAgencyAuditRepo(db Database) AgencyAuditRepository {
	return &agencyAuditRepo{db: db}
}

func (r *agencyAuditRepo) RecordDatabaseEvent(ctx context.Context, event *models.DatabaseEvent) error {
	query := `
		INSERT INTO agency_databases (id, agency_id, database_path, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query, event.ID, event.AgencyID, event.DatabasePath, event.Status, event.Detail)
	return err
}

func (r *agencyAuditRepo) RecordConnectionEvent(ctx context.Context, event *models.ConnectionEvent) error {
	query := `
		INSERT INTO agency_database_connections (id, agency_id, event, detail, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, query, event.ID, event.AgencyID, event.Event, event.Detail)
	return err
}

func (r *agencyAuditRepo) ListDatabaseEvents(ctx context.Context, agencyID uuid.UUID, limit int) ([]*models.DatabaseEvent, error) {
	query := `
		SELECT id, agency_id, database_path, status, detail, created_at
		FROM agency_databases
		WHERE agency_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, agencyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.DatabaseEvent
	for rows.Next() {
		event := &models.DatabaseEvent{}
		if err := rows.Scan(&event.ID, &event.AgencyID, &event.DatabasePath, &event.Status, &event.Detail, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *agencyAuditRepo) ListConnectionEvents(ctx context.Context, agencyID uuid.UUID, limit int) ([]*models.ConnectionEvent, error) {
	query := `
		SELECT id, agency_id, event, detail, created_at
		FROM agency_database_connections
		WHERE agency_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, agencyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.ConnectionEvent
	for rows.Next() {
		event := &models.ConnectionEvent{}
		if err := rows.Scan(&event.ID, &event.AgencyID, &event.Event, &event.Detail, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
