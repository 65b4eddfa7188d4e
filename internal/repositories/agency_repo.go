package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"flowlytix/internal/common"
	"flowlytix/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is the subset of pgxpool.Pool the catalog repositories use.
// pgxmock satisfies it in tests.
type Database interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type AgencyRepository interface {
	Create(ctx context.Context, agency *models.Agency) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Agency, error)
	FindByName(ctx context.Context, name string) (*models.Agency, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Update(ctx context.Context, agency *models.Agency) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*models.Agency, error)
	DatabasePath(ctx context.Context, id uuid.UUID) (string, error)
}

type agencyRepo struct {
	db Database
}

func NewAgencyRepo(db Database) AgencyRepository {
	return &agencyRepo{db: db}
}

const agencyColumns = `id, name, database_path, status, contact_name, contact_email, contact_phone, settings, created_by, created_at, updated_at`

func (r *agencyRepo) Create(ctx context.Context, agency *models.Agency) error {
	settings, err := json.Marshal(agency.Settings)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO agencies (id, name, database_path, status, contact_name, contact_email, contact_phone, settings, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	_, err = r.db.Exec(ctx, query, agency.ID, agency.Name, agency.DatabasePath, agency.Status,
		agency.ContactName, agency.ContactEmail, agency.ContactPhone, settings, agency.CreatedBy)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return &common.TenantAlreadyExistsError{Name: agency.Name, DatabasePath: agency.DatabasePath}
		}
		return err
	}
	return nil
}

func (r *agencyRepo) scanAgency(row pgx.Row) (*models.Agency, error) {
	agency := &models.Agency{}
	var settings []byte
	err := row.Scan(&agency.ID, &agency.Name, &agency.DatabasePath, &agency.Status,
		&agency.ContactName, &agency.ContactEmail, &agency.ContactPhone, &settings,
		&agency.CreatedBy, &agency.CreatedAt, &agency.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &agency.Settings); err != nil {
			return nil, err
		}
	}
	return agency, nil
}

func (r *agencyRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE id = $1`
	agency, err := r.scanAgency(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &common.TenantNotFoundError{AgencyID: id}
	}
	return agency, err
}

func (r *agencyRepo) FindByName(ctx context.Context, name string) (*models.Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE name = $1`
	agency, err := r.scanAgency(r.db.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &common.TenantNotFoundError{Name: name}
	}
	return agency, err
}

func (r *agencyRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE agencies SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.TenantNotFoundError{AgencyID: id}
	}
	return nil
}

func (r *agencyRepo) Update(ctx context.Context, agency *models.Agency) error {
	settings, err := json.Marshal(agency.Settings)
	if err != nil {
		return err
	}
	query := `
		UPDATE agencies
		SET name = $1, status = $2, contact_name = $3, contact_email = $4, contact_phone = $5, settings = $6, updated_at = NOW()
		WHERE id = $7
	`
	tag, err := r.db.Exec(ctx, query, agency.Name, agency.Status,
		agency.ContactName, agency.ContactEmail, agency.ContactPhone, settings, agency.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.TenantNotFoundError{AgencyID: agency.ID}
	}
	return nil
}

func (r *agencyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM agencies WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.TenantNotFoundError{AgencyID: id}
	}
	return nil
}

func (r *agencyRepo) List(ctx context.Context, limit, offset int) ([]*models.Agency, error) {
	query := `
		SELECT ` + agencyColumns + `
		FROM agencies
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agencies []*models.Agency
	for rows.Next() {
		agency := &models.Agency{}
		var settings []byte
		if err := rows.Scan(&agency.ID, &agency.Name, &agency.DatabasePath, &agency.Status,
			&agency.ContactName, &agency.ContactEmail, &agency.ContactPhone, &settings,
			&agency.CreatedBy, &agency.CreatedAt, &agency.UpdatedAt); err != nil {
			return nil, err
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &agency.Settings); err != nil {
				return nil, err
			}
		}
		agencies = append(agencies, agency)
	}
	return agencies, rows.Err()
}

// DatabasePath resolves just the database file path for one agency; the
// connection pool uses it without loading the full record.
func (r *agencyRepo) DatabasePath(ctx context.Context, id uuid.UUID) (string, error) {
	var path string
	query := `SELECT database_path FROM agencies WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(&path)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &common.TenantNotFoundError{AgencyID: id}
	}
	return path, err
}
