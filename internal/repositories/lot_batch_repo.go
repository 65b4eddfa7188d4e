package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"flowlytix/internal/models"

	"github.com/google/uuid"
)

// ErrQuantityConflict is returned when a quantity write loses a race: the
// row no longer holds the quantities the caller read. Callers re-fetch and
// retry; the repository never merges concurrent writes.
var ErrQuantityConflict = errors.New("lot quantities changed concurrently")

// TenantDatabases supplies the open database handle for one agency.
// *tenant.Pool satisfies it.
type TenantDatabases interface {
	Handle(ctx context.Context, agencyID uuid.UUID) (*sql.DB, error)
}

type LotBatchRepository interface {
	Create(ctx context.Context, lot *models.LotBatch) error
	GetByID(ctx context.Context, agencyID, id uuid.UUID) (*models.LotBatch, error)
	GetByLotNumber(ctx context.Context, agencyID, productID uuid.UUID, lotNumber string) (*models.LotBatch, error)
	ListActiveByProduct(ctx context.Context, agencyID, productID uuid.UUID) ([]*models.LotBatch, error)
	ListActiveExpired(ctx context.Context, agencyID uuid.UUID, asOf time.Time) ([]*models.LotBatch, error)
	ApplyQuantities(ctx context.Context, lot *models.LotBatch, expectedRemaining, expectedReserved int) error
	UpdateStatus(ctx context.Context, agencyID, id uuid.UUID, status string, updatedBy uuid.UUID) error
}

type lotBatchRepo struct {
	dbs TenantDatabases
}

func NewLotBatchRepo(dbs TenantDatabases) LotBatchRepository {
	return &lotBatchRepo{dbs: dbs}
}

const lotColumns = `id, lot_number, batch_number, product_id, agency_id, manufacturing_date, expiry_date,
	quantity, remaining_quantity, reserved_quantity, status, supplier_id, supplier_lot_code,
	created_by, updated_by, created_at, updated_at`

func (r *lotBatchRepo) Create(ctx context.Context, lot *models.LotBatch) error {
	db, err := r.dbs.Handle(ctx, lot.AgencyID)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO lot_batches (` + lotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var expiry interface{}
	if lot.ExpiryDate != nil {
		expiry = lot.ExpiryDate.UTC().Format(time.RFC3339)
	}
	var supplierID interface{}
	if lot.SupplierID != nil {
		supplierID = lot.SupplierID.String()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, query,
		lot.ID.String(), lot.LotNumber, lot.BatchNumber, lot.ProductID.String(), lot.AgencyID.String(),
		lot.ManufacturingDate.UTC().Format(time.RFC3339), expiry,
		lot.Quantity, lot.RemainingQuantity, lot.ReservedQuantity, lot.Status,
		supplierID, lot.SupplierLotCode,
		lot.CreatedBy.String(), lot.UpdatedBy.String(), now, now)
	return err
}

func (r *lotBatchRepo) GetByID(ctx context.Context, agencyID, id uuid.UUID) (*models.LotBatch, error) {
	db, err := r.dbs.Handle(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + lotColumns + ` FROM lot_batches WHERE id = ?`
	lot, err := scanLot(db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lot %s: %w", id, sql.ErrNoRows)
	}
	return lot, err
}

func (r *lotBatchRepo) GetByLotNumber(ctx context.Context, agencyID, productID uuid.UUID, lotNumber string) (*models.LotBatch, error) {
	db, err := r.dbs.Handle(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + lotColumns + ` FROM lot_batches WHERE product_id = ? AND lot_number = ?`
	return scanLot(db.QueryRowContext(ctx, query, productID.String(), lotNumber))
}

// ListActiveByProduct returns ACTIVE lots for one product in FIFO order:
// oldest manufacturing date first, lot number as the deterministic
// tie-break.
func (r *lotBatchRepo) ListActiveByProduct(ctx context.Context, agencyID, productID uuid.UUID) ([]*models.LotBatch, error) {
	db, err := r.dbs.Handle(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + lotColumns + `
		FROM lot_batches
		WHERE product_id = ? AND status = ?
		ORDER BY manufacturing_date ASC, lot_number ASC
	`
	rows, err := db.QueryContext(ctx, query, productID.String(), models.LotStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

func (r *lotBatchRepo) ListActiveExpired(ctx context.Context, agencyID uuid.UUID, asOf time.Time) ([]*models.LotBatch, error) {
	db, err := r.dbs.Handle(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT ` + lotColumns + `
		FROM lot_batches
		WHERE status = ? AND expiry_date IS NOT NULL AND expiry_date < ?
		ORDER BY expiry_date ASC
	`
	rows, err := db.QueryContext(ctx, query, models.LotStatusActive, asOf.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLots(rows)
}

// ApplyQuantities writes lot quantity state, guarded by the quantities the
// caller read. Zero rows affected means another writer got there first and
// the caller's arithmetic is stale.
func (r *lotBatchRepo) ApplyQuantities(ctx context.Context, lot *models.LotBatch, expectedRemaining, expectedReserved int) error {
	db, err := r.dbs.Handle(ctx, lot.AgencyID)
	if err != nil {
		return err
	}
	query := `
		UPDATE lot_batches
		SET quantity = ?, remaining_quantity = ?, reserved_quantity = ?, status = ?, updated_by = ?, updated_at = ?
		WHERE id = ? AND remaining_quantity = ? AND reserved_quantity = ?
	`
	res, err := db.ExecContext(ctx, query,
		lot.Quantity, lot.RemainingQuantity, lot.ReservedQuantity, lot.Status,
		lot.UpdatedBy.String(), time.Now().UTC().Format(time.RFC3339),
		lot.ID.String(), expectedRemaining, expectedReserved)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrQuantityConflict
	}
	return nil
}

func (r *lotBatchRepo) UpdateStatus(ctx context.Context, agencyID, id uuid.UUID, status string, updatedBy uuid.UUID) error {
	db, err := r.dbs.Handle(ctx, agencyID)
	if err != nil {
		return err
	}
	query := `UPDATE lot_batches SET status = ?, updated_by = ?, updated_at = ? WHERE id = ?`
	res, err := db.ExecContext(ctx, query, status, updatedBy.String(), time.Now().UTC().Format(time.RFC3339), id.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("lot %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLot(row rowScanner) (*models.LotBatch, error) {
	lot := &models.LotBatch{}
	var (
		id, productID, agencyID, createdBy, updatedBy string
		manufacturing, createdAt, updatedAt           string
		expiry, supplierID                            sql.NullString
	)
	err := row.Scan(&id, &lot.LotNumber, &lot.BatchNumber, &productID, &agencyID,
		&manufacturing, &expiry,
		&lot.Quantity, &lot.RemainingQuantity, &lot.ReservedQuantity, &lot.Status,
		&supplierID, &lot.SupplierLotCode,
		&createdBy, &updatedBy, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if lot.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if lot.ProductID, err = uuid.Parse(productID); err != nil {
		return nil, err
	}
	if lot.AgencyID, err = uuid.Parse(agencyID); err != nil {
		return nil, err
	}
	if lot.CreatedBy, err = uuid.Parse(createdBy); err != nil {
		return nil, err
	}
	if lot.UpdatedBy, err = uuid.Parse(updatedBy); err != nil {
		return nil, err
	}
	if lot.ManufacturingDate, err = time.Parse(time.RFC3339, manufacturing); err != nil {
		return nil, err
	}
	if lot.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if lot.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, err
	}
	if expiry.Valid {
		t, err := time.Parse(time.RFC3339, expiry.String)
		if err != nil {
			return nil, err
		}
		lot.ExpiryDate = &t
	}
	if supplierID.Valid {
		sid, err := uuid.Parse(supplierID.String)
		if err != nil {
			return nil, err
		}
		lot.SupplierID = &sid
	}
	return lot, nil
}

func collectLots(rows *sql.Rows) ([]*models.LotBatch, error) {
	var lots []*models.LotBatch
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// IsLotNotFound distinguishes a missing lot from other read failures
// without callers importing database/sql.
func IsLotNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
