package tenant

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"flowlytix/internal/common"
	"flowlytix/internal/models"
)

//go:embed tenant_schema.sql
var tenantSchema string

// CurrentSchemaVersion stamps every freshly provisioned tenant database.
const CurrentSchemaVersion = 1

// ErrDatabaseExists guards against re-provisioning: materializing a schema
// over an existing file is undefined and must be decided by the caller.
var ErrDatabaseExists = errors.New("tenant database file already exists")

// Provisioner materializes a full tenant schema into a new physical
// database file, atomically, with a version stamp.
type Provisioner struct {
	audit EventRecorder
}

func NewProvisioner(audit EventRecorder) *Provisioner {
	return &Provisioner{audit: audit}
}

// InitializeAgencyDatabase creates the agency's database file, applies the
// ordered schema, writes the single schema_version row, and inserts a
// denormalized copy of the agency's catalog record so the tenant database
// is self-describing. On any failure the partial file is removed
// best-effort and a ProvisioningError wraps the cause.
//
// Runs exactly once per agency; an existing file fails with
// ErrDatabaseExists wrapped in the ProvisioningError.
func (p *Provisioner) InitializeAgencyDatabase(ctx context.Context, agency *models.Agency) error {
	if agency == nil {
		return errors.New("agency is required")
	}
	if !agency.IsActive() {
		return &common.TenantNotFoundError{AgencyID: agency.ID, Name: agency.Name}
	}

	if _, err := os.Stat(agency.DatabasePath); err == nil {
		return p.fail(ctx, agency, ErrDatabaseExists, false)
	}

	if err := os.MkdirAll(filepath.Dir(agency.DatabasePath), 0o755); err != nil {
		return p.fail(ctx, agency, err, false)
	}

	if err := p.materialize(ctx, agency); err != nil {
		return p.fail(ctx, agency, err, true)
	}

	// Sanity check: the file must exist and be non-empty.
	info, err := os.Stat(agency.DatabasePath)
	if err != nil {
		return p.fail(ctx, agency, err, true)
	}
	if info.Size() == 0 {
		return p.fail(ctx, agency, errors.New("database file is empty after provisioning"), true)
	}

	p.recordDatabaseEvent(ctx, agency, models.ProvisionStatusSuccess, "")
	log.Printf("Provisioned database for agency %q at %s", agency.Name, agency.DatabasePath)
	return nil
}

func (p *Provisioner) materialize(ctx context.Context, agency *models.Agency) error {
	db, err := openTenantDB(agency.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tenantSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	checksum := sha256.Sum256([]byte(tenantSchema))
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_version (version, description, checksum, applied_at, applied_by)
		VALUES (?, ?, ?, ?, ?)
	`, CurrentSchemaVersion, "initial tenant schema", hex.EncodeToString(checksum[:]), now, provisionAppliedBy(agency))
	if err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}

	settings, err := json.Marshal(agency.Settings)
	if err != nil {
		return err
	}
	var createdBy interface{}
	if agency.CreatedBy != nil {
		createdBy = agency.CreatedBy.String()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO agencies (id, name, database_path, status, contact_name, contact_email, contact_phone, settings, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, agency.ID.String(), agency.Name, agency.DatabasePath, agency.Status,
		agency.ContactName, agency.ContactEmail, agency.ContactPhone, string(settings),
		createdBy, agency.CreatedAt.UTC().Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("insert agency self record: %w", err)
	}

	return tx.Commit()
}

func (p *Provisioner) fail(ctx context.Context, agency *models.Agency, cause error, cleanup bool) error {
	if cleanup {
		removeDatabaseFiles(agency.DatabasePath)
	}
	p.recordDatabaseEvent(ctx, agency, models.ProvisionStatusFailed, cause.Error())
	return &common.ProvisioningError{
		AgencyID:     agency.ID,
		DatabasePath: agency.DatabasePath,
		Cause:        cause,
	}
}

func (p *Provisioner) recordDatabaseEvent(ctx context.Context, agency *models.Agency, status, detail string) {
	if p.audit == nil {
		return
	}
	event := &models.DatabaseEvent{
		AgencyID:     agency.ID,
		DatabasePath: agency.DatabasePath,
		Status:       status,
	}
	if detail != "" {
		event.Detail = &detail
	}
	if err := p.audit.RecordDatabaseEvent(ctx, event); err != nil {
		log.Printf("recording provisioning event for agency %s: %v", agency.ID, err)
	}
}

// recoveryGracePeriod protects in-flight provisioning from the recovery
// sweep: a file this young may belong to a transaction that has not
// committed its schema_version row yet.
const recoveryGracePeriod = 5 * time.Minute

// RecoverPartial scans dataDir for tenant database files left behind by a
// crash between file creation and cleanup: any .db file without exactly
// one readable schema_version row is deleted. Returns the removed paths.
// Run at startup, before the pool serves connections, and periodically
// from the scheduler; files younger than recoveryGracePeriod are left
// alone so a provisioning run in progress is never swept.
func (p *Provisioner) RecoverPartial(ctx context.Context, dataDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dataDir, "*.db"))
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < recoveryGracePeriod {
			continue
		}
		if isProvisioned(ctx, path) {
			continue
		}
		removeDatabaseFiles(path)
		removed = append(removed, path)
		log.Printf("Removed partial tenant database %s", path)
	}
	return removed, nil
}

func isProvisioned(ctx context.Context, path string) bool {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return false
	}
	defer db.Close()

	var count int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&count)
	return err == nil && count == 1
}

// removeDatabaseFiles deletes the database file plus its WAL sidecars.
func removeDatabaseFiles(path string) {
	for _, f := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Printf("removing %s: %v", f, err)
		}
	}
}

func provisionAppliedBy(agency *models.Agency) string {
	if agency.CreatedBy != nil {
		return agency.CreatedBy.String()
	}
	return "system"
}
