package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flowlytix/internal/caching"
	"flowlytix/internal/common"
	"flowlytix/internal/models"
	"flowlytix/internal/repositories"

	"github.com/google/uuid"
)

// Provisioner materializes a tenant database. *tenant.Provisioner
// satisfies it.
type Provisioner interface {
	InitializeAgencyDatabase(ctx context.Context, agency *models.Agency) error
}

// PoolController is the slice of the connection pool the agency lifecycle
// needs: dropping handles when an agency is suspended or destroyed.
type PoolController interface {
	Evict(agencyID uuid.UUID) bool
}

// DatabaseArchiver stores a copy of a tenant database file before
// destructive operations. The MinIO backup service satisfies it.
type DatabaseArchiver interface {
	ArchiveDatabase(ctx context.Context, agency *models.Agency) (string, error)
}

type AgencyService interface {
	Register(ctx context.Context, req *RegisterAgencyRequest) (*models.Agency, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agency, error)
	GetByName(ctx context.Context, name string) (*models.Agency, error)
	List(ctx context.Context, limit, offset int) ([]*models.Agency, error)
	Update(ctx context.Context, id uuid.UUID, req *UpdateAgencyRequest) (*models.Agency, error)
	Suspend(ctx context.Context, id uuid.UUID) error
	Activate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type agencyService struct {
	agencyRepo  repositories.AgencyRepository
	provisioner Provisioner
	pool        PoolController
	archiver    DatabaseArchiver
	cache       caching.CacheService
	dataDir     string
}

func NewAgencyService(agencyRepo repositories.AgencyRepository, provisioner Provisioner, pool PoolController, archiver DatabaseArchiver, cache caching.CacheService, dataDir string) AgencyService {
	return &agencyService{
		agencyRepo:  agencyRepo,
		provisioner: provisioner,
		pool:        pool,
		archiver:    archiver,
		cache:       cache,
		dataDir:     dataDir,
	}
}

type RegisterAgencyRequest struct {
	Name         string                `json:"name" validate:"required"`
	DatabasePath string                `json:"database_path,omitempty"`
	ContactName  *string               `json:"contact_name,omitempty"`
	ContactEmail *string               `json:"contact_email,omitempty"`
	ContactPhone *string               `json:"contact_phone,omitempty"`
	Settings     models.AgencySettings `json:"settings"`
	CreatedBy    *uuid.UUID            `json:"created_by,omitempty"`
}

// Register creates the catalog row and provisions the agency's database.
// If provisioning fails the catalog row is rolled back best-effort so a
// retry starts clean.
func (s *agencyService) Register(ctx context.Context, req *RegisterAgencyRequest) (*models.Agency, error) {
	if err := common.ValidateRequiredString(req.Name, "name"); err != nil {
		return nil, err
	}

	path := req.DatabasePath
	if path == "" {
		path = filepath.Join(s.dataDir, slugify(req.Name)+".db")
	}

	if _, err := s.agencyRepo.FindByName(ctx, req.Name); err == nil {
		return nil, &common.TenantAlreadyExistsError{Name: req.Name}
	}

	agency := &models.Agency{
		ID:           uuid.New(),
		Name:         req.Name,
		DatabasePath: path,
		Status:       models.AgencyStatusActive,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Settings:     req.Settings,
		CreatedBy:    req.CreatedBy,
		CreatedAt:    time.Now(),
	}

	if err := s.agencyRepo.Create(ctx, agency); err != nil {
		return nil, err
	}

	if err := s.provisioner.InitializeAgencyDatabase(ctx, agency); err != nil {
		if delErr := s.agencyRepo.Delete(ctx, agency.ID); delErr != nil {
			log.Printf("rolling back catalog row for agency %q: %v", agency.Name, delErr)
		}
		return nil, err
	}

	s.cacheSet(ctx, agency)
	return agency, nil
}

func (s *agencyService) GetByID(ctx context.Context, id uuid.UUID) (*models.Agency, error) {
	if cached, err := s.cache.GetAgency(ctx, id); cached != nil {
		return cached, nil
	} else if err != nil {
		// Cache errors never fail the lookup.
		log.Printf("agency cache read for %s: %v", id, err)
	}

	agency, err := s.agencyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, agency)
	return agency, nil
}

func (s *agencyService) GetByName(ctx context.Context, name string) (*models.Agency, error) {
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	return s.agencyRepo.FindByName(ctx, name)
}

func (s *agencyService) List(ctx context.Context, limit, offset int) ([]*models.Agency, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return s.agencyRepo.List(ctx, limit, offset)
}

// UpdateAgencyRequest carries the mutable catalog fields; nil means leave
// unchanged. The database path and status have their own dedicated flows.
type UpdateAgencyRequest struct {
	Name         *string                `json:"name,omitempty"`
	ContactName  *string                `json:"contact_name,omitempty"`
	ContactEmail *string                `json:"contact_email,omitempty"`
	ContactPhone *string                `json:"contact_phone,omitempty"`
	Settings     *models.AgencySettings `json:"settings,omitempty"`
}

func (s *agencyService) Update(ctx context.Context, id uuid.UUID, req *UpdateAgencyRequest) (*models.Agency, error) {
	agency, err := s.agencyRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if err := common.ValidateRequiredString(*req.Name, "name"); err != nil {
			return nil, err
		}
		agency.Name = *req.Name
	}
	if req.ContactName != nil {
		agency.ContactName = req.ContactName
	}
	if req.ContactEmail != nil {
		agency.ContactEmail = req.ContactEmail
	}
	if req.ContactPhone != nil {
		agency.ContactPhone = req.ContactPhone
	}
	if req.Settings != nil {
		agency.Settings = *req.Settings
	}

	if err := s.agencyRepo.Update(ctx, agency); err != nil {
		return nil, err
	}
	s.cacheDelete(ctx, id)
	return agency, nil
}

// Suspend marks the agency SUSPENDED and drops its pooled handle so no
// further work reaches its database.
func (s *agencyService) Suspend(ctx context.Context, id uuid.UUID) error {
	if err := s.agencyRepo.UpdateStatus(ctx, id, models.AgencyStatusSuspended); err != nil {
		return err
	}
	s.pool.Evict(id)
	s.cacheDelete(ctx, id)
	return nil
}

func (s *agencyService) Activate(ctx context.Context, id uuid.UUID) error {
	if err := s.agencyRepo.UpdateStatus(ctx, id, models.AgencyStatusActive); err != nil {
		return err
	}
	s.cacheDelete(ctx, id)
	return nil
}

// Delete is the explicit destructive path: archive the database file,
// evict the handle, remove the file, and delete the catalog row. The
// archive must succeed before anything is destroyed.
func (s *agencyService) Delete(ctx context.Context, id uuid.UUID) error {
	agency, err := s.agencyRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if s.archiver != nil {
		location, err := s.archiver.ArchiveDatabase(ctx, agency)
		if err != nil {
			return fmt.Errorf("archive before delete: %w", err)
		}
		log.Printf("Archived database for agency %q to %s", agency.Name, location)
	}

	s.pool.Evict(id)

	if err := s.agencyRepo.Delete(ctx, id); err != nil {
		return err
	}
	for _, f := range []string{agency.DatabasePath, agency.DatabasePath + "-wal", agency.DatabasePath + "-shm"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Printf("removing %s: %v", f, err)
		}
	}
	s.cacheDelete(ctx, id)
	return nil
}

func (s *agencyService) cacheSet(ctx context.Context, agency *models.Agency) {
	if err := s.cache.SetAgency(ctx, agency, 10*time.Minute); err != nil {
		log.Printf("agency cache write for %s: %v", agency.ID, err)
	}
}

func (s *agencyService) cacheDelete(ctx context.Context, id uuid.UUID) {
	if err := s.cache.DeleteAgency(ctx, id); err != nil {
		log.Printf("agency cache invalidation for %s: %v", id, err)
	}
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	return strings.Trim(slug, "-")
}
