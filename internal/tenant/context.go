package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flowlytix/internal/models"

	"github.com/google/uuid"
)

// DefaultContextStackDepth bounds the previous-context stack.
const DefaultContextStackDepth = 10

// AgencyContext is the active-tenant pointer for one logical session.
type AgencyContext struct {
	AgencyID    uuid.UUID `json:"agency_id"`
	UserID      uuid.UUID `json:"user_id"`
	AgencyName  string    `json:"agency_name"`
	ActivatedAt time.Time `json:"activated_at"`
}

// Catalog is the tenant lookup the context manager validates against.
type Catalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Agency, error)
}

// ContextManager tracks the current agency context and a bounded stack of
// prior contexts for one-step switch-back. It is an explicitly constructed
// instance, not a package singleton; callers that serve concurrent
// sessions should hold one manager per session (request paths carry the
// agency through context.Context instead, see internal/common).
type ContextManager struct {
	mu       sync.Mutex
	current  *AgencyContext
	previous []*AgencyContext
	maxDepth int

	catalog Catalog
	pool    *Pool
}

func NewContextManager(catalog Catalog, pool *Pool, maxDepth int) *ContextManager {
	if maxDepth <= 0 {
		maxDepth = DefaultContextStackDepth
	}
	return &ContextManager{
		catalog:  catalog,
		pool:     pool,
		maxDepth: maxDepth,
	}
}

// SetContext validates the agency against the catalog, ensures its
// database handle exists, pushes any current context onto the previous
// stack, and installs the new context. Fails if the agency is unknown or
// not ACTIVE.
func (m *ContextManager) SetContext(ctx context.Context, agencyID, userID uuid.UUID) (*AgencyContext, error) {
	agency, err := m.catalog.FindByID(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	if !agency.IsActive() {
		return nil, fmt.Errorf("agency %q is %s, cannot activate", agency.Name, agency.Status)
	}

	// Lazy activation: the handle must exist before the switch succeeds.
	if _, err := m.pool.GetConnection(ctx, agencyID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.previous = append(m.previous, m.current)
		if len(m.previous) > m.maxDepth {
			m.previous = m.previous[len(m.previous)-m.maxDepth:]
		}
	}

	m.current = &AgencyContext{
		AgencyID:    agencyID,
		UserID:      userID,
		AgencyName:  agency.Name,
		ActivatedAt: time.Now(),
	}
	return m.copyCurrentLocked(), nil
}

// SwitchToPreviousContext pops the most recent prior context and makes it
// current again. Returns false if the stack is empty.
func (m *ContextManager) SwitchToPreviousContext() (*AgencyContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.previous) == 0 {
		return nil, false
	}
	m.current = m.previous[len(m.previous)-1]
	m.previous = m.previous[:len(m.previous)-1]
	return m.copyCurrentLocked(), true
}

// CurrentContext returns a copy of the current context, or nil.
func (m *ContextManager) CurrentContext() *AgencyContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyCurrentLocked()
}

// CurrentAgencyID returns the active agency id, if any.
func (m *ContextManager) CurrentAgencyID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return uuid.Nil, false
	}
	return m.current.AgencyID, true
}

// Reset clears all context state. Called at process teardown and between
// tests; the manager is never implicitly recreated mid-run.
func (m *ContextManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.previous = nil
}

func (m *ContextManager) copyCurrentLocked() *AgencyContext {
	if m.current == nil {
		return nil
	}
	c := *m.current
	return &c
}
