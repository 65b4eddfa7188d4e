// Package tenant owns the per-agency physical databases: the connection
// pool over their handles, the schema provisioner that materializes them,
// and the active-agency context manager.
package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"flowlytix/internal/common"
	"flowlytix/internal/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// PathResolver resolves an agency id to its database file path. The
// catalog agency repository satisfies it.
type PathResolver interface {
	DatabasePath(ctx context.Context, id uuid.UUID) (string, error)
}

// EventRecorder receives best-effort pool and provisioning audit events.
// The catalog audit repository satisfies it; a nil recorder disables
// auditing.
type EventRecorder interface {
	RecordConnectionEvent(ctx context.Context, event *models.ConnectionEvent) error
	RecordDatabaseEvent(ctx context.Context, event *models.DatabaseEvent) error
}

// Conn is one open tenant database handle. It is owned exclusively by the
// Pool and destroyed on shutdown or eviction.
type Conn struct {
	AgencyID uuid.UUID
	OpenedAt time.Time
	LastUsed time.Time

	db   *sql.DB
	open bool
}

// DB exposes the underlying handle for repositories.
func (c *Conn) DB() *sql.DB { return c.db }

// PoolStats is a point-in-time view of the pool for observability.
type PoolStats struct {
	TotalConnections  int `json:"total_connections"`
	ActiveConnections int `json:"active_connections"`
}

// Pool keeps at most one live connection per agency, lazily opened and
// reused across requests. The handle map is shared mutable state; every
// lookup and insert runs under the mutex so a race cannot open duplicate
// handles for the same agency.
type Pool struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*Conn
	paths PathResolver
	audit EventRecorder
}

func NewPool(paths PathResolver, audit EventRecorder) *Pool {
	return &Pool{
		conns: make(map[uuid.UUID]*Conn),
		paths: paths,
		audit: audit,
	}
}

// GetConnection returns the agency's open handle, opening it first if
// needed. Repeated calls without an intervening shutdown or eviction
// return the identical handle. Opening creates the parent directory if it
// is absent; no schema work happens here.
func (p *Pool) GetConnection(ctx context.Context, agencyID uuid.UUID) (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[agencyID]; ok && conn.open {
		conn.LastUsed = time.Now()
		return conn, nil
	}

	path, err := p.paths.DatabasePath(ctx, agencyID)
	if err != nil {
		return nil, err
	}

	db, err := openTenantDB(path)
	if err != nil {
		p.recordConnectionEvent(ctx, agencyID, models.ConnectionEventFailed, err.Error())
		return nil, &common.ConnectionError{AgencyID: agencyID, Cause: err}
	}

	now := time.Now()
	conn := &Conn{
		AgencyID: agencyID,
		OpenedAt: now,
		LastUsed: now,
		db:       db,
		open:     true,
	}
	p.conns[agencyID] = conn
	p.recordConnectionEvent(ctx, agencyID, models.ConnectionEventOpened, path)
	return conn, nil
}

// Handle is the repositories.TenantDatabases implementation.
func (p *Pool) Handle(ctx context.Context, agencyID uuid.UUID) (*sql.DB, error) {
	conn, err := p.GetConnection(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	return conn.db, nil
}

// Evict closes and removes one agency's handle. It reports whether a
// handle was present.
func (p *Pool) Evict(agencyID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, ok := p.conns[agencyID]
	if !ok {
		return false
	}
	p.closeLocked(conn, models.ConnectionEventEvicted)
	delete(p.conns, agencyID)
	return true
}

// EvictIdle closes handles unused for longer than maxIdle and returns how
// many were evicted. Run from the background sweep.
func (p *Pool) EvictIdle(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	evicted := 0
	for id, conn := range p.conns {
		if conn.LastUsed.Before(cutoff) {
			p.closeLocked(conn, models.ConnectionEventEvicted)
			delete(p.conns, id)
			evicted++
		}
	}
	return evicted
}

// Shutdown closes all handles and clears the pool. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, conn := range p.conns {
		p.closeLocked(conn, models.ConnectionEventClosed)
		delete(p.conns, id)
	}
}

// Stats returns total and active handle counts.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := PoolStats{TotalConnections: len(p.conns)}
	for _, conn := range p.conns {
		if conn.open {
			stats.ActiveConnections++
		}
	}
	return stats
}

func (p *Pool) closeLocked(conn *Conn, event string) {
	if !conn.open {
		return
	}
	if err := conn.db.Close(); err != nil {
		log.Printf("closing tenant database for agency %s: %v", conn.AgencyID, err)
	}
	conn.open = false
	p.recordConnectionEvent(context.Background(), conn.AgencyID, event, "")
}

func (p *Pool) recordConnectionEvent(ctx context.Context, agencyID uuid.UUID, event, detail string) {
	if p.audit == nil {
		return
	}
	rec := &models.ConnectionEvent{AgencyID: agencyID, Event: event}
	if detail != "" {
		rec.Detail = &detail
	}
	if err := p.audit.RecordConnectionEvent(ctx, rec); err != nil {
		log.Printf("recording %s event for agency %s: %v", event, agencyID, err)
	}
}

// openTenantDB opens one SQLite file with WAL journaling. A single
// underlying connection keeps writes serialized the way SQLite expects.
func openTenantDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA foreign_keys = ON`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}
