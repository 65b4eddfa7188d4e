package background

import (
	"context"
	"log"
	"sync"
	"time"

	"flowlytix/internal/models"
	"flowlytix/internal/repositories"
	"flowlytix/internal/tenant"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// JobScheduler manages the periodic maintenance jobs: expired-lot
// sweeping, idle connection eviction, and partial-database recovery.
type JobScheduler struct {
	scheduler   gocron.Scheduler
	agencyRepo  repositories.AgencyRepository
	lotRepo     repositories.LotBatchRepository
	pool        *tenant.Pool
	provisioner *tenant.Provisioner
	dataDir     string
	maxIdle     time.Duration
	jobs        map[string]gocron.Job
	mu          sync.RWMutex
}

// NewJobScheduler creates a new job scheduler
func NewJobScheduler(agencyRepo repositories.AgencyRepository, lotRepo repositories.LotBatchRepository,
	pool *tenant.Pool, provisioner *tenant.Provisioner, dataDir string, maxIdle time.Duration) *JobScheduler {

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:   scheduler,
		agencyRepo:  agencyRepo,
		lotRepo:     lotRepo,
		pool:        pool,
		provisioner: provisioner,
		dataDir:     dataDir,
		maxIdle:     maxIdle,
		jobs:        make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	// Expired lot sweep - every 30 minutes
	expiryJob, err := js.scheduler.NewJob(
		gocron.DurationJob(30*time.Minute),
		gocron.NewTask(js.sweepExpiredLots, context.Background()),
		gocron.WithName("expired-lot-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create expired-lot sweep job: %v", err)
	} else {
		js.jobs["expired-lot-sweep"] = expiryJob
	}

	// Idle connection eviction - every 15 minutes
	idleJob, err := js.scheduler.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(js.evictIdleConnections),
		gocron.WithName("idle-connection-eviction"),
	)
	if err != nil {
		log.Printf("Failed to create idle eviction job: %v", err)
	} else {
		js.jobs["idle-connection-eviction"] = idleJob
	}

	// Partial database recovery scan - every hour
	recoveryJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.recoverPartialDatabases, context.Background()),
		gocron.WithName("partial-database-recovery"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create recovery job: %v", err)
	} else {
		js.jobs["partial-database-recovery"] = recoveryJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// sweepExpiredLots marks ACTIVE lots past their expiry date as EXPIRED
// across all active agencies.
func (js *JobScheduler) sweepExpiredLots(ctx context.Context) error {
	log.Printf("Starting expired lot sweep")

	agencies, err := js.agencyRepo.List(ctx, 1000, 0)
	if err != nil {
		log.Printf("Failed to list agencies for expiry sweep: %v", err)
		return err
	}

	now := time.Now()
	for _, agency := range agencies {
		if !agency.IsActive() {
			continue
		}

		expired, err := js.lotRepo.ListActiveExpired(ctx, agency.ID, now)
		if err != nil {
			log.Printf("Failed to list expired lots for agency %s: %v", agency.ID, err)
			continue
		}

		for _, lot := range expired {
			if err := js.lotRepo.UpdateStatus(ctx, agency.ID, lot.ID, models.LotStatusExpired, uuid.Nil); err != nil {
				log.Printf("Failed to expire lot %s for agency %s: %v", lot.ID, agency.ID, err)
			}
		}
		if len(expired) > 0 {
			log.Printf("Expired %d lots for agency %s", len(expired), agency.Name)
		}
	}

	log.Printf("Completed expired lot sweep")
	return nil
}

// evictIdleConnections closes tenant handles unused beyond the idle
// threshold.
func (js *JobScheduler) evictIdleConnections() error {
	evicted := js.pool.EvictIdle(js.maxIdle)
	if evicted > 0 {
		log.Printf("Evicted %d idle tenant connections", evicted)
	}
	return nil
}

// recoverPartialDatabases deletes database files a crashed provisioning
// run left behind.
func (js *JobScheduler) recoverPartialDatabases(ctx context.Context) error {
	removed, err := js.provisioner.RecoverPartial(ctx, js.dataDir)
	if err != nil {
		log.Printf("Partial database recovery scan failed: %v", err)
		return err
	}
	if len(removed) > 0 {
		log.Printf("Recovery removed %d partial databases", len(removed))
	}
	return nil
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := make(map[string]interface{})
	status["total_jobs"] = len(js.jobs)
	jobs := make([]string, 0, len(js.jobs))

	for name := range js.jobs {
		jobs = append(jobs, name)
	}

	status["jobs"] = jobs

	return status
}
