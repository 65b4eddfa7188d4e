package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"flowlytix/internal/caching"
	"flowlytix/internal/config"
	"flowlytix/internal/handlers"
	background "flowlytix/internal/jobs/background"
	"flowlytix/internal/repositories"
	"flowlytix/internal/services"
	"flowlytix/internal/tenant"
	"flowlytix/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg := loadConfig()

	// Catalog database connection
	if cfg.Catalog.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}
	catalogPool, err := database.NewPool(cfg.Catalog.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to catalog database: %v", err)
	}
	defer catalogPool.Close()

	if err := database.EnsureCatalogSchema(context.Background(), catalogPool); err != nil {
		log.Fatalf("Failed to ensure catalog schema: %v", err)
	}

	// Create repositories
	agencyRepo := repositories.NewAgencyRepo(catalogPool)
	auditRepo := repositories.NewAgencyAuditRepo(catalogPool)

	// Create cache service
	var cacheSvc caching.CacheService
	if cfg.Redis.Addr != "" {
		cacheSvc = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	} else {
		log.Println("No Redis address configured, running without cache")
		cacheSvc = caching.NoopCacheService{}
	}

	// Optional backup service for archived database files
	var archiver services.DatabaseArchiver
	if cfg.Backup.Endpoint != "" {
		backupSvc, err := services.NewMinioBackupService(cfg.Backup.Endpoint, cfg.Backup.AccessKey,
			cfg.Backup.SecretKey, cfg.Backup.Bucket, cfg.Backup.UseSSL)
		if err != nil {
			log.Fatalf("Failed to initialize backup service: %v", err)
		}
		if err := backupSvc.EnsureBucketExists(context.Background()); err != nil {
			log.Fatalf("Failed to ensure backup bucket: %v", err)
		}
		archiver = backupSvc
	} else {
		log.Println("No backup endpoint configured, agency deletion will not archive databases")
	}

	// Tenant database plumbing
	tenantPool := tenant.NewPool(agencyRepo, auditRepo)
	defer tenantPool.Shutdown()

	provisioner := tenant.NewProvisioner(auditRepo)
	removed, err := provisioner.RecoverPartial(context.Background(), cfg.TenantStore.DataDir)
	if err != nil {
		log.Printf("Partial database recovery failed: %v", err)
	} else if len(removed) > 0 {
		log.Printf("Removed %d partially provisioned database file(s)", len(removed))
	}

	contextMgr := tenant.NewContextManager(agencyRepo, tenantPool, cfg.TenantStore.ContextStackDepth)

	lotRepo := repositories.NewLotBatchRepo(tenantPool)

	// Create services
	agencySvc := services.NewAgencyService(agencyRepo, provisioner, tenantPool, archiver, cacheSvc, cfg.TenantStore.DataDir)
	allocationSvc := services.NewAllocationService(lotRepo)

	// Background jobs
	scheduler := background.NewJobScheduler(agencyRepo, lotRepo, tenantPool, provisioner,
		cfg.TenantStore.DataDir, cfg.TenantStore.MaxIdle())
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create handlers
	agencyHandlers := handlers.NewAgencyHandlers(agencySvc, contextMgr)
	auditHandlers := handlers.NewAuditHandlers(auditRepo)
	lotHandlers := handlers.NewLotHandlers(allocationSvc)
	healthHandlers := handlers.NewHealthHandlers(tenantPool, version)

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints
	e.GET("/health", healthHandlers.Health)
	e.GET("/health/pool", healthHandlers.PoolStats)

	// API routes
	v1 := e.Group("/v1")

	// Agency lifecycle
	v1.POST("/agencies", agencyHandlers.RegisterAgency)
	v1.GET("/agencies", agencyHandlers.ListAgencies)
	v1.GET("/agencies/:id", agencyHandlers.GetAgency)
	v1.PUT("/agencies/:id", agencyHandlers.UpdateAgency)
	v1.POST("/agencies/:id/suspend", agencyHandlers.SuspendAgency)
	v1.POST("/agencies/:id/activate", agencyHandlers.ActivateAgency)
	v1.DELETE("/agencies/:id", agencyHandlers.DeleteAgency)

	// Audit trails
	v1.GET("/agencies/:id/events/databases", auditHandlers.ListDatabaseEvents)
	v1.GET("/agencies/:id/events/connections", auditHandlers.ListConnectionEvents)

	// Agency context switching
	v1.POST("/context", agencyHandlers.SetContext)
	v1.POST("/context/previous", agencyHandlers.SwitchToPreviousContext)
	v1.GET("/context", agencyHandlers.GetCurrentContext)

	// Lot batches, scoped to one agency's database
	v1.POST("/agencies/:agencyId/lots", lotHandlers.CreateLot)
	v1.GET("/agencies/:agencyId/lots/by-number", lotHandlers.GetLotByNumber)
	v1.GET("/agencies/:agencyId/lots/:id", lotHandlers.GetLot)
	v1.GET("/agencies/:agencyId/lots/fifo", lotHandlers.SelectFifoLots)
	v1.POST("/agencies/:agencyId/lots/:id/reserve", lotHandlers.ReserveQuantity)
	v1.POST("/agencies/:agencyId/lots/:id/release", lotHandlers.ReleaseReservedQuantity)
	v1.POST("/agencies/:agencyId/lots/:id/consume", lotHandlers.ConsumeQuantity)
	v1.POST("/agencies/:agencyId/lots/:id/adjust", lotHandlers.AdjustQuantity)
	v1.PUT("/agencies/:agencyId/lots/:id/status", lotHandlers.UpdateLotStatus)

	log.Printf("🚀 Flowlytix server v%s starting on %s", version, cfg.Server.Addr)
	log.Printf("Tenant databases under %s", cfg.TenantStore.DataDir)

	e.Logger.Fatal(e.Start(cfg.Server.Addr))
}

// loadConfig reads the optional TOML config file and applies environment
// overrides on top, so container deployments can run without a file.
func loadConfig() *config.Config {
	cfg := config.Default()
	if path := os.Getenv("FLOWLYTIX_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", path, err)
		}
		cfg = loaded
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Catalog.DatabaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.TenantStore.DataDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.Backup.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.Backup.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.Backup.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.Backup.Bucket = v
	}
	if os.Getenv("MINIO_USE_SSL") == "true" {
		cfg.Backup.UseSSL = true
	}

	return cfg
}
