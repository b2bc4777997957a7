package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/timeledger/timeledger/pkg/apiserver/handlers"
	"github.com/timeledger/timeledger/pkg/apiserver/middleware"
	"github.com/timeledger/timeledger/pkg/config"
	"github.com/timeledger/timeledger/pkg/identity"
	"github.com/timeledger/timeledger/pkg/store/postgres"
	redisclient "github.com/timeledger/timeledger/pkg/store/redis"
)

type Server struct {
	router *gin.Engine
	db     *postgres.Store
	redis  *redisclient.Client
	idp    *identity.Client
	cfg    *config.Config
	logger *zap.Logger
}

func NewServer(db *postgres.Store, redis *redisclient.Client, idp *identity.Client, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		db:     db,
		redis:  redis,
		idp:    idp,
		cfg:    cfg,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gormDB := s.db.DB()
	users := postgres.NewUserRepository(gormDB)
	orgs := postgres.NewOrganizationRepository(gormDB)
	customers := postgres.NewCustomerRepository(gormDB)
	sows := postgres.NewSOWRepository(gormDB)
	projects := postgres.NewProjectRepository(gormDB)
	timeEntries := postgres.NewTimeEntryRepository(gormDB)
	timesheets := postgres.NewTimesheetRepository(gormDB)
	billing := postgres.NewBillingRepository(gormDB)

	// A nil *Client must stay a nil Limiter, not a non-nil interface
	// wrapping a nil pointer.
	var limiter middleware.Limiter
	if s.redis != nil {
		limiter = s.redis
	}

	api := r.Group("/api/v1")
	{
		api.Use(middleware.RateLimit(s.cfg.RateLimit, limiter, s.logger))
		api.Use(middleware.Auth(s.cfg.Auth, users, s.logger))

		orgHandler := handlers.NewOrganizationHandler(orgs, s.logger)
		api.GET("/organization", orgHandler.Get)
		api.PUT("/organization", orgHandler.Update)

		userHandler := handlers.NewUserHandler(users, s.idp, s.logger)
		api.GET("/users", userHandler.List)
		api.POST("/users", userHandler.Create)
		api.GET("/users/:id", userHandler.Get)
		api.PUT("/users/:id", userHandler.Update)

		customerHandler := handlers.NewCustomerHandler(customers, s.logger)
		api.GET("/customers", customerHandler.List)
		api.POST("/customers", customerHandler.Create)
		api.GET("/customers/:id", customerHandler.Get)
		api.PUT("/customers/:id", customerHandler.Update)
		api.DELETE("/customers/:id", customerHandler.Delete)

		sowHandler := handlers.NewSOWHandler(sows, customers, s.logger)
		api.GET("/sows", sowHandler.List)
		api.POST("/sows", sowHandler.Create)
		api.GET("/sows/:id", sowHandler.Get)
		api.PUT("/sows/:id", sowHandler.Update)
		api.DELETE("/sows/:id", sowHandler.Delete)

		projectHandler := handlers.NewProjectHandler(projects, users, customers, sows, s.logger)
		api.GET("/projects", projectHandler.List)
		api.POST("/projects", projectHandler.Create)
		api.GET("/projects/:id", projectHandler.Get)
		api.PUT("/projects/:id", projectHandler.Update)
		api.GET("/projects/:id/members", projectHandler.ListMembers)
		api.POST("/projects/:id/members", projectHandler.AddMember)
		api.DELETE("/projects/:id/members/:userID", projectHandler.RemoveMember)

		timeEntryHandler := handlers.NewTimeEntryHandler(timeEntries, projects, s.logger)
		api.GET("/time-entries", timeEntryHandler.List)
		api.POST("/time-entries", timeEntryHandler.Create)
		api.GET("/time-entries/:id", timeEntryHandler.Get)
		api.PUT("/time-entries/:id", timeEntryHandler.Update)
		api.DELETE("/time-entries/:id", timeEntryHandler.Delete)
		api.POST("/time-entries/:id/submit", timeEntryHandler.Submit)
		api.POST("/time-entries/:id/approve", timeEntryHandler.Approve)
		api.POST("/time-entries/:id/reject", timeEntryHandler.Reject)

		timesheetHandler := handlers.NewTimesheetHandler(timesheets, projects, s.logger)
		api.GET("/timesheets", timesheetHandler.List)
		api.POST("/timesheets", timesheetHandler.Create)
		api.GET("/timesheets/:id", timesheetHandler.Get)
		api.POST("/timesheets/:id/submit", timesheetHandler.Submit)
		api.POST("/timesheets/:id/approve", timesheetHandler.Approve)
		api.POST("/timesheets/:id/reject", timesheetHandler.Reject)

		billingHandler := handlers.NewBillingHandler(billing, projects, s.logger)
		api.GET("/billing/batches", billingHandler.ListBatches)
		api.POST("/billing/batches", billingHandler.CreateBatch)
		api.GET("/billing/batches/:id", billingHandler.GetBatch)
		api.DELETE("/billing/batches/:id", billingHandler.DeleteBatch)
		api.PUT("/billing/batches/:id/status", billingHandler.UpdateStatus)
		api.POST("/billing/batches/:id/items", billingHandler.AddItem)
		api.DELETE("/billing/batches/:id/items/:itemID", billingHandler.RemoveItem)
		api.GET("/billing/stats", billingHandler.Stats)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
