// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/aetflow/aet-backend/internal/config"
	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/handlers"
	"github.com/aetflow/aet-backend/internal/middleware"
	"github.com/aetflow/aet-backend/internal/notifier"
	"github.com/aetflow/aet-backend/internal/repository"
	"github.com/aetflow/aet-backend/internal/services"
	"github.com/aetflow/aet-backend/internal/utils"
	"github.com/aetflow/aet-backend/internal/websocket"
)

// Dependencies are the long-lived components built in main and shared by
// every handler.
type Dependencies struct {
	Resolver *conflict.Resolver
	Notifier *notifier.Notifier
	Hub      *websocket.Hub
	Gatherer prometheus.Gatherer
	Logger   *logrus.Entry

	// Invalidator is nil when no candidate cache is configured.
	Invalidator services.CandidateInvalidator
}

func Initialize(db *gorm.DB, cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	policy, err := cfg.Policy.Policy()
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	// Initialize services
	validationService := services.NewValidationService(deps.Resolver, policy)
	vehicleService := services.NewVehicleService(db)
	requestService := services.NewLicenseRequestService(db, deps.Resolver, policy, deps.Notifier, logger).
		WithCandidateInvalidator(deps.Invalidator)
	issuedLicenseService := services.NewIssuedLicenseService(db, repository.NewIssuedLicenseRepository(db), deps.Notifier, logger).
		WithCandidateInvalidator(deps.Invalidator)

	// Initialize handlers
	validationHandler := handlers.NewValidationHandler(validationService)
	vehicleHandler := handlers.NewVehicleHandler(vehicleService)
	requestHandler := handlers.NewLicenseRequestHandler(requestService)
	issuedLicenseHandler := handlers.NewIssuedLicenseHandler(issuedLicenseService)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, websocket.NewUpgrader(cfg.WebSocket.AllowedOrigins, logger.WithField("component", "websocket")))

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	utils.SetJWTIssuer(cfg.JWT.Issuer)

	generalLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.GeneralPerSecond), cfg.RateLimit.GeneralBurst)
	validationLimiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimit.ValidationPerSecond), cfg.RateLimit.ValidationBurst)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger.WithField("component", "http")))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(generalLimiter.Middleware())
	r.Use(middleware.AuditLogMiddleware(db))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "healthy",
			"version":           "1.0.0",
			"strategy":          policy.Strategy,
			"threshold_days":    policy.ThresholdDays,
			"websocket_clients": deps.Hub.ClientCount(),
		})
	})

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		v1.GET("/ws", wsHandler.Serve)
		v1.GET("/plates/normalize", validationHandler.NormalizePlate)

		// Stateless validation, open to integrators
		validation := v1.Group("/validation")
		validation.Use(validationLimiter.Middleware())
		{
			validation.POST("/classify", validationHandler.Classify)
			validation.POST("/composition", validationHandler.ValidateComposition)
			validation.POST("/states", validationHandler.ValidateStates)
		}

		vehicles := v1.Group("/vehicles")
		vehicles.Use(middleware.AuthRequired())
		{
			vehicles.POST("", vehicleHandler.CreateVehicle)
			vehicles.GET("", vehicleHandler.ListVehicles)
			vehicles.GET("/:plate", vehicleHandler.GetVehicle)
		}

		requests := v1.Group("/license-requests")
		requests.Use(middleware.AuthRequired())
		{
			requests.POST("", requestHandler.CreateLicenseRequest)
			requests.GET("", requestHandler.ListLicenseRequests)
			requests.GET("/:id", requestHandler.GetLicenseRequest)
			requests.POST("/:id/validate", validationLimiter.Middleware(), requestHandler.ValidateLicenseRequest)
			requests.POST("/:id/submit", requestHandler.SubmitLicenseRequest)
			requests.PUT("/:id/states/:state", middleware.AdminRequired(), requestHandler.UpdateStateStatus)
		}

		licenses := v1.Group("/issued-licenses")
		licenses.Use(middleware.AuthRequired())
		{
			licenses.GET("", issuedLicenseHandler.ListIssuedLicenses)
			licenses.GET("/:id", issuedLicenseHandler.GetIssuedLicense)
			licenses.PUT("/:id/cancel", middleware.AdminRequired(), issuedLicenseHandler.CancelIssuedLicense)
		}
	}

	return r, nil
}
