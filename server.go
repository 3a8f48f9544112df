package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prestonprussell/ITLicensingBreakdown/appctx"
	"github.com/prestonprussell/ITLicensingBreakdown/config"
	"github.com/prestonprussell/ITLicensingBreakdown/entrasync"
	"github.com/prestonprussell/ITLicensingBreakdown/models"
	"github.com/prestonprussell/ITLicensingBreakdown/models/reports"
	"github.com/prestonprussell/ITLicensingBreakdown/utils"
	"github.com/prestonprussell/ITLicensingBreakdown/workflow"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

type analyzeRequest struct {
	VendorType     string                          `json:"vendor_type"`
	Files          []models.SourceFile             `json:"files"`
	Invoice        *models.Invoice                 `json:"invoice"`
	UserEdits      []models.UserEdit               `json:"user_updates"`
	BranchAnswers  []models.BranchAssignmentAnswer `json:"branch_item_updates"`
	SupportAnswers []models.SupportAnswer          `json:"support_updates"`
}

func analyzeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req analyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		vendor, err := models.ParseVendorType(strings.ToLower(strings.TrimSpace(req.VendorType)))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		setVendorContext(c, vendor)

		cid, _ := appctx.GetString(c.Request.Context(), appctx.ContextKeyCorrelationId)
		result, err := workflow.RunAllocation(c.Request.Context(), &workflow.RunInput{
			Vendor:         vendor,
			Files:          req.Files,
			Invoice:        req.Invoice,
			UserEdits:      req.UserEdits,
			BranchAnswers:  req.BranchAnswers,
			SupportAnswers: req.SupportAnswers,
			CorrelationId:  cid,
		})
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func vendorFromPath(c *gin.Context) (models.VendorType, bool) {
	vendor, err := models.ParseVendorType(strings.ToLower(strings.TrimSpace(c.Param("vendor"))))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	setVendorContext(c, vendor)
	return vendor, true
}

// setVendorContext stamps the resolved vendor into the request context so
// the error logger can attach it to failures below this point.
func setVendorContext(c *gin.Context, vendor models.VendorType) {
	c.Request = c.Request.WithContext(appctx.Set(c.Request.Context(), appctx.ContextKeyVendor, string(vendor)))
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vendor, ok := vendorFromPath(c)
		if !ok {
			return
		}
		activeOnly := !strings.EqualFold(c.Query("include_inactive"), "true")
		users, err := models.ListDirectoryUsers(c.Request.Context(), vendor, activeOnly)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"vendor": vendor, "users": users})
	}
}

func saveUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vendor, ok := vendorFromPath(c)
		if !ok {
			return
		}
		var req struct {
			Users []models.DirectoryUserInput `json:"users"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := models.UpsertDirectoryUsers(c.Request.Context(), vendor, req.Users); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"vendor": vendor, "saved": len(req.Users)})
	}
}

func deactivateUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vendor, ok := vendorFromPath(c)
		if !ok {
			return
		}
		var req struct {
			Emails []string `json:"emails"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		deactivated, err := models.DeactivateDirectoryUsers(c.Request.Context(), vendor, req.Emails)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"vendor": vendor, "deactivated": deactivated})
	}
}

func syncUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vendor, ok := vendorFromPath(c)
		if !ok {
			return
		}
		if vendor != models.VendorTypeIntegricom {
			c.JSON(http.StatusBadRequest, gin.H{"error": "directory sync is only available for the integricom vendor"})
			return
		}
		source, err := entrasync.NewGraphClient()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := entrasync.SyncDirectory(c.Request.Context(), source)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func exportExcelHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Summary []reports.BreakdownRow `json:"summary"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename=breakdown.xlsx")
		if err := reports.WriteBreakdownExcel(c.Writer, req.Summary); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write workbook"})
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server first; app endpoints 503 until the DB is ready.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(appctx.Set(c.Request.Context(), appctx.ContextKeyCorrelationId, cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	r.Use(cors.New(corsConfig))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/api/analyze", analyzeHandler())
	r.POST("/api/export/xlsx", exportExcelHandler())
	r.GET("/api/:vendor/users", listUsersHandler())
	r.POST("/api/:vendor/users", saveUsersHandler())
	r.POST("/api/:vendor/users/deactivate", deactivateUsersHandler())
	r.POST("/api/:vendor/users/sync", syncUsersHandler())
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	logger.WithFields(logrus.Fields{"port": port}).Info("server started")

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs only requests that accumulated gin errors, tagged
// with the vendor and correlation id resolved earlier in the request.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		fields := logrus.Fields{"path": c.Request.URL.Path}
		if cid, ok := appctx.GetString(c.Request.Context(), appctx.ContextKeyCorrelationId); ok {
			fields["correlation_id"] = cid
		}
		if vendor, ok := appctx.GetString(c.Request.Context(), appctx.ContextKeyVendor); ok {
			fields["vendor"] = vendor
		}
		logger.WithFields(fields).Error(c.Errors.String())
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
