package qbsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldlinehq/fsm_backend/config"
	"github.com/fieldlinehq/fsm_backend/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// statusCacheKey holds the serialized StatusResponse; admin writes and
// finished sync runs invalidate it.
const statusCacheKey = "qbsync:status"
const statusCacheTTL = 30 * time.Second

func StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var cached StatusResponse
		if ok, err := config.GetRedisObject(statusCacheKey, &cached); err == nil && ok {
			c.JSON(http.StatusOK, cached)
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := StatusResponse{
			Connection: ConnectionResponse{
				Status: models.ConnectionStatusDisconnected,
			},
			Modules: DefaultModules(),
		}
		if conn != nil {
			resp = StatusResponse{
				Connection: ConnectionResponse{
					Status:      conn.Status,
					RealmId:     conn.RealmId,
					CompanyName: conn.CompanyName,
				},
				LastSyncAt:        formatTime(conn.LastSyncAt),
				LastSuccessSyncAt: formatTime(conn.LastSuccessSyncAt),
				Modules:           DecodeModules(conn.SettingsJSON),
			}
		}

		_ = config.SetRedisObject(statusCacheKey, resp, statusCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if strings.TrimSpace(req.RealmId) == "" || strings.TrimSpace(req.AccessToken) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "realmId and accessToken are required"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		now := time.Now()
		companyName := strings.TrimSpace(req.CompanyName)
		if companyName == "" {
			companyName = req.RealmId
		}

		if conn == nil {
			conn = &models.QuickBooksConnection{
				RealmId:       req.RealmId,
				CompanyName:   companyName,
				Status:        models.ConnectionStatusConnected,
				AuthType:      "bearer",
				AuthSecretRef: req.AccessToken,
				SettingsJSON:  EncodeModules(DefaultModules()),
				UpdatedAt:     now,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			update := map[string]interface{}{
				"status":          models.ConnectionStatusConnected,
				"auth_type":       "bearer",
				"auth_secret_ref": req.AccessToken,
				"realm_id":        req.RealmId,
				"company_name":    companyName,
				"updated_at":      now,
			}
			if len(conn.SettingsJSON) == 0 {
				update["settings_json"] = EncodeModules(DefaultModules())
			}
			if err := db.Model(conn).Updates(update).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}

		_ = config.RemoveRedisKey(statusCacheKey)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func DisconnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil {
			c.JSON(http.StatusOK, gin.H{"success": true})
			return
		}

		if err := db.Model(conn).Updates(map[string]interface{}{
			"status":          models.ConnectionStatusDisconnected,
			"auth_secret_ref": "",
			"updated_at":      time.Now(),
		}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		_ = config.RemoveRedisKey(statusCacheKey)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func UpdateSettingsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())
		conn, err := getConnection(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		modules := EncodeModules(req.Modules)
		if conn == nil {
			conn = &models.QuickBooksConnection{
				Status:       models.ConnectionStatusDisconnected,
				SettingsJSON: modules,
			}
			if err := db.Create(conn).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		} else {
			if err := db.Model(conn).Updates(map[string]interface{}{
				"settings_json": modules,
				"updated_at":    time.Now(),
			}).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		}
		_ = config.RemoveRedisKey(statusCacheKey)
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func TriggerSyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB().WithContext(c.Request.Context())

		conn, err := getConnection(db)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conn == nil || conn.Status != models.ConnectionStatusConnected {
			c.JSON(http.StatusConflict, gin.H{"error": "quickbooks is not connected"})
			return
		}

		run := models.QuickBooksSyncRun{
			ConnectionId: conn.ID,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredManual,
		}
		if err := db.Create(&run).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = PublishSyncRun(c.Request.Context(), run.ID, conn.ID)

		c.JSON(http.StatusOK, gin.H{"id": run.ID})
	}
}

// CustomersHandler lists local customers with their assigned remote ids so an
// operator can inspect what the sync flow will push or has mapped.
func CustomersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if v := strings.TrimSpace(c.Query("name")); v != "" {
			name = &v
		}

		customers, err := models.GetCustomers(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": customers})
	}
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		db := config.GetDB().WithContext(c.Request.Context())

		var runs []models.QuickBooksSyncRun
		if err := db.Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		var run models.QuickBooksSyncRun
		if err := db.Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		var logs []models.QuickBooksSyncLog
		if err := db.Where("sync_run_id = ?", run.ID).Order("id desc").Find(&logs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		resp := SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Logs:            mapLogs(logs),
		}
		c.JSON(http.StatusOK, resp)
	}
}

func RetrySyncRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		db := config.GetDB().WithContext(c.Request.Context())

		var run models.QuickBooksSyncRun
		if err := db.Where("id = ?", id).Take(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newRun := models.QuickBooksSyncRun{
			ConnectionId: run.ConnectionId,
			Status:       models.SyncRunStatusQueued,
			TriggeredBy:  models.SyncTriggeredRetry,
			ParentRunId:  &run.ID,
		}
		if err := db.Create(&newRun).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		_ = PublishSyncRun(c.Request.Context(), newRun.ID, run.ConnectionId)

		c.JSON(http.StatusOK, gin.H{"id": newRun.ID})
	}
}

func getConnection(db *gorm.DB) (*models.QuickBooksConnection, error) {
	var conn models.QuickBooksConnection
	err := db.Order("id desc").Take(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conn, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.QuickBooksSyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		TriggeredBy:   run.TriggeredBy,
	}
}

func mapLogs(logs []models.QuickBooksSyncLog) []SyncLogResponse {
	out := make([]SyncLogResponse, 0, len(logs))
	for _, logRow := range logs {
		out = append(out, SyncLogResponse{
			ID:            logRow.ID,
			OperationType: logRow.OperationType,
			EntityType:    logRow.EntityType,
			LocalEntityId: logRow.LocalEntityId,
			QuickbooksId:  logRow.QuickbooksId,
			Direction:     logRow.Direction,
			Status:        logRow.Status,
			ErrorMessage:  logRow.ErrorMessage,
		})
	}
	return out
}
