package qbosync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/models"
)

const oauthStateTTL = 10 * time.Minute

// StatusHandler reports connection and last-run state.
func StatusHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := svc.Status(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// ConnectHandler starts the OAuth flow by redirecting to the consent page.
func ConnectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		authURL, state, err := BuildAuthURL()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		// Best-effort replay protection; without redis the state round
		// trip is not verified.
		if setErr := config.SetRedisObject("qbo-oauth-state:"+state, true, oauthStateTTL); setErr != nil {
			config.LogError(config.GetLogger(), "qbosync", "ConnectHandler", "store oauth state", nil, setErr)
		}
		c.Redirect(http.StatusTemporaryRedirect, authURL)
	}
}

// CallbackHandler finishes the OAuth flow: it validates the echoed state
// when possible and exchanges the code for a stored token pair.
func CallbackHandler(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Query("code")
		realmId := c.Query("realmId")
		state := c.Query("state")
		if code == "" || realmId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and realmId are required"})
			return
		}
		if state != "" && config.GetRedisDB() != nil {
			var seen bool
			found, err := config.GetRedisObject("qbo-oauth-state:"+state, &seen)
			if err == nil && !found {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth state"})
				return
			}
			_ = config.RemoveRedisKey("qbo-oauth-state:" + state)
		}
		if err := tokens.ExchangeCode(c.Request.Context(), code, realmId); err != nil {
			if errors.Is(err, ErrMissingCredentials) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"connected": true, "realm_id": realmId})
	}
}

// SyncCustomersHandler triggers a customer sync run.
func SyncCustomersHandler(svc *Service) gin.HandlerFunc {
	return syncTriggerHandler(svc.RunCustomersSync)
}

// SyncTransactionsHandler triggers a transaction sync run across all
// transaction entity types.
func SyncTransactionsHandler(svc *Service) gin.HandlerFunc {
	return syncTriggerHandler(svc.RunTransactionsSync)
}

func syncTriggerHandler(run func(ctx context.Context, triggeredBy string) (*models.SyncRun, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		runRow, err := run(c.Request.Context(), models.SyncTriggeredManual)
		if err != nil {
			status := http.StatusBadGateway
			switch {
			case errors.Is(err, ErrSyncInProgress):
				status = http.StatusConflict
			case errors.Is(err, ErrNoConnection), errors.Is(err, ErrMissingCredentials):
				status = http.StatusServiceUnavailable
			}
			body := gin.H{"error": err.Error()}
			if runRow != nil {
				body["run_id"] = runRow.ID
				body["correlation_id"] = runRow.CorrelationId
			}
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, SyncRunResult{
			RunId:         runRow.ID,
			EntityClass:   runRow.EntityClass,
			Fetched:       runRow.FetchedCount,
			Upserted:      runRow.UpsertedCount,
			CorrelationId: runRow.CorrelationId,
		})
	}
}

// SyncRunsHandler lists run history, newest first.
func SyncRunsHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		runs, err := models.GetSyncRuns(c.Request.Context(), svc.db, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, runs)
	}
}

// SyncRunsExportHandler streams the run history as an xlsx workbook.
func SyncRunsExportHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
		runs, err := models.GetSyncRuns(c.Request.Context(), svc.db, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		book, err := ExportSyncRuns(runs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="sync_runs.xlsx"`)
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		if err := book.Write(c.Writer); err != nil {
			config.LogError(config.GetLogger(), "qbosync", "SyncRunsExportHandler", "write workbook", nil, err)
		}
	}
}
