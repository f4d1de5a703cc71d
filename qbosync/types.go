package qbosync

import (
	"errors"
	"time"

	"bitbucket.org/onpointdev/ops_backend/models"
)

var (
	// ErrNoConnection means no OAuth token pair has ever been stored;
	// the interactive authorization flow must be completed first.
	ErrNoConnection = errors.New("no quickbooks connection saved yet; complete the oauth flow first")

	// ErrMissingCredentials means the OAuth client env vars are not set.
	// Checked before any network call.
	ErrMissingCredentials = errors.New("missing QBO env vars: QBO_CLIENT_ID, QBO_CLIENT_SECRET, QBO_REDIRECT_URI")

	// ErrRateLimited means the query endpoint returned a rate-limit
	// response twice for the same page (one retry is tolerated).
	ErrRateLimited = errors.New("quickbooks rate limit exceeded")

	// ErrSyncInProgress means another run for the same entity class holds
	// the advisory lock.
	ErrSyncInProgress = errors.New("a sync for this entity class is already running")

	errMissingId = errors.New("record id missing")
)

// SyncStatus is the snapshot returned by Service.Status.
type SyncStatus struct {
	Connected   bool            `json:"connected"`
	RealmId     string          `json:"realm_id,omitempty"`
	TokenExpiry *time.Time      `json:"token_expiry,omitempty"`
	LastRun     *models.SyncRun `json:"last_run,omitempty"`
}

// SyncRunResult is the summary handed back to the caller of a sync trigger.
type SyncRunResult struct {
	RunId         int    `json:"run_id"`
	EntityClass   string `json:"entity_class"`
	Fetched       int    `json:"fetched"`
	Upserted      int    `json:"upserted"`
	CorrelationId string `json:"correlation_id"`
}
