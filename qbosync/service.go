package qbosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/models"
)

// watermarkOverlap is subtracted from the last successful finish time
// when building the incremental window, so records written while the
// previous run was finishing are not missed. Upserts make the re-fetch
// harmless.
const watermarkOverlap = 5 * time.Minute

// lockTTL bounds how long a crashed run can keep its entity class locked.
const lockTTL = 30 * time.Minute

// transactionEntities are the synced transaction types, always pulled in
// this order under one shared watermark.
var transactionEntities = []string{
	"Invoice", "Estimate", "Payment", "Bill", "BillPayment",
	"Purchase", "SalesReceipt", "CreditMemo", "VendorCredit", "JournalEntry",
}

type queryAPI interface {
	Query(ctx context.Context, realmId string, accessToken string, entity string, since *time.Time) ([]json.RawMessage, error)
}

type tokenSource interface {
	GetValidToken(ctx context.Context) (realmId string, accessToken string, err error)
}

// Service drives full sync runs: watermark, token, paged fetch,
// normalize, upsert, ledger.
type Service struct {
	db     *gorm.DB
	store  syncStore
	client queryAPI
	tokens tokenSource
	locker *redislock.Client
	log    *logrus.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, locker *redislock.Client) *Service {
	return &Service{
		db:     db,
		store:  gormSyncStore{db: db},
		client: NewClient(),
		tokens: NewTokenManager(db),
		locker: locker,
		log:    config.GetLogger(),
		now:    time.Now,
	}
}

// RunCustomersSync pulls Customer records updated since the watermark and
// upserts them. The returned run row is final; on error it records the
// failure.
func (s *Service) RunCustomersSync(ctx context.Context, triggeredBy string) (*models.SyncRun, error) {
	return s.run(ctx, models.EntityClassCustomers, triggeredBy, s.syncCustomers)
}

// RunTransactionsSync pulls all ten transaction entity types in fixed
// order under one run row and one shared watermark.
func (s *Service) RunTransactionsSync(ctx context.Context, triggeredBy string) (*models.SyncRun, error) {
	return s.run(ctx, models.EntityClassTransactions, triggeredBy, s.syncTransactions)
}

func (s *Service) run(ctx context.Context, entityClass string, triggeredBy string, body func(ctx context.Context, run *models.SyncRun, since *time.Time) error) (*models.SyncRun, error) {
	release, err := s.acquireRunLock(ctx, entityClass)
	if err != nil {
		return nil, err
	}
	defer release()

	since, err := s.watermark(ctx, entityClass)
	if err != nil {
		return nil, err
	}
	run := &models.SyncRun{
		EntityClass:   entityClass,
		TriggeredBy:   triggeredBy,
		CorrelationId: uuid.NewString(),
		StartedAt:     s.now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"entity_class":   entityClass,
		"triggered_by":   triggeredBy,
		"correlation_id": run.CorrelationId,
		"since":          since,
	}).Info("sync run started")

	runErr := body(ctx, run, since)
	s.finishRun(ctx, run, runErr)
	if runErr != nil {
		return run, runErr
	}
	s.log.WithFields(logrus.Fields{
		"correlation_id": run.CorrelationId,
		"fetched":        run.FetchedCount,
		"upserted":       run.UpsertedCount,
	}).Info("sync run finished")
	return run, nil
}

func (s *Service) syncCustomers(ctx context.Context, run *models.SyncRun, since *time.Time) error {
	realmId, accessToken, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		return err
	}
	raws, err := s.client.Query(ctx, realmId, accessToken, "Customer", since)
	if err != nil {
		return fmt.Errorf("fetch Customer: %w", err)
	}
	run.FetchedCount += len(raws)
	for _, raw := range raws {
		row, err := NormalizeCustomer(raw, realmId)
		if err != nil {
			config.LogError(s.log, "qbosync", "syncCustomers", "skip unkeyable record", nil, err)
			continue
		}
		if _, err := s.store.UpsertCustomer(ctx, row); err != nil {
			return fmt.Errorf("upsert Customer %s: %w", row.QboId, err)
		}
		run.UpsertedCount++
	}
	return nil
}

func (s *Service) syncTransactions(ctx context.Context, run *models.SyncRun, since *time.Time) error {
	realmId, accessToken, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		return err
	}
	for _, entity := range transactionEntities {
		raws, err := s.client.Query(ctx, realmId, accessToken, entity, since)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", entity, err)
		}
		run.FetchedCount += len(raws)
		for _, raw := range raws {
			header, lines, err := NormalizeTransaction(raw, entity, realmId)
			if err != nil {
				config.LogError(s.log, "qbosync", "syncTransactions", "skip unkeyable "+entity, nil, err)
				continue
			}
			if _, err := s.store.UpsertTransaction(ctx, header, lines); err != nil {
				return fmt.Errorf("upsert %s %s: %w", entity, header.QboId, err)
			}
			run.UpsertedCount++
		}
	}
	return nil
}

func (s *Service) finishRun(ctx context.Context, run *models.SyncRun, runErr error) {
	now := s.now()
	run.FinishedAt = &now
	run.Success = runErr == nil
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorText = &msg
	}
	if err := s.store.FinishRun(ctx, run); err != nil {
		config.LogError(s.log, "qbosync", "finishRun", run.CorrelationId, nil, err)
	}
}

func (s *Service) watermark(ctx context.Context, entityClass string) (*time.Time, error) {
	last, err := s.store.LastSuccessfulFinish(ctx, entityClass)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	t := last.Add(-watermarkOverlap)
	return &t, nil
}

// acquireRunLock takes the per-entity-class advisory lock. Without redis
// configured the lock degrades to a no-op and callers rely on operator
// discipline.
func (s *Service) acquireRunLock(ctx context.Context, entityClass string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lock, err := s.locker.Obtain(ctx, "qbo-sync:"+entityClass, lockTTL, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrSyncInProgress
		}
		return nil, err
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			config.LogError(s.log, "qbosync", "acquireRunLock", entityClass, nil, err)
		}
	}, nil
}

// Status reports connection state, token expiry and the most recent run.
func (s *Service) Status(ctx context.Context) (*SyncStatus, error) {
	conn, err := gormConnectionStore{db: s.db}.Latest(ctx)
	if err != nil {
		return nil, err
	}
	lastRun, err := models.LatestSyncRun(ctx, s.db, "")
	if err != nil {
		return nil, err
	}
	status := &SyncStatus{LastRun: lastRun}
	if conn != nil {
		status.Connected = true
		status.RealmId = conn.RealmId
		expiry := conn.ExpiresAt
		status.TokenExpiry = &expiry
	}
	return status, nil
}
