package qbosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/onpointdev/ops_backend/config"
	"bitbucket.org/onpointdev/ops_backend/models"
)

type fakeSyncStore struct {
	lastSuccess  *time.Time
	runs         []*models.SyncRun
	customers    []*models.QboCustomer
	transactions []*models.QboTransaction
	lineCounts   []int
	nextId       int
	upsertErr    error
}

func (s *fakeSyncStore) CreateRun(ctx context.Context, run *models.SyncRun) error {
	s.nextId++
	run.ID = s.nextId
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeSyncStore) FinishRun(ctx context.Context, run *models.SyncRun) error {
	return nil
}

func (s *fakeSyncStore) LastSuccessfulFinish(ctx context.Context, entityClass string) (*time.Time, error) {
	return s.lastSuccess, nil
}

func (s *fakeSyncStore) UpsertCustomer(ctx context.Context, row *models.QboCustomer) (int, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.customers = append(s.customers, row)
	return len(s.customers), nil
}

func (s *fakeSyncStore) UpsertTransaction(ctx context.Context, header *models.QboTransaction, lines []models.QboTransactionLine) (int, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.transactions = append(s.transactions, header)
	s.lineCounts = append(s.lineCounts, len(lines))
	return len(s.transactions), nil
}

type fakeQueryAPI struct {
	records  map[string][]json.RawMessage
	entities []string
	sinces   []*time.Time
	err      error
}

func (q *fakeQueryAPI) Query(ctx context.Context, realmId string, accessToken string, entity string, since *time.Time) ([]json.RawMessage, error) {
	q.entities = append(q.entities, entity)
	q.sinces = append(q.sinces, since)
	if q.err != nil {
		return nil, q.err
	}
	return q.records[entity], nil
}

type fakeTokenSource struct {
	err error
}

func (t fakeTokenSource) GetValidToken(ctx context.Context) (string, string, error) {
	if t.err != nil {
		return "", "", t.err
	}
	return "realm1", "tok", nil
}

func newTestService(store *fakeSyncStore, api *fakeQueryAPI, tokens fakeTokenSource, now time.Time) *Service {
	return &Service{
		store:  store,
		client: api,
		tokens: tokens,
		log:    config.GetLogger(),
		now:    func() time.Time { return now },
	}
}

func TestRunCustomersSync_FirstRunHasNoWatermark(t *testing.T) {
	store := &fakeSyncStore{}
	api := &fakeQueryAPI{records: map[string][]json.RawMessage{
		"Customer": {json.RawMessage(`{"Id": "1"}`), json.RawMessage(`{"Id": "2"}`)},
	}}
	svc := newTestService(store, api, fakeTokenSource{}, time.Now())

	run, err := svc.RunCustomersSync(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunCustomersSync: %v", err)
	}
	if len(api.sinces) != 1 || api.sinces[0] != nil {
		t.Errorf("first run must fetch full history, sinces = %v", api.sinces)
	}
	if run.FetchedCount != 2 || run.UpsertedCount != 2 {
		t.Errorf("counts = %d/%d", run.FetchedCount, run.UpsertedCount)
	}
	if !run.Success || run.FinishedAt == nil {
		t.Errorf("run not finalized: %+v", run)
	}
	if run.EntityClass != models.EntityClassCustomers || run.TriggeredBy != models.SyncTriggeredManual {
		t.Errorf("run metadata: %+v", run)
	}
	if run.CorrelationId == "" {
		t.Error("run must carry a correlation id")
	}
}

func TestRunCustomersSync_WatermarkOverlap(t *testing.T) {
	last := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeSyncStore{lastSuccess: &last}
	api := &fakeQueryAPI{}
	svc := newTestService(store, api, fakeTokenSource{}, time.Now())

	if _, err := svc.RunCustomersSync(context.Background(), models.SyncTriggeredSystem); err != nil {
		t.Fatalf("RunCustomersSync: %v", err)
	}
	want := last.Add(-5 * time.Minute)
	if len(api.sinces) != 1 || api.sinces[0] == nil || !api.sinces[0].Equal(want) {
		t.Errorf("since = %v, want %v", api.sinces, want)
	}
}

func TestRunCustomersSync_UnkeyableRecordSkipped(t *testing.T) {
	store := &fakeSyncStore{}
	api := &fakeQueryAPI{records: map[string][]json.RawMessage{
		"Customer": {
			json.RawMessage(`{"Id": "1"}`),
			json.RawMessage(`{"DisplayName": "no id"}`),
			json.RawMessage(`{"Id": "3"}`),
		},
	}}
	svc := newTestService(store, api, fakeTokenSource{}, time.Now())

	run, err := svc.RunCustomersSync(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunCustomersSync: %v", err)
	}
	if run.FetchedCount != 3 {
		t.Errorf("fetched = %d, want 3", run.FetchedCount)
	}
	if run.UpsertedCount != 2 {
		t.Errorf("upserted = %d, want 2", run.UpsertedCount)
	}
	if !run.Success {
		t.Error("skipped records must not fail the run")
	}
}

func TestRunTransactionsSync_AllEntitiesInOrder(t *testing.T) {
	store := &fakeSyncStore{}
	records := map[string][]json.RawMessage{}
	for i, entity := range transactionEntities {
		records[entity] = []json.RawMessage{json.RawMessage(fmt.Sprintf(`{"Id": "%d", "Line": [{"Id": "1", "Amount": 5}]}`, i+1))}
	}
	api := &fakeQueryAPI{records: records}
	svc := newTestService(store, api, fakeTokenSource{}, time.Now())

	run, err := svc.RunTransactionsSync(context.Background(), models.SyncTriggeredManual)
	if err != nil {
		t.Fatalf("RunTransactionsSync: %v", err)
	}
	if len(api.entities) != len(transactionEntities) {
		t.Fatalf("queried %d entities, want %d", len(api.entities), len(transactionEntities))
	}
	for i, want := range transactionEntities {
		if api.entities[i] != want {
			t.Errorf("entity %d = %q, want %q", i, api.entities[i], want)
		}
	}
	if run.FetchedCount != 10 || run.UpsertedCount != 10 {
		t.Errorf("counts = %d/%d", run.FetchedCount, run.UpsertedCount)
	}
	for i, n := range store.lineCounts {
		if n != 1 {
			t.Errorf("transaction %d persisted %d lines, want 1", i, n)
		}
	}
	// One run row and one shared watermark for the whole class.
	if len(store.runs) != 1 {
		t.Errorf("want a single run row, got %d", len(store.runs))
	}
}

func TestRunTransactionsSync_FetchErrorRecordsFailure(t *testing.T) {
	store := &fakeSyncStore{}
	api := &fakeQueryAPI{err: errors.New("quickbooks unreachable")}
	svc := newTestService(store, api, fakeTokenSource{}, time.Now())

	run, err := svc.RunTransactionsSync(context.Background(), models.SyncTriggeredManual)
	if err == nil {
		t.Fatal("fetch error must fail the run")
	}
	if run == nil {
		t.Fatal("failed run must still be returned")
	}
	if run.Success {
		t.Error("failed run must not be marked successful")
	}
	if run.FinishedAt == nil {
		t.Error("failed run must still be finalized")
	}
	if run.ErrorText == nil || *run.ErrorText == "" {
		t.Error("failed run must record its error text")
	}
}

func TestRunCustomersSync_NoConnection(t *testing.T) {
	store := &fakeSyncStore{}
	svc := newTestService(store, &fakeQueryAPI{}, fakeTokenSource{err: ErrNoConnection}, time.Now())

	run, err := svc.RunCustomersSync(context.Background(), models.SyncTriggeredManual)
	if !errors.Is(err, ErrNoConnection) {
		t.Fatalf("want ErrNoConnection, got %v", err)
	}
	// The run row exists and records the failure; nothing was fetched.
	if run == nil || run.Success || run.FetchedCount != 0 {
		t.Errorf("run = %+v", run)
	}
}

func TestRunCustomersSync_UpsertErrorIsFatal(t *testing.T) {
	store := &fakeSyncStore{upsertErr: errors.New("deadlock")}
	api := &fakeQueryAPI{records: map[string][]json.RawMessage{
		"Customer": {json.RawMessage(`{"Id": "1"}`)},
	}}
	svc := newTestService(store, api, fakeTokenSource{}, time.Now())

	run, err := svc.RunCustomersSync(context.Background(), models.SyncTriggeredManual)
	if err == nil {
		t.Fatal("upsert error must fail the run")
	}
	if run.UpsertedCount != 0 {
		t.Errorf("upserted = %d, want 0", run.UpsertedCount)
	}
}
