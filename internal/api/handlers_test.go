package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumacare/visit-scheduling/internal/booking"
	"github.com/lumacare/visit-scheduling/internal/config"
	"github.com/lumacare/visit-scheduling/internal/schedule"
	"github.com/lumacare/visit-scheduling/internal/visit"
)

type testLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newTestLocker() *testLocker {
	return &testLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *testLocker) get(id uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	return m
}

func (l *testLocker) WithCaregiverLock(ctx context.Context, caregiverID uuid.UUID, fn func(ctx context.Context) error) error {
	m := l.get(caregiverID)
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func (l *testLocker) WithCaregiverLocks(ctx context.Context, a, b uuid.UUID, fn func(ctx context.Context) error) error {
	if a == b {
		return l.WithCaregiverLock(ctx, a, fn)
	}
	first, second := a, b
	if strings.Compare(first.String(), second.String()) > 0 {
		first, second = second, first
	}
	return l.WithCaregiverLock(ctx, first, func(ctx context.Context) error {
		return l.WithCaregiverLock(ctx, second, fn)
	})
}

type testEnv struct {
	router    http.Handler
	repo      *visit.MemoryRepository
	client    visit.Client
	caregiver visit.Caregiver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := visit.NewMemoryRepository()
	env := &testEnv{
		repo:      repo,
		client:    visit.Client{ID: uuid.New(), Name: "Rose Calloway", Address: "14 Birch Lane"},
		caregiver: visit.Caregiver{ID: uuid.New(), Name: "Ada Okafor"},
	}
	repo.PutClient(env.client)
	repo.PutCaregiver(env.caregiver)

	cfg := config.Config{
		IndexLookback:    14 * 24 * time.Hour,
		CalendarDayStart: 6,
		CalendarDayEnd:   22,
	}
	svc := schedule.NewService(repo, booking.NewIndex(), newTestLocker(), cfg, time.UTC)

	env.router = NewRouter(RouterConfig{
		Service:  svc,
		Location: time.UTC,
		Env:      "test",
		Version:  "test",
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func monday(hour, min int) time.Time {
	return time.Date(2026, 9, 7, hour, min, 0, 0, time.UTC)
}

func TestCreateVisitEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("creates an unassigned visit", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
			ClientID:       env.client.ID.String(),
			ScheduledStart: monday(9, 0),
			ScheduledEnd:   monday(11, 0),
			ServiceType:    "Personal Care",
		})

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[VisitResponse](t, rec)
		assert.Equal(t, "SCHEDULED", resp.Status)
		assert.Nil(t, resp.CaregiverID)
		assert.Equal(t, "Rose Calloway", resp.ClientName)
	})

	t.Run("rejects an inverted window", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
			ClientID:       env.client.ID.String(),
			ScheduledStart: monday(11, 0),
			ScheduledEnd:   monday(9, 0),
		})

		require.Equal(t, http.StatusBadRequest, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "invalid_time_range", resp.Error)
	})

	t.Run("rejects an unknown client", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
			ClientID:       uuid.NewString(),
			ScheduledStart: monday(9, 0),
			ScheduledEnd:   monday(10, 0),
		})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCreateVisitConflictResponse(t *testing.T) {
	env := newTestEnv(t)
	caregiverID := env.caregiver.ID.String()

	rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		CaregiverID:    &caregiverID,
		ScheduledStart: monday(9, 0),
		ScheduledEnd:   monday(13, 0),
		ServiceType:    "Personal Care",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[VisitResponse](t, rec)

	// Second visit overlaps; it must be created but come back as a conflict.
	rec = env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		CaregiverID:    &caregiverID,
		ScheduledStart: monday(12, 30),
		ScheduledEnd:   monday(14, 0),
		ServiceType:    "Personal Care",
	})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	conflict := decode[ConflictResponse](t, rec)
	assert.Equal(t, "schedule_conflict", conflict.Error)
	assert.Equal(t, []uuid.UUID{first.ID}, conflict.ConflictingVisitIDs)
	require.NotNil(t, conflict.Visit, "the created visit accompanies the conflict")
	assert.Nil(t, conflict.Visit.CaregiverID)

	// The visit is retrievable and unassigned.
	rec = env.do(t, http.MethodGet, "/visits/"+conflict.Visit.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAssignmentEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		ScheduledStart: monday(9, 0),
		ScheduledEnd:   monday(11, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[VisitResponse](t, rec)

	assignPath := fmt.Sprintf("/visits/%s/assign", created.ID)
	rec = env.do(t, http.MethodPost, assignPath, AssignRequest{CaregiverID: env.caregiver.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assigned := decode[VisitResponse](t, rec)
	require.NotNil(t, assigned.CaregiverID)
	assert.Equal(t, env.caregiver.ID, *assigned.CaregiverID)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/visits/%s/unassign", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	unassigned := decode[VisitResponse](t, rec)
	assert.Nil(t, unassigned.CaregiverID)

	t.Run("unknown visit is a 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, fmt.Sprintf("/visits/%s/assign", uuid.New()),
			AssignRequest{CaregiverID: env.caregiver.ID.String()})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed caregiver id is a 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, assignPath, AssignRequest{CaregiverID: "not-a-uuid"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListVisitsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	caregiverID := env.caregiver.ID.String()

	rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		CaregiverID:    &caregiverID,
		ScheduledStart: monday(9, 0),
		ScheduledEnd:   monday(11, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/visits?start_date=2026-09-07&end_date=2026-09-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	visits := decode[[]VisitResponse](t, rec)
	require.Len(t, visits, 1)
	assert.Equal(t, "Ada Okafor", visits[0].CaregiverName)

	t.Run("range that misses the visit is empty", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/visits?start_date=2026-09-09&end_date=2026-09-10", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]VisitResponse](t, rec))
	})

	t.Run("missing range is a 400", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/visits", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUnassignedEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// One unassigned visit starting soon, one already assigned.
	soon := time.Now().UTC().Add(3 * time.Hour).Truncate(time.Minute)
	rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		ScheduledStart: soon,
		ScheduledEnd:   soon.Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	open := decode[VisitResponse](t, rec)

	caregiverID := env.caregiver.ID.String()
	rec = env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		CaregiverID:    &caregiverID,
		ScheduledStart: soon.Add(2 * time.Hour),
		ScheduledEnd:   soon.Add(3 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	day := soon.Format("2006-01-02")
	nextDay := soon.AddDate(0, 0, 1).Format("2006-01-02")
	rec = env.do(t, http.MethodGet, "/visits/unassigned?start_date="+day+"&end_date="+nextDay, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	queue := decode[[]VisitResponse](t, rec)
	require.Len(t, queue, 1)
	assert.Equal(t, open.ID, queue[0].ID)

	rec = env.do(t, http.MethodGet, "/visits/unassigned/count?within_hours=24", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	count := decode[UnassignedCountResponse](t, rec)
	assert.Equal(t, 1, count.Count)
	assert.Equal(t, 24, count.WithinHours)
}

func TestGetWeekEndpoint(t *testing.T) {
	env := newTestEnv(t)
	caregiverID := env.caregiver.ID.String()

	rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		CaregiverID:    &caregiverID,
		ScheduledStart: monday(9, 0),
		ScheduledEnd:   monday(11, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/calendar/week?date=2026-09-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	layout := decode[schedule.CalendarLayout](t, rec)
	assert.Equal(t, "2026-09-06", layout.WeekStart)
	assert.Len(t, layout.Days[1].Blocks, 1)
	require.Len(t, layout.Legend, 1)
	assert.Equal(t, "Ada Okafor", layout.Legend[0].CaregiverName)

	t.Run("any date in the week resolves identically", func(t *testing.T) {
		other := env.do(t, http.MethodGet, "/calendar/week?date=2026-09-12", nil)
		require.Equal(t, http.StatusOK, other.Code)
		assert.JSONEq(t, rec.Body.String(), other.Body.String())
	})

	t.Run("malformed date is a 400", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/calendar/week?date=next-tuesday", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRescheduleAndCancelEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/visits", CreateVisitRequest{
		ClientID:       env.client.ID.String(),
		ScheduledStart: monday(9, 0),
		ScheduledEnd:   monday(11, 0),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[VisitResponse](t, rec)

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/visits/%s/reschedule", created.ID), RescheduleRequest{
		ScheduledStart: monday(10, 0),
		ScheduledEnd:   monday(12, 0),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[VisitResponse](t, rec)
	assert.True(t, moved.ScheduledStart.Equal(monday(10, 0)))

	rec = env.do(t, http.MethodPost, fmt.Sprintf("/visits/%s/cancel", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decode[VisitResponse](t, rec)
	assert.Equal(t, "CANCELLED", cancelled.Status)
}
