package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkschools/admission-monitor/internal/auth"
	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/models"
	"github.com/hkschools/admission-monitor/internal/notify"
	"github.com/hkschools/admission-monitor/internal/scheduler"
)

const adminSecret = "admin-s3cret"

type fakeStore struct {
	mu      sync.Mutex
	targets map[string]*models.MonitorTarget
	notes   []models.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{targets: map[string]*models.MonitorTarget{
		"KG001": {SchoolNo: "KG001", SchoolName: "Sunshine Kindergarten", WebsiteURL: "https://sunshine.example.hk", IsActive: true,
			ApplicationStatus: models.ApplicationStatus{IsOpen: true, Requirements: []string{}}},
	}}
}

func (f *fakeStore) ListTargets(_ context.Context, _ models.TargetFilter) ([]models.MonitorTarget, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MonitorTarget
	for _, t := range f.targets {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (f *fakeStore) GetTarget(_ context.Context, schoolNo string) (*models.MonitorTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[schoolNo]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) CreateTarget(_ context.Context, t *models.MonitorTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.targets[t.SchoolNo]; ok {
		return db.ErrTargetExists
	}
	cp := *t
	f.targets[t.SchoolNo] = &cp
	return nil
}

func (f *fakeStore) PatchTarget(_ context.Context, schoolNo string, p models.TargetPatch) (*models.MonitorTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[schoolNo]
	if !ok {
		return nil, db.ErrNotFound
	}
	if p.SchoolName != nil {
		t.SchoolName = *p.SchoolName
	}
	if p.CheckFrequency != nil {
		t.CheckFrequency = *p.CheckFrequency
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ToggleTarget(_ context.Context, schoolNo string) (*models.MonitorTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.targets[schoolNo]
	if !ok {
		return nil, db.ErrNotFound
	}
	t.IsActive = !t.IsActive
	cp := *t
	return &cp, nil
}

func (f *fakeStore) DeleteTarget(_ context.Context, schoolNo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.targets[schoolNo]; !ok {
		return db.ErrNotFound
	}
	delete(f.targets, schoolNo)
	return nil
}

func (f *fakeStore) Stats(context.Context) (*models.MonitoringStats, error) {
	return &models.MonitoringStats{Total: len(f.targets), Active: 1, OpenCount: 1}, nil
}

func (f *fakeStore) ListApplicationStatuses(ctx context.Context) ([]models.MonitorTarget, error) {
	out, _, err := f.ListTargets(ctx, models.TargetFilter{})
	return out, err
}

func (f *fakeStore) ListUserNotifications(_ context.Context, userID uuid.UUID, _ int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, userID, id uuid.UUID, at time.Time) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notes {
		if f.notes[i].ID == id && f.notes[i].UserID == userID {
			f.notes[i].Status = models.NotificationRead
			f.notes[i].ReadAt = &at
			cp := f.notes[i]
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

type fakeMonitor struct {
	release chan struct{}
	page    *models.PageAnalysis
	err     error
}

func (m *fakeMonitor) MonitorSchool(_ context.Context, schoolNo string) models.MonitorResult {
	return models.MonitorResult{SchoolNo: schoolNo, Success: true}
}

func (m *fakeMonitor) MonitorAll(ctx context.Context) (*models.BatchResult, error) {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b := &models.BatchResult{Results: []models.MonitorResult{{SchoolNo: "KG001", Success: true}}}
	b.Summarize()
	return b, nil
}

func (m *fakeMonitor) AnalyzePage(_ context.Context, url string) (*models.PageAnalysis, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.page != nil {
		return m.page, nil
	}
	return &models.PageAnalysis{URL: url, Status: models.StatusOpen, IsOpen: true, Language: "English"}, nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	triggered []string
	stopped   bool
}

func (f *fakeScheduler) Status() scheduler.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return scheduler.Status{Running: !f.stopped, Timezone: "Asia/Hong_Kong"}
}

func (f *fakeScheduler) Trigger(name string) error {
	switch name {
	case scheduler.JobDailyMonitoring, scheduler.JobDigests:
	default:
		return scheduler.ErrUnknownJob
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, name)
	return nil
}

func (f *fakeScheduler) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeScheduler) Restart(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = false
	return nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (m *fakeMailer) SendTest(_ context.Context, addr string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, addr)
	return nil
}

// oneUser serves GetUser for a single account; other calls are unused here.
type oneUser struct {
	auth.UserStore
	user models.User
}

func (o oneUser) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	if id != o.user.ID {
		return nil, db.ErrNotFound
	}
	u := o.user
	return &u, nil
}

type harness struct {
	srv   *Server
	store *fakeStore
	mon   *fakeMonitor
	sched *fakeScheduler
	mail  *fakeMailer
	user  models.User
	token string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newFakeStore(),
		mon:   &fakeMonitor{},
		sched: &fakeScheduler{},
		mail:  &fakeMailer{},
		user:  models.User{ID: uuid.New(), Email: "parent@example.com", IsActive: true, Preferences: models.DefaultPreferences()},
	}
	authSvc, err := auth.NewService(oneUser{user: h.user}, "jwt-secret", time.Hour, nil)
	require.NoError(t, err)
	h.token, err = authSvc.GenerateToken(h.user.ID)
	require.NoError(t, err)

	h.srv = NewServer(Deps{
		Store:     h.store,
		Monitor:   h.mon,
		Auth:      authSvc,
		Scheduler: h.sched,
		Mailer:    h.mail,
		Gatherer:  prometheus.NewRegistry(),
	}, Config{AdminSecret: adminSecret})
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func (h *harness) admin(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	return h.do(t, method, path, body, map[string]string{"X-Admin-Secret": adminSecret})
}

func (h *harness) parent(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	return h.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + h.token})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyze(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"missing url", "", http.StatusBadRequest},
		{"bad scheme", "?url=ftp://example.com", http.StatusBadRequest},
		{"no host", "?url=https://", http.StatusBadRequest},
		{"ok", "?url=https://sunshine.example.hk/admission", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodGet, "/api/v1/analyze"+tt.query, "", nil)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code == http.StatusOK {
				assert.Equal(t, "open", decode(t, rec)["status"])
			}
		})
	}

	h.mon.err = context.DeadlineExceeded
	rec := h.do(t, http.MethodGet, "/api/v1/analyze?url=https://slow.example.hk", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestApplicationStatus(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/application-status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.EqualValues(t, 1, body["total"])
	schools := body["schools"].([]any)
	require.Len(t, schools, 1)
	assert.Equal(t, "KG001", schools[0].(map[string]any)["school_no"])
}

func TestAdminRequiresSecret(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/admin/targets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec), "error")

	rec = h.do(t, http.MethodGet, "/api/v1/admin/targets", "", map[string]string{"X-Admin-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.admin(t, http.MethodGet, "/api/v1/admin/targets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTargetsCRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.admin(t, http.MethodPost, "/api/v1/admin/targets",
		`{"school_no":"KG002","school_name":"Rainbow KG","website_url":"https://rainbow.example.hk","check_frequency":"weekly"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, true, created["is_active"])
	assert.Equal(t, "weekly", created["check_frequency"])

	rec = h.admin(t, http.MethodPost, "/api/v1/admin/targets",
		`{"school_no":"KG002","school_name":"Rainbow KG","website_url":"https://rainbow.example.hk"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	bad := []string{
		`{"school_name":"No Number","website_url":"https://x.example.hk"}`,
		`{"school_no":"KG003","school_name":"Bad URL","website_url":"not a url"}`,
		`{"school_no":"KG003","school_name":"Bad Freq","website_url":"https://x.example.hk","check_frequency":"monthly"}`,
	}
	for _, body := range bad {
		rec = h.admin(t, http.MethodPost, "/api/v1/admin/targets", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec = h.admin(t, http.MethodGet, "/api/v1/admin/targets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.EqualValues(t, 2, list["total"])
	assert.EqualValues(t, 1, list["page"])
	assert.EqualValues(t, 20, list["limit"])

	rec = h.admin(t, http.MethodPut, "/api/v1/admin/targets/KG002", `{"school_name":"Rainbow Kindergarten"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Rainbow Kindergarten", decode(t, rec)["school_name"])

	rec = h.admin(t, http.MethodPatch, "/api/v1/admin/targets/KG002/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["is_active"])

	rec = h.admin(t, http.MethodDelete, "/api/v1/admin/targets/KG002", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for _, missing := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/admin/targets/KG002"},
		{http.MethodPatch, "/api/v1/admin/targets/KG002/toggle"},
		{http.MethodDelete, "/api/v1/admin/targets/KG002"},
	} {
		rec = h.admin(t, missing.method, missing.path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, missing.path)
	}
}

func TestCreateTargetMonitoringConfigDefaults(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		no   string
		cfg  string
		want func(*models.MonitoringConfig)
	}{
		{"omitted", "KG010", ``, func(*models.MonitoringConfig) {}},
		{"keywords only", "KG011", `,"monitoring_config":{"keywords":["K1"]}`, func(c *models.MonitoringConfig) {
			c.Keywords = []string{"K1"}
		}},
		{"selectors only", "KG012", `,"monitoring_config":{"content_selectors":[".news"]}`, func(c *models.MonitoringConfig) {
			c.ContentSelectors = []string{".news"}
		}},
		{"explicit false", "KG013", `,"monitoring_config":{"check_for_changes":false}`, func(c *models.MonitoringConfig) {
			c.CheckForChanges = false
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"school_no":"` + tt.no + `","school_name":"Config KG","website_url":"https://cfg.example.hk"` + tt.cfg + `}`
			rec := h.admin(t, http.MethodPost, "/api/v1/admin/targets", body)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			want := models.DefaultMonitoringConfig()
			tt.want(&want)
			got, err := h.store.GetTarget(context.Background(), tt.no)
			require.NoError(t, err)
			assert.Equal(t, want, got.MonitoringConfig)
		})
	}
}

func TestMonitorSchoolAndStats(t *testing.T) {
	h := newHarness(t)

	rec := h.admin(t, http.MethodPost, "/api/v1/admin/targets/KG001/monitor", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = h.admin(t, http.MethodGet, "/api/v1/admin/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["open_count"])
}

func TestMonitorAllJob(t *testing.T) {
	h := newHarness(t)
	h.mon.release = make(chan struct{})

	rec := h.admin(t, http.MethodPost, "/api/v1/admin/monitor-all", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decode(t, rec)
	jobID := started["job_id"].(string)
	assert.Equal(t, "/api/v1/admin/jobs/"+jobID, started["poll"])

	rec = h.admin(t, http.MethodPost, "/api/v1/admin/monitor-all", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, jobID, decode(t, rec)["job_id"])

	rec = h.admin(t, http.MethodGet, "/api/v1/admin/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, jobRunning, decode(t, rec)["status"])

	close(h.mon.release)
	require.Eventually(t, func() bool {
		rec := h.admin(t, http.MethodGet, "/api/v1/admin/jobs/"+jobID, "")
		return decode(t, rec)["status"] == jobCompleted
	}, 2*time.Second, 10*time.Millisecond)

	rec = h.admin(t, http.MethodGet, "/api/v1/admin/jobs/"+jobID, "")
	result := decode(t, rec)["result"].(map[string]any)
	assert.EqualValues(t, 1, result["summary"].(map[string]any)["successful"])

	rec = h.admin(t, http.MethodGet, "/api/v1/admin/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownCancelsRunningJob(t *testing.T) {
	h := newHarness(t)
	h.mon.release = make(chan struct{})

	rec := h.admin(t, http.MethodPost, "/api/v1/admin/monitor-all", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode(t, rec)["job_id"].(string)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))

	h.srv.jobMu.Lock()
	defer h.srv.jobMu.Unlock()
	assert.Equal(t, jobFailed, h.srv.jobs[jobID].Status)
}

func TestSchedulerEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.admin(t, http.MethodGet, "/api/v1/admin/scheduler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["running"])

	rec = h.admin(t, http.MethodPost, "/api/v1/admin/scheduler/trigger", `{"job":"notification-digests"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	rec = h.admin(t, http.MethodPost, "/api/v1/admin/scheduler/trigger", `{}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{scheduler.JobDigests, scheduler.JobDailyMonitoring}, h.sched.triggered)

	rec = h.admin(t, http.MethodPost, "/api/v1/admin/scheduler/trigger", `{"job":"nightly-backup"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.admin(t, http.MethodPost, "/api/v1/admin/scheduler/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["running"])

	rec = h.admin(t, http.MethodPost, "/api/v1/admin/scheduler/restart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["running"])
}

func TestSchedulerDisabled(t *testing.T) {
	h := newHarness(t)
	h.srv.scheduler = nil

	rec := h.admin(t, http.MethodGet, "/api/v1/admin/scheduler/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTestEmail(t *testing.T) {
	h := newHarness(t)

	rec := h.admin(t, http.MethodPost, "/api/v1/admin/test-email", `{"email":"ops@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ops@example.com"}, h.mail.sent)

	rec = h.admin(t, http.MethodPost, "/api/v1/admin/test-email", `{"email":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h.mail.err = notify.ErrEmailDisabled
	rec = h.admin(t, http.MethodPost, "/api/v1/admin/test-email", `{"email":"ops@example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMeEndpoints(t *testing.T) {
	h := newHarness(t)
	noteID := uuid.New()
	h.store.notes = []models.Notification{
		{ID: noteID, UserID: h.user.ID, SchoolNo: "KG001", Type: models.NotifyApplicationOpen, Status: models.NotificationSent},
		{ID: uuid.New(), UserID: uuid.New(), SchoolNo: "KG001", Type: models.NotifyApplicationOpen},
	}

	rec := h.do(t, http.MethodGet, "/api/v1/me/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.parent(t, http.MethodGet, "/api/v1/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parent@example.com", decode(t, rec)["email"])

	rec = h.parent(t, http.MethodGet, "/api/v1/me/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []models.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, noteID, notes[0].ID)

	rec = h.parent(t, http.MethodPost, "/api/v1/me/notifications/"+noteID.String()+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(models.NotificationRead), decode(t, rec)["status"])

	rec = h.parent(t, http.MethodPost, "/api/v1/me/notifications/not-a-uuid/read", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.parent(t, http.MethodPost, "/api/v1/me/notifications/"+uuid.NewString()+"/read", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
