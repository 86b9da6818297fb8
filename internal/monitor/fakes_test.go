package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/ingest"
	"github.com/hkschools/admission-monitor/internal/models"
)

type memStore struct {
	mu            sync.Mutex
	targets       map[string]*models.MonitorTarget
	interests     map[string][]models.User
	notifications []*models.Notification
	reminders     map[string]bool
	updates       int
}

func newMemStore(targets ...models.MonitorTarget) *memStore {
	s := &memStore{
		targets:   map[string]*models.MonitorTarget{},
		interests: map[string][]models.User{},
		reminders: map[string]bool{},
	}
	for i := range targets {
		t := targets[i]
		s.targets[t.SchoolNo] = &t
	}
	return s
}

func (s *memStore) target(no string) models.MonitorTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.targets[no]
}

func (s *memStore) GetTarget(_ context.Context, no string) (*models.MonitorTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[no]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) ListActiveTargets(context.Context) ([]models.MonitorTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MonitorTarget
	for _, t := range s.targets {
		if t.IsActive {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchoolNo < out[j].SchoolNo })
	return out, nil
}

func (s *memStore) UpdateTarget(_ context.Context, no string, u models.TargetUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[no]
	if !ok {
		return db.ErrNotFound
	}
	s.updates++
	if u.LastChecked != nil {
		t.LastChecked = u.LastChecked
	}
	if u.LastContentHash != nil {
		t.LastContentHash = *u.LastContentHash
	}
	if u.LastContent != nil {
		t.LastContent = *u.LastContent
	}
	if u.SuccessCount != nil {
		t.SuccessCount = *u.SuccessCount
	}
	if u.ErrorCount != nil {
		t.ErrorCount = *u.ErrorCount
	}
	if u.ClearLastError {
		t.LastError = ""
	} else if u.LastError != nil {
		t.LastError = *u.LastError
	}
	if u.ApplicationStatus != nil {
		t.ApplicationStatus = *u.ApplicationStatus
	}
	return nil
}

func (s *memStore) FindInterestedUsers(_ context.Context, no string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.User(nil), s.interests[no]...), nil
}

func (s *memStore) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uuid.New()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *memStore) SetNotificationStatus(_ context.Context, id uuid.UUID, status models.NotificationStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ID == id {
			n.Status = status
			if status == models.NotificationSent {
				n.SentAt = &at
			}
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *memStore) ListUsersWithPending(context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[uuid.UUID]bool{}
	var out []models.User
	for _, users := range s.interests {
		for _, u := range users {
			if seen[u.ID] {
				continue
			}
			for _, n := range s.notifications {
				if n.UserID == u.ID && n.Status == models.NotificationPending {
					seen[u.ID] = true
					out = append(out, u)
					break
				}
			}
		}
	}
	return out, nil
}

func (s *memStore) ListPendingNotifications(_ context.Context, userID uuid.UUID) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID && n.Status == models.NotificationPending {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListOpenWithDeadline(_ context.Context, from, to time.Time) ([]models.MonitorTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MonitorTarget
	for _, t := range s.targets {
		d := t.ApplicationStatus.Deadline
		if t.IsActive && t.ApplicationStatus.IsOpen && d != nil && !d.Before(from) && !d.After(to) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memStore) RecordReminder(_ context.Context, userID uuid.UUID, no string, deadline time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID.String() + "|" + no + "|" + deadline.Format(time.RFC3339)
	if s.reminders[key] {
		return false, nil
	}
	s.reminders[key] = true
	return true, nil
}

func (s *memStore) notificationsFor(no string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.SchoolNo == no {
			out = append(out, *n)
		}
	}
	return out
}

type page struct {
	body        string
	contentType string
	err         error
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]page
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*ingest.FetchedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	p, ok := f.pages[url]
	if !ok {
		return nil, errors.New("dial tcp: no such host")
	}
	if p.err != nil {
		return nil, p.err
	}
	ct := p.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &ingest.FetchedDocument{URL: url, StatusCode: 200, ContentType: ct, Body: []byte(p.body)}, nil
}

type delivery struct {
	UserID uuid.UUID
	Count  int
}

type fakeNotifier struct {
	mu         sync.Mutex
	err        error
	deliveries []delivery
}

func (f *fakeNotifier) Deliver(_ context.Context, u models.User, notes []models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, delivery{UserID: u.ID, Count: len(notes)})
	return f.err
}
