package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hkschools/admission-monitor/internal/models"
)

const userCols = `id, email, name, phone, is_active, notify_email, notify_push, frequency,
	telegram_chat_id, last_login, created_at`

func scanUser(scan func(dest ...any) error) (models.User, error) {
	var u models.User
	var freq string
	var chatID *int64
	err := scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.IsActive,
		&u.Preferences.Email, &u.Preferences.Push, &freq, &chatID, &u.LastLogin, &u.CreatedAt)
	if err != nil {
		return u, err
	}
	u.Preferences.Frequency = models.DigestFrequency(freq)
	if chatID != nil {
		u.Preferences.TelegramChatID = *chatID
	}
	return u, nil
}

func (s *Store) queryUsers(ctx context.Context, sql string, args ...any) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// FindInterestedUsers returns the active users following schoolNo.
func (s *Store) FindInterestedUsers(ctx context.Context, schoolNo string) ([]models.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+prefixed("u.", userCols)+`
		FROM users u
		JOIN user_interests i ON i.user_id = u.id
		WHERE i.school_no = $1 AND u.is_active
		ORDER BY u.created_at
	`, schoolNo)
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE id = $1", id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsersWithPending returns active users holding at least one pending notification.
func (s *Store) ListUsersWithPending(ctx context.Context) ([]models.User, error) {
	return s.queryUsers(ctx, `
		SELECT `+userCols+` FROM users u
		WHERE u.is_active AND EXISTS (
			SELECT 1 FROM notifications n WHERE n.user_id = u.id AND n.status = 'pending'
		)
		ORDER BY u.created_at
	`)
}

const notificationCols = `id, user_id, school_no, school_name, type, title, message, priority, status,
	delivery_method, metadata, sent_at, read_at, created_at`

func scanNotification(scan func(dest ...any) error) (models.Notification, error) {
	var n models.Notification
	var typ, priority, status string
	var methods []string
	var metaRaw []byte

	err := scan(&n.ID, &n.UserID, &n.SchoolNo, &n.SchoolName, &typ, &n.Title, &n.Message,
		&priority, &status, &methods, &metaRaw, &n.SentAt, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return n, err
	}
	n.Type = models.NotificationType(typ)
	n.Priority = models.Priority(priority)
	n.Status = models.NotificationStatus(status)
	for _, m := range methods {
		n.DeliveryMethod = append(n.DeliveryMethod, models.DeliveryMethod(m))
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &n.Metadata)
	}
	return n, nil
}

func (s *Store) queryNotifications(ctx context.Context, sql string, args ...any) ([]models.Notification, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CreateNotification inserts n as pending and fills its ID and CreatedAt.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	metaRaw, err := json.Marshal(n.Metadata)
	if err != nil {
		return err
	}
	methods := make([]string, 0, len(n.DeliveryMethod))
	for _, m := range n.DeliveryMethod {
		methods = append(methods, string(m))
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, school_no, school_name, type, title, message,
			priority, status, delivery_method, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`, n.UserID, n.SchoolNo, n.SchoolName, string(n.Type), n.Title, n.Message,
		string(n.Priority), string(n.Status), methods, metaRaw).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// SetNotificationStatus moves a notification to status. sent_at is stamped
// for sent notifications.
func (s *Store) SetNotificationStatus(ctx context.Context, id uuid.UUID, status models.NotificationStatus, at time.Time) error {
	var sentAt *time.Time
	if status == models.NotificationSent {
		sentAt = &at
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET status = $2, sent_at = COALESCE($3, sent_at) WHERE id = $1
	`, id, string(status), sentAt)
	if err != nil {
		return fmt.Errorf("update notification %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotificationRead marks a notification owned by userID as read.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (*models.Notification, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications SET status = 'read', read_at = $3
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationCols, id, userID, at)
	n, err := scanNotification(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *Store) ListUserNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.queryNotifications(ctx, "SELECT "+notificationCols+
		" FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2", userID, limit)
}

// ListPendingNotifications returns a user's pending notifications, oldest first.
func (s *Store) ListPendingNotifications(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	return s.queryNotifications(ctx, "SELECT "+notificationCols+
		" FROM notifications WHERE user_id = $1 AND status = 'pending' ORDER BY created_at", userID)
}

// RecordReminder stores that a deadline reminder went to a user. It reports
// false when one was already recorded for the same school and deadline.
func (s *Store) RecordReminder(ctx context.Context, userID uuid.UUID, schoolNo string, deadline time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO deadline_reminders (user_id, school_no, deadline)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID, schoolNo, deadline)
	if err != nil {
		return false, fmt.Errorf("record reminder: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func prefixed(prefix, cols string) string {
	out := ""
	for i, c := range splitCols(cols) {
		if i > 0 {
			out += ", "
		}
		out += prefix + c
	}
	return out
}

func splitCols(cols string) []string {
	var out []string
	for _, c := range strings.Split(cols, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
