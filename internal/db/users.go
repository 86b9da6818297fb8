package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hkschools/admission-monitor/internal/models"
)

var ErrEmailTaken = errors.New("email already registered")

// Credentials is what login needs; the hash never leaves the auth layer.
type Credentials struct {
	UserID       uuid.UUID
	PasswordHash string
	IsActive     bool
}

func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name, phone string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING `+userCols, strings.ToLower(email), passwordHash, name, phone)
	u, err := scanUser(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (s *Store) UserCredentials(ctx context.Context, email string) (*Credentials, error) {
	var c Credentials
	err := s.pool.QueryRow(ctx,
		"SELECT id, password_hash, is_active FROM users WHERE email = $1",
		strings.ToLower(email)).Scan(&c.UserID, &c.PasswordHash, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) TouchLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, "UPDATE users SET last_login = $2 WHERE id = $1", id, at)
	return err
}

func (s *Store) UpdatePreferences(ctx context.Context, id uuid.UUID, p models.NotificationPreferences) (*models.User, error) {
	var chatID *int64
	if p.TelegramChatID != 0 {
		chatID = &p.TelegramChatID
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET notify_email = $2, notify_push = $3, frequency = $4, telegram_chat_id = $5
		WHERE id = $1
		RETURNING `+userCols, id, p.Email, p.Push, string(p.Frequency), chatID)
	u, err := scanUser(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update preferences: %w", err)
	}
	return &u, nil
}

// AddInterest follows a monitored school. Adding it twice is not an error.
// ErrNotFound means the school is not monitored.
func (s *Store) AddInterest(ctx context.Context, userID uuid.UUID, schoolNo string) (*models.InterestedSchool, error) {
	var in models.InterestedSchool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_interests (user_id, school_no, school_name)
		SELECT $1, school_no, school_name FROM monitor_targets WHERE school_no = $2
		ON CONFLICT (user_id, school_no) DO UPDATE SET school_name = EXCLUDED.school_name
		RETURNING school_no, school_name, added_at
	`, userID, schoolNo).Scan(&in.SchoolNo, &in.SchoolName, &in.AddedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("add interest: %w", err)
	}
	return &in, nil
}

func (s *Store) RemoveInterest(ctx context.Context, userID uuid.UUID, schoolNo string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM user_interests WHERE user_id = $1 AND school_no = $2", userID, schoolNo)
	if err != nil {
		return fmt.Errorf("remove interest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListInterests(ctx context.Context, userID uuid.UUID) ([]models.InterestedSchool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT school_no, school_name, added_at FROM user_interests
		WHERE user_id = $1 ORDER BY added_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := []models.InterestedSchool{}
	for rows.Next() {
		var in models.InterestedSchool
		if err := rows.Scan(&in.SchoolNo, &in.SchoolName, &in.AddedAt); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
