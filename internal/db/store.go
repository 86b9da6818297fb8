package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hkschools/admission-monitor/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const targetCols = `school_no, school_name, website_url, application_page_url, is_active, check_frequency,
	is_open, status_updated_at, start_date, end_date, deadline, requirements, notes,
	monitoring_config, last_content_hash, last_content, last_checked,
	error_count, success_count, last_error, created_at, updated_at`

func scanTarget(scan func(dest ...any) error) (models.MonitorTarget, error) {
	var t models.MonitorTarget
	var pageURL, hash, content, lastError *string
	var freq string
	var configRaw []byte

	err := scan(
		&t.SchoolNo, &t.SchoolName, &t.WebsiteURL, &pageURL, &t.IsActive, &freq,
		&t.ApplicationStatus.IsOpen, &t.ApplicationStatus.LastUpdated,
		&t.ApplicationStatus.StartDate, &t.ApplicationStatus.EndDate, &t.ApplicationStatus.Deadline,
		&t.ApplicationStatus.Requirements, &t.ApplicationStatus.Notes,
		&configRaw, &hash, &content, &t.LastChecked,
		&t.ErrorCount, &t.SuccessCount, &lastError, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return t, err
	}

	t.CheckFrequency = models.CheckFrequency(freq)
	if pageURL != nil {
		t.ApplicationPageURL = *pageURL
	}
	if hash != nil {
		t.LastContentHash = *hash
	}
	if content != nil {
		t.LastContent = *content
	}
	if lastError != nil {
		t.LastError = *lastError
	}
	if t.ApplicationStatus.Requirements == nil {
		t.ApplicationStatus.Requirements = []string{}
	}
	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &t.MonitoringConfig); err != nil {
			return t, fmt.Errorf("decode monitoring_config for %s: %w", t.SchoolNo, err)
		}
	}
	return t, nil
}

func (s *Store) queryTargets(ctx context.Context, sql string, args ...any) ([]models.MonitorTarget, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	targets := []models.MonitorTarget{}
	for rows.Next() {
		t, err := scanTarget(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return targets, nil
}

// CreateTarget inserts a new target. Missing frequency and config fall back
// to the defaults.
func (s *Store) CreateTarget(ctx context.Context, t *models.MonitorTarget) error {
	if t.CheckFrequency == "" {
		t.CheckFrequency = models.FrequencyDaily
	}
	if t.MonitoringConfig.IsZero() {
		t.MonitoringConfig = models.DefaultMonitoringConfig()
	}
	configRaw, err := json.Marshal(t.MonitoringConfig)
	if err != nil {
		return err
	}
	reqs := t.ApplicationStatus.Requirements
	if reqs == nil {
		reqs = []string{}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO monitor_targets (school_no, school_name, website_url, application_page_url,
			is_active, check_frequency, is_open, requirements, notes, monitoring_config)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)
		ON CONFLICT (school_no) DO NOTHING
		RETURNING created_at, updated_at
	`, t.SchoolNo, t.SchoolName, t.WebsiteURL, t.ApplicationPageURL,
		t.IsActive, string(t.CheckFrequency), t.ApplicationStatus.IsOpen, reqs, t.ApplicationStatus.Notes, configRaw)

	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTargetExists
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) GetTarget(ctx context.Context, schoolNo string) (*models.MonitorTarget, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+targetCols+" FROM monitor_targets WHERE school_no = $1", schoolNo)
	t, err := scanTarget(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTargets returns one page of targets ordered by school number, plus the
// total matching count.
func (s *Store) ListTargets(ctx context.Context, f models.TargetFilter) ([]models.MonitorTarget, int, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := ""
	var args []any
	if f.Active != nil {
		where = " WHERE is_active = $1"
		args = append(args, *f.Active)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM monitor_targets"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count targets: %w", err)
	}

	sql := fmt.Sprintf("SELECT %s FROM monitor_targets%s ORDER BY school_no LIMIT $%d OFFSET $%d",
		targetCols, where, len(args)+1, len(args)+2)
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	targets, err := s.queryTargets(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	return targets, total, nil
}

func (s *Store) ListActiveTargets(ctx context.Context) ([]models.MonitorTarget, error) {
	return s.queryTargets(ctx, "SELECT "+targetCols+" FROM monitor_targets WHERE is_active ORDER BY school_no")
}

// ListApplicationStatuses returns active targets, most recently updated status first.
func (s *Store) ListApplicationStatuses(ctx context.Context) ([]models.MonitorTarget, error) {
	return s.queryTargets(ctx, "SELECT "+targetCols+
		" FROM monitor_targets WHERE is_active ORDER BY status_updated_at DESC NULLS LAST, school_no")
}

// ListOpenWithDeadline returns active, open targets whose stored deadline is
// in [from, to].
func (s *Store) ListOpenWithDeadline(ctx context.Context, from, to time.Time) ([]models.MonitorTarget, error) {
	return s.queryTargets(ctx, "SELECT "+targetCols+
		" FROM monitor_targets WHERE is_active AND is_open AND deadline BETWEEN $1 AND $2 ORDER BY deadline", from, to)
}

// UpdateTarget applies the non-nil fields of u.
func (s *Store) UpdateTarget(ctx context.Context, schoolNo string, u models.TargetUpdate) error {
	set, args := buildTargetUpdate(u)
	if len(set) == 0 {
		return nil
	}
	args = append(args, schoolNo)
	sql := fmt.Sprintf("UPDATE monitor_targets SET %s, updated_at = NOW() WHERE school_no = $%d",
		strings.Join(set, ", "), len(args))

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update target %s: %w", schoolNo, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func buildTargetUpdate(u models.TargetUpdate) ([]string, []any) {
	var set []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.LastChecked != nil {
		add("last_checked", *u.LastChecked)
	}
	if u.LastContentHash != nil {
		add("last_content_hash", *u.LastContentHash)
	}
	if u.LastContent != nil {
		add("last_content", *u.LastContent)
	}
	if u.SuccessCount != nil {
		add("success_count", *u.SuccessCount)
	}
	if u.ErrorCount != nil {
		add("error_count", *u.ErrorCount)
	}
	if u.ClearLastError {
		set = append(set, "last_error = NULL")
	} else if u.LastError != nil {
		add("last_error", *u.LastError)
	}
	if st := u.ApplicationStatus; st != nil {
		reqs := st.Requirements
		if reqs == nil {
			reqs = []string{}
		}
		add("is_open", st.IsOpen)
		add("status_updated_at", st.LastUpdated)
		add("start_date", st.StartDate)
		add("end_date", st.EndDate)
		add("deadline", st.Deadline)
		add("requirements", reqs)
		add("notes", st.Notes)
	}
	return set, args
}

// PatchTarget edits the descriptive fields of a target and returns the result.
func (s *Store) PatchTarget(ctx context.Context, schoolNo string, p models.TargetPatch) (*models.MonitorTarget, error) {
	var set []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if p.SchoolName != nil {
		add("school_name", *p.SchoolName)
	}
	if p.WebsiteURL != nil {
		add("website_url", *p.WebsiteURL)
	}
	if p.ApplicationPageURL != nil {
		args = append(args, *p.ApplicationPageURL)
		set = append(set, fmt.Sprintf("application_page_url = NULLIF($%d, '')", len(args)))
	}
	if p.IsActive != nil {
		add("is_active", *p.IsActive)
	}
	if p.CheckFrequency != nil {
		if !p.CheckFrequency.Valid() {
			return nil, fmt.Errorf("invalid check frequency %q", *p.CheckFrequency)
		}
		add("check_frequency", string(*p.CheckFrequency))
	}
	if p.MonitoringConfig != nil {
		raw, err := json.Marshal(p.MonitoringConfig)
		if err != nil {
			return nil, err
		}
		add("monitoring_config", raw)
	}
	if len(set) == 0 {
		return s.GetTarget(ctx, schoolNo)
	}

	args = append(args, schoolNo)
	sql := fmt.Sprintf("UPDATE monitor_targets SET %s, updated_at = NOW() WHERE school_no = $%d RETURNING %s",
		strings.Join(set, ", "), len(args), targetCols)
	t, err := scanTarget(s.pool.QueryRow(ctx, sql, args...).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patch target %s: %w", schoolNo, err)
	}
	return &t, nil
}

func (s *Store) ToggleTarget(ctx context.Context, schoolNo string) (*models.MonitorTarget, error) {
	row := s.pool.QueryRow(ctx, `UPDATE monitor_targets SET is_active = NOT is_active, updated_at = NOW()
		WHERE school_no = $1 RETURNING `+targetCols, schoolNo)
	t, err := scanTarget(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteTarget(ctx context.Context, schoolNo string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM monitor_targets WHERE school_no = $1", schoolNo)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates monitoring counters across all targets.
func (s *Store) Stats(ctx context.Context) (*models.MonitoringStats, error) {
	st := &models.MonitoringStats{ByFrequency: map[string]int{}, RecentActivity: []models.RecentCheck{}}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COALESCE(SUM(error_count), 0),
			COALESCE(SUM(success_count), 0),
			COALESCE(AVG(error_count), 0),
			COALESCE(AVG(success_count), 0),
			COUNT(*) FILTER (WHERE is_open),
			COUNT(*) FILTER (WHERE NOT is_open)
		FROM monitor_targets
	`).Scan(&st.Total, &st.Active, &st.TotalErrors, &st.TotalSuccess,
		&st.AvgErrors, &st.AvgSuccess, &st.OpenCount, &st.ClosedCount)
	if err != nil {
		return nil, fmt.Errorf("stats totals: %w", err)
	}
	st.Inactive = st.Total - st.Active

	rows, err := s.pool.Query(ctx, "SELECT check_frequency, COUNT(*) FROM monitor_targets GROUP BY check_frequency")
	if err != nil {
		return nil, fmt.Errorf("stats by frequency: %w", err)
	}
	for rows.Next() {
		var freq string
		var n int
		if err := rows.Scan(&freq, &n); err != nil {
			rows.Close()
			return nil, err
		}
		st.ByFrequency[freq] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT school_no, school_name, last_checked, error_count, success_count, is_open
		FROM monitor_targets WHERE last_checked IS NOT NULL
		ORDER BY last_checked DESC LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("stats recent activity: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rc models.RecentCheck
		if err := rows.Scan(&rc.SchoolNo, &rc.SchoolName, &rc.LastChecked, &rc.ErrorCount, &rc.SuccessCount, &rc.IsOpen); err != nil {
			return nil, err
		}
		st.RecentActivity = append(st.RecentActivity, rc)
	}
	return st, rows.Err()
}
