package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/analysis"
	"github.com/hkschools/admission-monitor/internal/models"
	"github.com/hkschools/admission-monitor/internal/notify"
)

// classifyChange picks the notification for a detected change. Precedence:
// opened, closed, deadline moved, anything else.
func classifyChange(target models.MonitorTarget, res models.AnalysisResult) (models.NotificationType, string, string, models.Priority) {
	prev := target.ApplicationStatus
	name := target.SchoolName
	switch {
	case res.IsOpen && !prev.IsOpen:
		return models.NotifyApplicationOpen, "Applications Now Open!",
			fmt.Sprintf("Applications for %s are now open!", name), models.PriorityHigh
	case !res.IsOpen && prev.IsOpen:
		return models.NotifyApplicationClosed, "Applications Closed",
			fmt.Sprintf("Applications for %s have closed.", name), models.PriorityMedium
	case res.Deadline != nil && (prev.Deadline == nil || !prev.Deadline.Equal(*res.Deadline)):
		return models.NotifyDeadlineUpdate, "Application Deadline Updated",
			fmt.Sprintf("The application deadline for %s has been updated.", name), models.PriorityHigh
	}
	return models.NotifyWebsiteUpdate, "Website Update",
		fmt.Sprintf("The website for %s has been updated.", name), models.PriorityMedium
}

func deliveryMethods(p models.NotificationPreferences) []models.DeliveryMethod {
	methods := []models.DeliveryMethod{}
	if p.Email {
		methods = append(methods, models.DeliveryEmail)
	}
	if p.Push {
		methods = append(methods, models.DeliveryPush)
	}
	return methods
}

// notifyChange records one notification per interested user and returns how
// many were created. Failures are logged and never fail the check.
func (s *Service) notifyChange(ctx context.Context, target models.MonitorTarget, res models.AnalysisResult) int {
	log := s.log.With(zap.String("school_no", target.SchoolNo))

	users, err := s.store.FindInterestedUsers(ctx, target.SchoolNo)
	if err != nil {
		log.Error("find interested users", zap.Error(err))
		return 0
	}

	typ, title, message, priority := classifyChange(target, res)
	created := 0
	for _, u := range users {
		n := models.Notification{
			UserID:         u.ID,
			SchoolNo:       target.SchoolNo,
			SchoolName:     target.SchoolName,
			Type:           typ,
			Title:          title,
			Message:        message,
			Priority:       priority,
			Status:         models.NotificationPending,
			DeliveryMethod: deliveryMethods(u.Preferences),
			Metadata: models.NotificationMetadata{
				WebsiteURL:     target.WebsiteURL,
				ChangeDetected: string(typ),
				Status:         res.Status,
				Deadline:       res.Deadline,
				Requirements:   res.Requirements,
				Confidence:     res.Confidence,
			},
		}
		if err := s.store.CreateNotification(ctx, &n); err != nil {
			log.Error("create notification", zap.String("user_id", u.ID.String()), zap.Error(err))
			continue
		}
		created++

		if u.Preferences.Frequency == models.DigestImmediate || u.Preferences.Frequency == "" {
			s.deliver(ctx, u, []models.Notification{n})
		}
	}
	return created
}

type deliveryOutcome int

const (
	outcomeHeld deliveryOutcome = iota
	outcomeSent
	outcomeFailed
)

// deliver hands notes to the notifier and records the outcome on each. With
// no notifier, or no channel the user can be reached on, the notes stay
// pending.
func (s *Service) deliver(ctx context.Context, u models.User, notes []models.Notification) deliveryOutcome {
	if s.notifier == nil || len(notes) == 0 {
		return outcomeHeld
	}
	status, outcome := models.NotificationSent, outcomeSent
	if err := s.notifier.Deliver(ctx, u, notes); err != nil {
		if errors.Is(err, notify.ErrNoChannel) {
			s.log.Debug("no delivery channel, notifications left pending",
				zap.String("user_id", u.ID.String()), zap.Int("notifications", len(notes)))
			return outcomeHeld
		}
		status, outcome = models.NotificationFailed, outcomeFailed
		s.log.Warn("notification delivery failed", zap.String("user_id", u.ID.String()), zap.Error(err))
	}
	now := s.now()
	for _, n := range notes {
		if err := s.store.SetNotificationStatus(ctx, n.ID, status, now); err != nil {
			s.log.Error("update notification status", zap.String("notification_id", n.ID.String()), zap.Error(err))
		}
	}
	return outcome
}

type DigestSummary struct {
	Users  int `json:"users"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Held   int `json:"held"`
}

// ProcessDigests sends pending notifications to every user whose digest is
// due: immediately for "immediate", once the oldest pending notification is
// a day old for "daily" and a week old for "weekly".
func (s *Service) ProcessDigests(ctx context.Context) (DigestSummary, error) {
	var sum DigestSummary
	if s.notifier == nil {
		return sum, nil
	}
	users, err := s.store.ListUsersWithPending(ctx)
	if err != nil {
		return sum, fmt.Errorf("list users with pending notifications: %w", err)
	}

	now := s.now()
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		pending, err := s.store.ListPendingNotifications(ctx, u.ID)
		if err != nil {
			s.log.Error("list pending notifications", zap.String("user_id", u.ID.String()), zap.Error(err))
			continue
		}
		if len(pending) == 0 {
			continue
		}
		sum.Users++
		if !notify.DigestDue(u.Preferences.Frequency, pending[0].CreatedAt, now) {
			sum.Held += len(pending)
			continue
		}
		switch s.deliver(ctx, u, pending) {
		case outcomeSent:
			sum.Sent += len(pending)
		case outcomeFailed:
			sum.Failed += len(pending)
		default:
			sum.Held += len(pending)
		}
	}
	s.log.Info("digests processed", zap.Int("users", sum.Users), zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed), zap.Int("held", sum.Held))
	return sum, nil
}

// SendDeadlineReminders creates urgent reminders for open schools whose
// stored deadline falls within the reminder window. Each user is reminded at
// most once per school and deadline.
func (s *Service) SendDeadlineReminders(ctx context.Context) (int, error) {
	today := analysis.DateOnly(s.now())
	targets, err := s.store.ListOpenWithDeadline(ctx, today, today.Add(s.cfg.ReminderWindow))
	if err != nil {
		return 0, fmt.Errorf("list upcoming deadlines: %w", err)
	}

	created := 0
	for _, t := range targets {
		deadline := t.ApplicationStatus.Deadline
		if deadline == nil {
			continue
		}
		users, err := s.store.FindInterestedUsers(ctx, t.SchoolNo)
		if err != nil {
			s.log.Error("find interested users", zap.String("school_no", t.SchoolNo), zap.Error(err))
			continue
		}
		for _, u := range users {
			fresh, err := s.store.RecordReminder(ctx, u.ID, t.SchoolNo, *deadline)
			if err != nil {
				s.log.Error("record reminder", zap.String("school_no", t.SchoolNo), zap.Error(err))
				continue
			}
			if !fresh {
				continue
			}
			n := models.Notification{
				UserID:         u.ID,
				SchoolNo:       t.SchoolNo,
				SchoolName:     t.SchoolName,
				Type:           models.NotifyDeadlineReminder,
				Title:          "Application Deadline Approaching",
				Message:        fmt.Sprintf("The application deadline for %s is %s.", t.SchoolName, deadline.Format("2 January 2006")),
				Priority:       models.PriorityUrgent,
				Status:         models.NotificationPending,
				DeliveryMethod: deliveryMethods(u.Preferences),
				Metadata: models.NotificationMetadata{
					WebsiteURL:   t.WebsiteURL,
					Status:       models.StatusOpen,
					Deadline:     deadline,
					Requirements: t.ApplicationStatus.Requirements,
				},
			}
			if err := s.store.CreateNotification(ctx, &n); err != nil {
				s.log.Error("create reminder", zap.String("school_no", t.SchoolNo), zap.Error(err))
				continue
			}
			created++
			if u.Preferences.Frequency == models.DigestImmediate || u.Preferences.Frequency == "" {
				s.deliver(ctx, u, []models.Notification{n})
			}
		}
	}
	s.log.Info("deadline reminders created", zap.Int("count", created))
	return created, nil
}
