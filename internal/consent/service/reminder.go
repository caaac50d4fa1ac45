package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
	"github.com/aussiebroadwan/consent/internal/consent/resolver"
	"github.com/aussiebroadwan/consent/internal/consent/store"
)

const (
	ReminderKindDeadline   = "deadline"
	ReminderKindEscalation = "escalation"
)

// ReminderService periodically reminds users of outstanding documents and
// escalates those left overdue past their grace period. Each delivery is
// recorded so a reminder goes out at most once per day.
type ReminderService struct {
	Store        store.Store
	Notifier     Notifier
	Logger       *slog.Logger
	Interval     time.Duration
	SlackChannel string
	Now          func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReminderService creates a reminder worker. If interval is 0 or
// negative, defaults to 1 hour.
func NewReminderService(st store.Store, notifier Notifier, logger *slog.Logger, interval time.Duration) *ReminderService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReminderService{
		Store:    st,
		Notifier: notifier,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *ReminderService) Start() {
	go s.run()
	s.Logger.Info("reminder service started", "interval", s.Interval)
}

// Stop blocks until an in-progress pass has finished.
func (s *ReminderService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("reminder service stopped")
}

func (s *ReminderService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.pass()
	for {
		select {
		case <-ticker.C:
			s.pass()
		case <-s.stopCh:
			return
		}
	}
}

func (s *ReminderService) pass() {
	sent, err := s.RunOnce(context.Background())
	if err != nil {
		s.Logger.Error("reminder pass failed", "error", err)
		return
	}
	s.Logger.Info("reminder pass completed", "sent", sent)
}

// RunOnce performs a single reminder pass and returns the number of
// notifications delivered.
func (s *ReminderService) RunOnce(ctx context.Context) (int, error) {
	if s.Notifier == nil {
		return 0, nil
	}
	org, err := organizationSettings(ctx, s.Store)
	if err != nil {
		return 0, err
	}
	if !org.Notifications.Enabled {
		return 0, nil
	}

	catalog, err := loadCatalog(ctx, s.Store)
	if err != nil {
		return 0, err
	}
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	companies, err := s.Store.Companies().ListCompanies(ctx)
	if err != nil {
		return 0, err
	}

	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	companyByID := make(map[string]domain.Company, len(companies))
	for _, c := range companies {
		companyByID[c.ID] = c
	}

	now := nowOr(s.Now)
	sent := 0
	for _, p := range catalog {
		if !p.IsActive || !p.Settings.NotificationSettings.SendReminders {
			continue
		}
		current, ok := p.Current()
		if !ok || !current.HasDeadline() {
			continue
		}
		for _, u := range users {
			if !u.IsActive {
				continue
			}
			n, err := s.remind(ctx, p, current, u, org, byID, companyByID, now)
			if err != nil {
				return sent, err
			}
			sent += n
		}
	}
	return sent, nil
}

func (s *ReminderService) remind(
	ctx context.Context,
	p domain.PolicyData,
	current domain.PolicyVersion,
	u domain.User,
	org domain.OrganizationSettings,
	users map[string]domain.User,
	companies map[string]domain.Company,
	now time.Time,
) (int, error) {
	switch resolver.ResolveStatus(p, u, org, now) {
	case domain.StatusPending:
		days := resolver.DaysUntilDeadline(current.Deadline.Time, now)
		schedule := p.Settings.NotificationSettings.ReminderDays
		if len(schedule) == 0 {
			schedule = org.Notifications.ReminderDays
		}
		if !slices.Contains(schedule, days) {
			return 0, nil
		}
		subject := fmt.Sprintf("%s %s: acceptance due in %d day(s)", p.Title, current.Version, days)
		body := fmt.Sprintf("Please review and accept %s version %s before %s.",
			p.Title, current.Version, current.Deadline.Format(time.DateOnly))
		// keyed by countdown value: one ceil-day window spans two calendar days
		return s.deliver(ctx, p, current, u, ReminderKindDeadline, strconv.Itoa(days), []string{u.Email}, subject, body, now)

	case domain.StatusOverdue:
		if !resolver.GraceExpired(current, now) {
			return 0, nil
		}
		recipients := escalationRecipients(p, u, org, users, companies)
		subject := fmt.Sprintf("%s %s overdue for %s", p.Title, current.Version, u.Name)
		body := fmt.Sprintf("%s <%s> has not accepted %s version %s, due %s.",
			u.Name, u.Email, p.Title, current.Version, current.Deadline.Format(time.DateOnly))
		return s.deliver(ctx, p, current, u, ReminderKindEscalation, now.Format(time.DateOnly), recipients, subject, body, now)
	}
	return 0, nil
}

func (s *ReminderService) deliver(
	ctx context.Context,
	p domain.PolicyData,
	v domain.PolicyVersion,
	u domain.User,
	kind, slot string,
	to []string,
	subject, body string,
	now time.Time,
) (int, error) {
	if len(to) == 0 && s.SlackChannel == "" {
		return 0, nil
	}

	fresh, err := s.Store.Reminders().RecordReminder(ctx, store.ReminderKey{
		PolicyID: p.ID,
		Version:  v.Version,
		UserID:   u.ID,
		Kind:     kind,
		Day:      slot,
	}, now)
	if err != nil {
		return 0, err
	}
	if !fresh {
		return 0, nil
	}

	sent := 0
	if len(to) > 0 {
		if err := s.Notifier.SendEmail(ctx, to, subject, body); err != nil {
			s.Logger.Warn("failed to send reminder email",
				slog.String("policy_id", p.ID),
				slog.String("user_id", u.ID),
				slog.String("kind", kind),
				slog.Any("error", err),
			)
		} else {
			sent++
		}
	}
	if kind == ReminderKindEscalation && s.SlackChannel != "" {
		if err := s.Notifier.SendSlack(ctx, s.SlackChannel, subject); err != nil {
			s.Logger.Warn("failed to send slack escalation",
				slog.String("policy_id", p.ID),
				slog.String("user_id", u.ID),
				slog.Any("error", err),
			)
		} else {
			sent++
		}
	}
	return sent, nil
}

// escalationRecipients merges the document's escalation emails, the emails
// of the organization's escalation chain and the user's company
// notification list, without duplicates.
func escalationRecipients(
	p domain.PolicyData,
	u domain.User,
	org domain.OrganizationSettings,
	users map[string]domain.User,
	companies map[string]domain.Company,
) []string {
	var out []string
	add := func(email string) {
		email = strings.TrimSpace(email)
		if email != "" && !slices.Contains(out, email) {
			out = append(out, email)
		}
	}

	for _, e := range p.Settings.NotificationSettings.EscalationEmails {
		add(e)
	}
	for _, id := range org.Notifications.EscalationChain {
		if m, ok := users[id]; ok {
			add(m.Email)
		}
	}
	if c, ok := companies[u.CompanyID]; ok && u.HasCompany() {
		for _, e := range c.Settings.NotificationEmails {
			add(e)
		}
	}
	return out
}
