package resolver

import (
	"math"
	"time"

	"github.com/aussiebroadwan/consent/internal/consent/domain"
)

const day = 24 * time.Hour

// DaysUntilDeadline is the number of days from now until deadline, rounded
// up. It is negative once at least a whole day has passed.
func DaysUntilDeadline(deadline, now time.Time) int {
	d := deadline.Sub(now)
	return int(math.Ceil(float64(d) / float64(day)))
}

// IsVersionOverdue reports whether v's deadline lies at least one whole day
// in the past. Versions without a deadline are never overdue.
func IsVersionOverdue(v domain.PolicyVersion, now time.Time) bool {
	if !v.HasDeadline() {
		return false
	}
	return DaysUntilDeadline(v.Deadline.Time, now) < 0
}

// GraceEndsAt returns the end of v's grace period: its deadline plus
// gracePeriodDays. The grace period has no effect on status; it only tells
// downstream consumers when restrictions may begin.
func GraceEndsAt(v domain.PolicyVersion) (time.Time, bool) {
	if !v.HasDeadline() {
		return time.Time{}, false
	}
	end := v.Deadline.Time
	if v.GracePeriodDays != nil && *v.GracePeriodDays > 0 {
		end = end.Add(time.Duration(*v.GracePeriodDays) * day)
	}
	return end, true
}

// GraceExpired reports whether now is past v's grace period.
func GraceExpired(v domain.PolicyVersion, now time.Time) bool {
	end, ok := GraceEndsAt(v)
	return ok && now.After(end)
}

// Urgency buckets the time left before a version's deadline.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyOverdue  Urgency = "overdue"
	UrgencyUrgent   Urgency = "urgent"
	UrgencySoon     Urgency = "soon"
	UrgencyUpcoming Urgency = "upcoming"
)

// DeadlineUrgency classifies v: overdue below zero days, urgent within three
// days, soon within seven.
func DeadlineUrgency(v domain.PolicyVersion, now time.Time) Urgency {
	if !v.HasDeadline() {
		return UrgencyNone
	}
	switch days := DaysUntilDeadline(v.Deadline.Time, now); {
	case days < 0:
		return UrgencyOverdue
	case days <= 3:
		return UrgencyUrgent
	case days <= 7:
		return UrgencySoon
	default:
		return UrgencyUpcoming
	}
}
