package leaderboard

import (
	"sort"
	"strings"
	"time"

	"github.com/mintup-social/internal/domain"
)

// DefaultLimit is the default truncation limit for both rankings
const DefaultLimit = 10

// Input holds the pre-assembled collections a leaderboard is built from.
// The caller partitions registrations by event; a missing entry for an event
// is treated as that event having no registrations.
type Input struct {
	Events               []domain.Event
	RegistrationsByEvent map[string][]domain.Registration
	Members              []domain.MemberProfile
}

// Build computes the top-attendees and attendance-streak rankings for one
// community. It is a pure single pass over the supplied collections: no clock,
// no I/O, no persistent state. Given identical inputs (including now) the
// output is identical across runs.
func Build(in Input, now time.Time, maxTop, maxStreak int) domain.LeaderboardResult {
	result := domain.LeaderboardResult{
		TopAttendees:     []domain.TopAttendeeEntry{},
		AttendanceStreak: []domain.StreakEntry{},
	}

	// No ranking is meaningful without both events and members.
	if len(in.Events) == 0 || len(in.Members) == 0 {
		return result
	}

	memberByID := make(map[string]domain.MemberProfile, len(in.Members))
	for _, m := range in.Members {
		memberByID[m.UserID] = m
	}

	// Eligible attendee set per event, shared by both rankings: a registration
	// counts iff it is not rejected, carries a check-in, and the user is a
	// current member of the roster.
	attended := make(map[string]map[string]bool, len(in.Events))
	for _, ev := range in.Events {
		set := make(map[string]bool)
		for _, reg := range in.RegistrationsByEvent[ev.ID] {
			if reg.Status == domain.RegistrationRejected || !reg.CheckedIn() {
				continue
			}
			if _, ok := memberByID[reg.UserID]; !ok {
				continue
			}
			set[reg.UserID] = true
		}
		attended[ev.ID] = set
	}

	result.TopAttendees = buildTopAttendees(in.Events, attended, memberByID, maxTop)
	result.AttendanceStreak = buildStreaks(in.Events, attended, memberByID, now, maxStreak)
	return result
}

// buildTopAttendees ranks members by the number of distinct events attended.
func buildTopAttendees(
	events []domain.Event,
	attended map[string]map[string]bool,
	memberByID map[string]domain.MemberProfile,
	limit int,
) []domain.TopAttendeeEntry {
	if limit <= 0 {
		return []domain.TopAttendeeEntry{}
	}

	// Duplicate registrations for the same event contribute once: the per-event
	// sets already collapse them.
	counts := make(map[string]int)
	for _, ev := range events {
		for userID := range attended[ev.ID] {
			counts[userID]++
		}
	}

	entries := make([]domain.TopAttendeeEntry, 0, len(counts))
	for userID, count := range counts {
		member := memberByID[userID]
		entries = append(entries, domain.TopAttendeeEntry{
			UserID:              userID,
			Name:                member.Name,
			ImageURL:            member.ImageURL,
			TotalEventsAttended: count,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalEventsAttended != entries[j].TotalEventsAttended {
			return entries[i].TotalEventsAttended > entries[j].TotalEventsAttended
		}
		ni, nj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entries[i].UserID < entries[j].UserID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	// Rank reflects position within the truncated list, starting at 1.
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// buildStreaks ranks members by consecutive most-recent completed events
// attended. A gap breaks the streak; it does not resume on older events.
func buildStreaks(
	events []domain.Event,
	attended map[string]map[string]bool,
	memberByID map[string]domain.MemberProfile,
	now time.Time,
	limit int,
) []domain.StreakEntry {
	if limit <= 0 {
		return []domain.StreakEntry{}
	}

	completed := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.Completed(now) {
			completed = append(completed, ev)
		}
	}
	// Most recent first. Event ID is the secondary key so that events sharing
	// a start date still order identically across runs.
	sort.Slice(completed, func(i, j int) bool {
		if !completed[i].StartDate.Equal(completed[j].StartDate) {
			return completed[i].StartDate.After(completed[j].StartDate)
		}
		return completed[i].ID < completed[j].ID
	})

	entries := make([]domain.StreakEntry, 0, len(memberByID))
	for _, m := range memberByID {
		streak := 0
		for _, ev := range completed {
			if !attended[ev.ID][m.UserID] {
				break
			}
			streak++
		}
		if streak == 0 {
			continue
		}
		entries = append(entries, domain.StreakEntry{
			UserID:   m.UserID,
			Name:     m.Name,
			ImageURL: m.ImageURL,
			Streak:   streak,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Streak != entries[j].Streak {
			return entries[i].Streak > entries[j].Streak
		}
		ni, nj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entries[i].UserID < entries[j].UserID
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
