package leaderboard

import (
	"reflect"
	"testing"
	"time"

	"github.com/mintup-social/internal/domain"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func event(id string, daysAgo int) domain.Event {
	return domain.Event{
		ID:          id,
		CommunityID: "c1",
		StartDate:   testNow.AddDate(0, 0, -daysAgo),
	}
}

func member(id, name string) domain.MemberProfile {
	return domain.MemberProfile{UserID: id, Name: name, ImageURL: "https://img/" + id}
}

func checkedIn(eventID, userID string) domain.Registration {
	at := testNow.Add(-time.Hour)
	return domain.Registration{
		ID:          eventID + "-" + userID,
		EventID:     eventID,
		UserID:      userID,
		Status:      domain.RegistrationApproved,
		CheckedInAt: &at,
	}
}

func TestBuildEmptyInputs(t *testing.T) {
	members := []domain.MemberProfile{member("u1", "Ada")}
	events := []domain.Event{event("e1", 1)}

	for name, in := range map[string]Input{
		"no events":  {Members: members},
		"no members": {Events: events},
		"nothing":    {},
	} {
		got := Build(in, testNow, DefaultLimit, DefaultLimit)
		if len(got.TopAttendees) != 0 || len(got.AttendanceStreak) != 0 {
			t.Fatalf("%s: expected empty result, got %+v", name, got)
		}
	}
}

func TestBuildCountsDistinctEvents(t *testing.T) {
	in := Input{
		Events:  []domain.Event{event("e1", 1)},
		Members: []domain.MemberProfile{member("u1", "Ada")},
		RegistrationsByEvent: map[string][]domain.Registration{
			// Two checked-in registrations for the same event count once.
			"e1": {checkedIn("e1", "u1"), checkedIn("e1", "u1")},
		},
	}

	got := Build(in, testNow, DefaultLimit, DefaultLimit)
	if len(got.TopAttendees) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got.TopAttendees))
	}
	if got.TopAttendees[0].TotalEventsAttended != 1 {
		t.Fatalf("expected 1 event attended, got %d", got.TopAttendees[0].TotalEventsAttended)
	}
}

func TestBuildExcludesRejectedAndUncheckedAndNonMembers(t *testing.T) {
	rejected := checkedIn("e1", "u1")
	rejected.Status = domain.RegistrationRejected

	unchecked := checkedIn("e1", "u2")
	unchecked.CheckedInAt = nil

	in := Input{
		Events: []domain.Event{event("e1", 1)},
		Members: []domain.MemberProfile{
			member("u1", "Ada"),
			member("u2", "Bob"),
		},
		RegistrationsByEvent: map[string][]domain.Registration{
			// u3 checked in but is not on the roster.
			"e1": {rejected, unchecked, checkedIn("e1", "u3")},
		},
	}

	got := Build(in, testNow, DefaultLimit, DefaultLimit)
	if len(got.TopAttendees) != 0 {
		t.Fatalf("expected no top attendees, got %+v", got.TopAttendees)
	}
	if len(got.AttendanceStreak) != 0 {
		t.Fatalf("expected no streaks, got %+v", got.AttendanceStreak)
	}
}

func TestBuildStreakGapBreaks(t *testing.T) {
	in := Input{
		Events: []domain.Event{event("e1", 3), event("e2", 2), event("e3", 1)},
		Members: []domain.MemberProfile{
			member("u1", "Ada"),
		},
		RegistrationsByEvent: map[string][]domain.Registration{
			// Attended the newest and the oldest, missed the middle one.
			"e1": {checkedIn("e1", "u1")},
			"e3": {checkedIn("e3", "u1")},
		},
	}

	got := Build(in, testNow, DefaultLimit, DefaultLimit)
	if len(got.AttendanceStreak) != 1 {
		t.Fatalf("expected 1 streak entry, got %d", len(got.AttendanceStreak))
	}
	if got.AttendanceStreak[0].Streak != 1 {
		t.Fatalf("gap should break streak: expected 1, got %d", got.AttendanceStreak[0].Streak)
	}
}

func TestBuildStreakIgnoresFutureEvents(t *testing.T) {
	future := domain.Event{ID: "e9", CommunityID: "c1", StartDate: testNow.Add(24 * time.Hour)}
	in := Input{
		Events:  []domain.Event{event("e1", 1), future},
		Members: []domain.MemberProfile{member("u1", "Ada")},
		RegistrationsByEvent: map[string][]domain.Registration{
			"e1": {checkedIn("e1", "u1")},
			// Check-in on an upcoming event must not count toward the streak.
			"e9": {checkedIn("e9", "u1")},
		},
	}

	got := Build(in, testNow, DefaultLimit, DefaultLimit)
	if len(got.AttendanceStreak) != 1 || got.AttendanceStreak[0].Streak != 1 {
		t.Fatalf("expected streak 1 from completed events only, got %+v", got.AttendanceStreak)
	}
	// The future event still counts for total attendance.
	if got.TopAttendees[0].TotalEventsAttended != 2 {
		t.Fatalf("expected 2 events attended, got %d", got.TopAttendees[0].TotalEventsAttended)
	}
}

func TestBuildStreakZeroExcluded(t *testing.T) {
	in := Input{
		Events: []domain.Event{event("e1", 2), event("e2", 1)},
		Members: []domain.MemberProfile{
			member("u1", "Ada"),
			member("u2", "Bob"),
		},
		RegistrationsByEvent: map[string][]domain.Registration{
			// u2 attended only the older event: streak 0 once e2 is missed.
			"e1": {checkedIn("e1", "u1"), checkedIn("e1", "u2")},
			"e2": {checkedIn("e2", "u1")},
		},
	}

	got := Build(in, testNow, DefaultLimit, DefaultLimit)
	if len(got.AttendanceStreak) != 1 {
		t.Fatalf("expected only u1 in streaks, got %+v", got.AttendanceStreak)
	}
	if got.AttendanceStreak[0].UserID != "u1" || got.AttendanceStreak[0].Streak != 2 {
		t.Fatalf("expected u1 with streak 2, got %+v", got.AttendanceStreak[0])
	}
}

func TestBuildTieBreakByNameCaseInsensitive(t *testing.T) {
	in := Input{
		Events: []domain.Event{event("e1", 1)},
		Members: []domain.MemberProfile{
			member("u1", "zoe"),
			member("u2", "Alice"),
			member("u3", ""),
		},
		RegistrationsByEvent: map[string][]domain.Registration{
			"e1": {checkedIn("e1", "u1"), checkedIn("e1", "u2"), checkedIn("e1", "u3")},
		},
	}

	got := Build(in, testNow, DefaultLimit, DefaultLimit)
	order := []string{}
	for _, e := range got.TopAttendees {
		order = append(order, e.UserID)
	}
	// Empty name sorts first among ties, then case-insensitive ascending.
	want := []string{"u3", "u2", "u1"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i, e := range got.TopAttendees {
		if e.Rank != i+1 {
			t.Fatalf("expected dense rank %d, got %d", i+1, e.Rank)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	in := Input{
		Events: []domain.Event{event("e1", 3), event("e2", 2), event("e3", 1)},
		Members: []domain.MemberProfile{
			member("u1", "Mallory"), member("u2", "mallory"), member("u3", "Eve"),
			member("u4", "carol"), member("u5", "Carol"),
		},
		RegistrationsByEvent: map[string][]domain.Registration{
			"e1": {checkedIn("e1", "u1"), checkedIn("e1", "u2"), checkedIn("e1", "u3")},
			"e2": {checkedIn("e2", "u2"), checkedIn("e2", "u3"), checkedIn("e2", "u4")},
			"e3": {checkedIn("e3", "u3"), checkedIn("e3", "u4"), checkedIn("e3", "u5")},
		},
	}

	first := Build(in, testNow, DefaultLimit, DefaultLimit)
	for i := 0; i < 20; i++ {
		again := Build(in, testNow, DefaultLimit, DefaultLimit)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\nfirst: %+v\nagain: %+v", i, first, again)
		}
	}
}

func TestBuildTruncation(t *testing.T) {
	in := Input{
		Events: []domain.Event{event("e1", 3), event("e2", 2), event("e3", 1)},
		Members: []domain.MemberProfile{
			member("u1", "Ada"), member("u2", "Bob"), member("u3", "Cid"),
			member("u4", "Dot"), member("u5", "Eli"),
		},
		RegistrationsByEvent: map[string][]domain.Registration{
			"e1": {checkedIn("e1", "u1"), checkedIn("e1", "u2"), checkedIn("e1", "u3"), checkedIn("e1", "u4"), checkedIn("e1", "u5")},
			"e2": {checkedIn("e2", "u1"), checkedIn("e2", "u2"), checkedIn("e2", "u3")},
			"e3": {checkedIn("e3", "u1")},
		},
	}

	got := Build(in, testNow, 2, DefaultLimit)
	if len(got.TopAttendees) != 2 {
		t.Fatalf("expected exactly 2 entries, got %d", len(got.TopAttendees))
	}
	if got.TopAttendees[0].UserID != "u1" || got.TopAttendees[0].Rank != 1 {
		t.Fatalf("expected u1 at rank 1, got %+v", got.TopAttendees[0])
	}
	if got.TopAttendees[1].UserID != "u2" || got.TopAttendees[1].Rank != 2 {
		t.Fatalf("expected u2 at rank 2, got %+v", got.TopAttendees[1])
	}
}

func TestBuildNonPositiveLimits(t *testing.T) {
	in := Input{
		Events:  []domain.Event{event("e1", 1)},
		Members: []domain.MemberProfile{member("u1", "Ada")},
		RegistrationsByEvent: map[string][]domain.Registration{
			"e1": {checkedIn("e1", "u1")},
		},
	}

	got := Build(in, testNow, 0, -1)
	if len(got.TopAttendees) != 0 {
		t.Fatalf("maxTop=0 should yield empty top attendees, got %+v", got.TopAttendees)
	}
	if len(got.AttendanceStreak) != 0 {
		t.Fatalf("maxStreak<0 should yield empty streaks, got %+v", got.AttendanceStreak)
	}
}

func TestBuildMissingRegistrationsEntry(t *testing.T) {
	in := Input{
		Events:  []domain.Event{event("e1", 2), event("e2", 1)},
		Members: []domain.MemberProfile{member("u1", "Ada")},
		RegistrationsByEvent: map[string][]domain.Registration{
			// e2 has no entry at all: treated as no registrations, not an error.
			"e1": {checkedIn("e1", "u1")},
		},
	}

	got := Build(in, testNow, DefaultLimit, DefaultLimit)
	if len(got.TopAttendees) != 1 || got.TopAttendees[0].TotalEventsAttended != 1 {
		t.Fatalf("expected 1 attended event, got %+v", got.TopAttendees)
	}
	// Most recent event (e2) was missed, so no streak survives.
	if len(got.AttendanceStreak) != 0 {
		t.Fatalf("expected no streak entries, got %+v", got.AttendanceStreak)
	}
}
