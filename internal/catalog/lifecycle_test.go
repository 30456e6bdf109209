package catalog

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusPublished, true},
		{StatusDraft, StatusArchived, true},
		{StatusPublished, StatusArchived, true},
		{StatusArchived, StatusPublished, true},
		{StatusArchived, StatusDraft, false},
		{StatusPublished, StatusDraft, false},
		{StatusPublished, StatusPublished, true},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestApplyTransitionArchive(t *testing.T) {
	now := time.Now()
	v := &Vehicle{Status: StatusPublished}

	if err := ApplyTransition(v, StatusArchived, now); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if v.Status != StatusArchived {
		t.Fatalf("expected archived, got %s", v.Status)
	}
	if v.Extra.ArchivedAt == nil || !v.Extra.ArchivedAt.Equal(now) {
		t.Fatalf("archived_at not recorded: %v", v.Extra.ArchivedAt)
	}
}

func TestApplyTransitionReactivateClearsAudit(t *testing.T) {
	now := time.Now()
	v := &Vehicle{Status: StatusArchived}
	v.Extra.FilterReason = "blocked_location"
	v.Extra.CleanupVerification = "confirmed_by_lookup"
	v.Extra.ArchivedAt = &now

	if err := ApplyTransition(v, StatusPublished, now); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if v.Status != StatusPublished {
		t.Fatalf("expected published, got %s", v.Status)
	}
	if v.Extra.FilterReason != "" || v.Extra.CleanupVerification != "" || v.Extra.ArchivedAt != nil {
		t.Fatalf("audit fields not cleared: %+v", v.Extra)
	}
}

func TestApplyTransitionRejectsInvalid(t *testing.T) {
	v := &Vehicle{Status: StatusArchived}
	if err := ApplyTransition(v, StatusDraft, time.Now()); err == nil {
		t.Fatal("expected invalid transition error")
	}
	if v.Status != StatusArchived {
		t.Fatal("status must not change on rejected transition")
	}
}
