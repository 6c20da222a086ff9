package ticket

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ticketdeck/internal/constants"
	"ticketdeck/internal/store"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(t.TempDir(), store.New(time.Minute))
}

func TestSessionName(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"IN-413", "td-IN-413"},
		{"feature/login", "td-feature-login"},
		{"a b.c", "td-a-b-c"},
	}
	for _, tc := range cases {
		if got := SessionName(tc.id); got != tc.want {
			t.Errorf("SessionName(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestSaveAndGet(t *testing.T) {
	r := testRegistry(t)

	in := &Ticket{
		ID:          "IN-413",
		Title:       "Add API endpoint",
		Branch:      "feature/IN-413-add-api",
		TmuxSession: SessionName("IN-413"),
		Status:      StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := r.Get("IN-413")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != in.Title || got.Branch != in.Branch || got.Status != StatusActive {
		t.Errorf("got %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("Save did not set UpdatedAt")
	}
}

func TestGetMissing(t *testing.T) {
	r := testRegistry(t)
	if _, err := r.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if r.Exists("nope") {
		t.Error("Exists on missing ticket")
	}
}

func TestListSkipsCorrupt(t *testing.T) {
	r := testRegistry(t)

	for _, id := range []string{"B-2", "A-1", "C-3"} {
		if err := r.Save(&Ticket{ID: id, Status: StatusActive}); err != nil {
			t.Fatal(err)
		}
	}

	// Corrupt one record on disk.
	bad := filepath.Join(r.Dir("B-2"), constants.TicketFile)
	if err := os.WriteFile(bad, []byte(":\nnot yaml {{{"), 0644); err != nil {
		t.Fatal(err)
	}

	tickets, err := r.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("got %d tickets, want 2", len(tickets))
	}
	if tickets[0].ID != "A-1" || tickets[1].ID != "C-3" {
		t.Errorf("unexpected order: %v, %v", tickets[0].ID, tickets[1].ID)
	}
}

func TestListActiveExcludesArchived(t *testing.T) {
	r := testRegistry(t)

	_ = r.Save(&Ticket{ID: "A-1", Status: StatusActive})
	_ = r.Save(&Ticket{ID: "B-2", Status: StatusArchived})
	_ = r.Save(&Ticket{ID: "C-3", Status: StatusBlocked})

	active, err := r.ListActive()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active, want 2", len(active))
	}
	for _, tk := range active {
		if tk.Status == StatusArchived {
			t.Errorf("archived ticket in active listing: %+v", tk)
		}
	}
}
