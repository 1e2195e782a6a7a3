package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLedgerMergeRules(t *testing.T) {
	l := NewLedger()
	id := Identity{Email: "jane.doe@example.com", Name: "Jane Doe"}

	l.Merge(Record{Identity: id, Subject: "Hi", ReceivedTime: 2000})
	l.Merge(Record{
		Identity:     Identity{Email: id.Email, Name: "Jane Elizabeth Doe"},
		Subject:      "Hi there",
		ReceivedTime: 1000,
	})

	got := l.Get(id.Email)
	want := &Contact{
		Email:         id.Email,
		Name:          "Jane Elizabeth Doe",
		MessageCount:  2,
		FirstSeen:     1000,
		LastSeen:      1000,
		LatestSubject: "Hi there",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("contact mismatch (-want +got):\n%s", diff)
	}
}

func TestLedgerNameNeverDowngrades(t *testing.T) {
	l := NewLedger()
	email := "a@example.com"

	l.Merge(Record{Identity: Identity{Email: email, Name: "Alice Anderson"}})
	l.Merge(Record{Identity: Identity{Email: email, Name: "Alice"}})
	l.Merge(Record{Identity: Identity{Email: email, Name: "Unknown"}})

	if got := l.Get(email).Name; got != "Alice Anderson" {
		t.Errorf("Name = %q, want %q", got, "Alice Anderson")
	}
}

func TestLedgerPlaceholderReplaced(t *testing.T) {
	l := NewLedger()
	email := "a@example.com"

	l.Merge(Record{Identity: Identity{Email: email, Name: "Unknown"}})
	l.Merge(Record{Identity: Identity{Email: email, Name: "Al"}})

	if got := l.Get(email).Name; got != "Al" {
		t.Errorf("Name = %q, want the placeholder replaced by %q", got, "Al")
	}
}

func TestLedgerSubjectKeepsLongest(t *testing.T) {
	l := NewLedger()
	email := "a@example.com"
	id := Identity{Email: email, Name: "A"}

	l.Merge(Record{Identity: id, Subject: "A longer original subject"})
	l.Merge(Record{Identity: id, Subject: "Short"})
	l.Merge(Record{Identity: id, Subject: ""})

	if got := l.Get(email).LatestSubject; got != "A longer original subject" {
		t.Errorf("LatestSubject = %q", got)
	}
}

func TestLedgerCountAndBoundsOrderInsensitive(t *testing.T) {
	times := []int64{3000, 1000, 2000}
	id := Identity{Email: "a@example.com", Name: "A"}

	l := NewLedger()
	for _, ts := range times {
		l.Merge(Record{Identity: id, ReceivedTime: ts})
	}

	c := l.Get(id.Email)
	if c.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", c.MessageCount)
	}
	if c.FirstSeen != 1000 {
		t.Errorf("FirstSeen = %d, want 1000", c.FirstSeen)
	}
	// LastSeen tracks the most recent observation, not the maximum.
	if c.LastSeen != 2000 {
		t.Errorf("LastSeen = %d, want 2000", c.LastSeen)
	}
}

func TestLedgerAttachmentsAccumulate(t *testing.T) {
	l := NewLedger()
	id := Identity{Email: "a@example.com", Name: "A"}

	l.Merge(Record{Identity: id, HasAttachment: true,
		Attachments: []Attachment{{Filename: "one.pdf"}}})
	l.Merge(Record{Identity: id,
		Attachments: []Attachment{{Filename: "two.pdf"}}})

	c := l.Get(id.Email)
	if !c.HasAttachments {
		t.Error("HasAttachments = false after an attachment observation")
	}
	if len(c.Attachments) != 2 {
		t.Errorf("len(Attachments) = %d, want 2", len(c.Attachments))
	}
}

func TestLedgerContactsOrdering(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 3; i++ {
		l.Merge(Record{Identity: Identity{Email: "busy@example.com", Name: "B"}})
	}
	l.Merge(Record{Identity: Identity{Email: "b@example.com", Name: "B"}})
	l.Merge(Record{Identity: Identity{Email: "a@example.com", Name: "A"}})

	var emails []string
	for _, c := range l.Contacts() {
		emails = append(emails, c.Email)
	}
	want := []string{"busy@example.com", "a@example.com", "b@example.com"}
	if diff := cmp.Diff(want, emails); diff != "" {
		t.Errorf("ordering mismatch (-want +got):\n%s", diff)
	}
}
