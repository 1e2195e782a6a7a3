package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sysdevcode/mailsift/internal/extract"
)

type jsonAttachment struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
}

type jsonContact struct {
	Email           string           `json:"email"`
	Name            string           `json:"name"`
	MessageCount    int              `json:"message_count"`
	FirstSeen       string           `json:"first_seen,omitempty"`
	FirstSeenMillis int64            `json:"first_seen_ms,omitempty"`
	LastSeen        string           `json:"last_seen,omitempty"`
	LastSeenMillis  int64            `json:"last_seen_ms,omitempty"`
	LatestSubject   string           `json:"latest_subject,omitempty"`
	Domain          string           `json:"domain"`
	HasAttachments  bool             `json:"has_attachments"`
	Attachments     []jsonAttachment `json:"attachments,omitempty"`
}

type jsonDocument struct {
	ExtractionDate    string        `json:"extraction_date"`
	TotalUniqueEmails int           `json:"total_unique_emails"`
	TotalMessages     int           `json:"total_messages"`
	Contacts          []jsonContact `json:"contacts"`
}

// WriteJSON writes the contact list as a single JSON document with a
// run summary header, backing up any existing file first.
func WriteJSON(path string, contacts []*extract.Contact) error {
	if err := BackupExisting(path); err != nil {
		return err
	}

	doc := jsonDocument{
		ExtractionDate: time.Now().Format(timeLayout),
		Contacts:       make([]jsonContact, 0, len(contacts)),
	}

	for _, c := range contacts {
		doc.TotalMessages += c.MessageCount

		jc := jsonContact{
			Email:           c.Email,
			Name:            c.Name,
			MessageCount:    c.MessageCount,
			FirstSeen:       formatMillis(c.FirstSeen),
			FirstSeenMillis: c.FirstSeen,
			LastSeen:        formatMillis(c.LastSeen),
			LastSeenMillis:  c.LastSeen,
			LatestSubject:   c.LatestSubject,
			Domain:          domainOf(c.Email),
			HasAttachments:  c.HasAttachments,
		}
		for _, a := range c.Attachments {
			jc.Attachments = append(jc.Attachments, jsonAttachment{
				Filename: a.Filename, Path: a.Path, Size: a.Size,
			})
		}
		doc.Contacts = append(doc.Contacts, jc)
	}
	doc.TotalUniqueEmails = len(doc.Contacts)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
