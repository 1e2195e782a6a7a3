package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/sysdevcode/mailsift/internal/extract"
)

var csvHeader = []string{
	"email", "name", "message_count", "first_seen", "last_seen",
	"latest_subject", "domain", "has_attachments", "attachment_count",
	"attachment_files",
}

// WriteCSV writes the contact list as CSV, backing up any existing
// file at the same path first.
func WriteCSV(path string, contacts []*extract.Contact) error {
	if err := BackupExisting(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for _, c := range contacts {
		row := []string{
			c.Email,
			c.Name,
			strconv.Itoa(c.MessageCount),
			formatMillis(c.FirstSeen),
			formatMillis(c.LastSeen),
			c.LatestSubject,
			domainOf(c.Email),
			strconv.FormatBool(c.HasAttachments),
			strconv.Itoa(len(c.Attachments)),
			attachmentNames(c.Attachments),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
