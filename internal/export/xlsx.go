package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sysdevcode/mailsift/internal/extract"
)

// WriteXLSX writes a three-sheet workbook: the contact list, a run
// summary, and a per-domain breakdown. Any existing file is backed up
// first.
func WriteXLSX(path string, contacts []*extract.Contact) error {
	if err := BackupExisting(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const contactsSheet = "Email Contacts"
	f.SetSheetName("Sheet1", contactsSheet)

	header := []any{
		"Email", "Name", "Messages", "First Seen", "Last Seen",
		"Latest Subject", "Domain", "Attachments",
	}
	if err := setRow(f, contactsSheet, 1, header); err != nil {
		return err
	}

	totalMessages := 0
	withAttachments := 0
	for i, c := range contacts {
		totalMessages += c.MessageCount
		if c.HasAttachments {
			withAttachments++
		}
		row := []any{
			c.Email,
			c.Name,
			c.MessageCount,
			formatMillis(c.FirstSeen),
			formatMillis(c.LastSeen),
			truncate(c.LatestSubject, 100),
			domainOf(c.Email),
			len(c.Attachments),
		}
		if err := setRow(f, contactsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeSummarySheet(f, contacts, totalMessages, withAttachments); err != nil {
		return err
	}
	if err := writeDomainSheet(f, contacts); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, contacts []*extract.Contact, totalMessages, withAttachments int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	topSender := ""
	if len(contacts) > 0 {
		topSender = contacts[0].Email
	}
	domains := make(map[string]bool)
	for _, c := range contacts {
		domains[domainOf(c.Email)] = true
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Extraction Date", time.Now().Format(timeLayout)},
		{"Unique Senders", len(contacts)},
		{"Total Messages", totalMessages},
		{"Top Sender", topSender},
		{"Unique Domains", len(domains)},
		{"Senders With Attachments", withAttachments},
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func writeDomainSheet(f *excelize.File, contacts []*extract.Contact) error {
	const sheet = "Domain Analysis"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	type domainStat struct {
		domain   string
		senders  int
		messages int
	}
	byDomain := make(map[string]*domainStat)
	for _, c := range contacts {
		d := domainOf(c.Email)
		st, ok := byDomain[d]
		if !ok {
			st = &domainStat{domain: d}
			byDomain[d] = st
		}
		st.senders++
		st.messages += c.MessageCount
	}

	stats := make([]*domainStat, 0, len(byDomain))
	for _, st := range byDomain {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].messages != stats[j].messages {
			return stats[i].messages > stats[j].messages
		}
		return stats[i].domain < stats[j].domain
	})

	if err := setRow(f, sheet, 1, []any{"Domain", "Senders", "Messages"}); err != nil {
		return err
	}
	for i, st := range stats {
		if err := setRow(f, sheet, i+2, []any{st.domain, st.senders, st.messages}); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
