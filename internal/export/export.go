// Package export writes extraction results to CSV, JSON and XLSX.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sysdevcode/mailsift/internal/extract"
)

// timeLayout renders exported timestamps in local time.
const timeLayout = "2006-01-02 15:04:05"

// formatMillis renders an epoch-millisecond timestamp, or empty when
// the message carried none.
func formatMillis(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format(timeLayout)
}

// domainOf returns the part of an address after the @.
func domainOf(email string) string {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return domain
}

// attachmentNames joins the saved filenames for one contact.
func attachmentNames(atts []extract.Attachment) string {
	if len(atts) == 0 {
		return ""
	}
	names := make([]string, len(atts))
	for i, a := range atts {
		names[i] = a.Filename
	}
	return strings.Join(names, "; ")
}

// BackupExisting renames an existing file out of the way with a
// timestamp suffix, so repeated runs never clobber earlier exports.
func BackupExisting(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	backup := fmt.Sprintf("%s_%s%s", base, time.Now().Format("20060102_150405"), ext)

	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}
	return nil
}

// truncate shortens a string for display columns.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
