package extract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sysdevcode/mailsift/internal/zoho"
)

// DefaultAllowedExtensions is the attachment type allowlist used when
// the configuration does not provide one.
var DefaultAllowedExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".txt", ".csv", ".zip", ".rar", ".7z",
	".jpg", ".jpeg", ".png", ".gif",
}

// FetcherOptions configures the attachment side channel.
type FetcherOptions struct {
	Dir                    string
	MaxSizeBytes           int64
	AllowedExtensions      []string
	MaxConsecutiveFailures int
}

// Fetcher downloads attachments for messages that advertise them. It is
// a best-effort side channel: individual failures are logged and
// skipped, and after a run of consecutive failures the fetcher disables
// itself for the rest of the extraction so a broken attachment endpoint
// cannot stall the main loop.
type Fetcher struct {
	api    zoho.API
	logger *slog.Logger
	opts   FetcherOptions

	allowed   map[string]bool
	available bool
	failures  int
}

// NewFetcher creates an attachment fetcher writing under opts.Dir.
func NewFetcher(api zoho.API, opts FetcherOptions, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = 10 << 20
	}
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultAllowedExtensions
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 3
	}

	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.ToLower(ext)] = true
	}

	return &Fetcher{
		api:       api,
		logger:    logger,
		opts:      opts,
		allowed:   allowed,
		available: true,
	}
}

// Available reports whether the fetcher is still operating.
func (f *Fetcher) Available() bool { return f.available }

// Fetch lists and downloads the attachments of one message, returning
// records for the files actually saved. A nil slice with a nil error
// means nothing qualified or the fetcher is disabled.
func (f *Fetcher) Fetch(ctx context.Context, accountID, messageID, senderEmail string) ([]Attachment, error) {
	if !f.available {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	metas, err := f.api.ListAttachments(ctx, accountID, messageID)
	if err != nil {
		f.recordFailure("list attachments", messageID, err)
		return nil, nil
	}
	f.failures = 0

	var saved []Attachment
	for _, meta := range metas {
		att, ok := f.download(ctx, accountID, messageID, senderEmail, meta)
		if ok {
			saved = append(saved, att)
		}
		if err := ctx.Err(); err != nil {
			return saved, err
		}
	}
	return saved, nil
}

// download fetches one attachment, applying the extension allowlist and
// size cap before touching the network.
func (f *Fetcher) download(ctx context.Context, accountID, messageID, senderEmail string, meta zoho.AttachmentMeta) (Attachment, bool) {
	name := meta.Name
	if name == "" {
		name = "attachment_" + meta.ID
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !f.allowed[ext] {
		f.logger.Debug("skipping attachment with disallowed type", "name", name, "ext", ext)
		return Attachment{}, false
	}
	if meta.Size > f.opts.MaxSizeBytes {
		f.logger.Debug("skipping oversized attachment", "name", name, "size", meta.Size)
		return Attachment{}, false
	}

	dir := filepath.Join(f.opts.Dir, senderDir(senderEmail))
	path := filepath.Join(dir, sanitizeFilename(name))

	// Re-running an extraction should not re-download.
	if _, err := os.Stat(path); err == nil {
		f.logger.Debug("attachment already saved", "path", path)
		return Attachment{Filename: name, Path: path, Size: meta.Size}, true
	}

	data, err := f.api.DownloadAttachment(ctx, accountID, messageID, meta.ID)
	if err != nil {
		f.recordFailure("download attachment", messageID, err)
		return Attachment{}, false
	}
	if int64(len(data)) > f.opts.MaxSizeBytes {
		f.logger.Debug("skipping oversized attachment", "name", name, "size", len(data))
		return Attachment{}, false
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		f.recordFailure("create attachment dir", messageID, err)
		return Attachment{}, false
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		f.recordFailure("write attachment", messageID, err)
		return Attachment{}, false
	}

	f.failures = 0
	f.logger.Info("saved attachment", "path", path, "size", len(data))
	return Attachment{Filename: name, Path: path, Size: int64(len(data))}, true
}

// recordFailure counts a failure and disables the fetcher once the
// consecutive-failure budget is spent.
func (f *Fetcher) recordFailure(op, messageID string, err error) {
	f.failures++
	f.logger.Warn("attachment operation failed",
		"op", op, "message_id", messageID, "failures", f.failures, "error", err)

	if f.failures >= f.opts.MaxConsecutiveFailures {
		f.available = false
		f.logger.Warn("attachment downloads disabled for the rest of the run",
			"consecutive_failures", f.failures)
	}
}

// senderDir maps an address to a filesystem-safe directory name:
// "jane.doe@example.com" becomes "jane_doe_at_example_com".
func senderDir(email string) string {
	s := strings.ReplaceAll(email, "@", "_at_")
	s = strings.ReplaceAll(s, ".", "_")
	return sanitizeFilename(s)
}

// sanitizeFilename replaces characters that are unsafe in filenames.
func sanitizeFilename(s string) string {
	var result []rune
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			result = append(result, '_')
		default:
			result = append(result, r)
		}
	}
	out := string(result)
	if out == "" {
		out = "unnamed"
	}
	return out
}
