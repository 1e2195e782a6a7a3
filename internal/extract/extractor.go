package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sysdevcode/mailsift/internal/zoho"
)

// Options configures an extraction run. MaxMessages caps the raw
// messages walked, whether or not they yield a usable sender.
type Options struct {
	BatchSize   int
	MaxMessages int
	BatchDelay  time.Duration
}

// Result is what an extraction run produced. Contacts are ordered by
// message count descending.
type Result struct {
	Contacts    []*Contact
	Processed   int
	Discarded   int
	Account     *zoho.Account
	Interrupted bool
}

// Extractor drives the page loop: list a batch, resolve each entry to
// a sender identity, merge into the ledger, repeat until the folder is
// exhausted or the message ceiling is hit.
type Extractor struct {
	api     zoho.API
	fetcher *Fetcher
	logger  *slog.Logger
	opts    Options
}

// New creates an extractor. The fetcher may be nil to skip attachment
// downloads entirely.
func New(api zoho.API, fetcher *Fetcher, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 5000
	}
	return &Extractor{api: api, fetcher: fetcher, logger: logger, opts: opts}
}

// Run performs a full extraction. Cancellation is not an error: the
// result carries everything aggregated so far with Interrupted set, so
// the caller can still export partial results. When a mid-run failure
// is fatal, the partial result is returned alongside the error.
func (e *Extractor) Run(ctx context.Context) (*Result, error) {
	account, err := e.api.AccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}
	e.logger.Info("extracting", "account", account.DisplayName, "account_id", account.ID)

	folderID := e.resolveFolder(ctx, account.ID)

	ledger := NewLedger()
	res := &Result{Account: account}

	// The folder listing endpoint varies across deployments; once a
	// listing call fails we fall back to search for the rest of the run.
	useSearch := false

	// The ceiling applies to raw messages walked, discards included,
	// not just the ones that resolved to an identity.
	start := 0
	for res.Processed+res.Discarded < e.opts.MaxMessages {
		if err := ctx.Err(); err != nil {
			res.Interrupted = true
			break
		}

		limit := e.opts.BatchSize
		if remaining := e.opts.MaxMessages - res.Processed - res.Discarded; remaining < limit {
			limit = remaining
		}

		page, err := e.fetchPage(ctx, account.ID, folderID, start, limit, &useSearch)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				res.Interrupted = true
				break
			}
			// Hand back what was aggregated so far; the caller still
			// persists it.
			res.Contacts = ledger.Contacts()
			return res, fmt.Errorf("fetch page at %d: %w", start, err)
		}
		if len(page.Entries) == 0 {
			break
		}

		for i := range page.Entries {
			if err := ctx.Err(); err != nil {
				res.Interrupted = true
				break
			}
			// The server may hand back more than asked for.
			if res.Processed+res.Discarded >= e.opts.MaxMessages {
				break
			}
			e.processEntry(ctx, account.ID, &page.Entries[i], ledger, res)
		}
		if res.Interrupted {
			break
		}

		e.logger.Info("batch complete",
			"start", start, "batch", len(page.Entries),
			"processed", res.Processed, "unique_senders", ledger.Len())

		// A short page means the folder is exhausted.
		if len(page.Entries) < limit {
			break
		}
		start += len(page.Entries)

		if e.opts.BatchDelay > 0 {
			if err := sleepCtx(ctx, e.opts.BatchDelay); err != nil {
				res.Interrupted = true
				break
			}
		}
	}

	res.Contacts = ledger.Contacts()
	e.logger.Info("extraction finished",
		"processed", res.Processed,
		"discarded", res.Discarded,
		"unique_senders", len(res.Contacts),
		"interrupted", res.Interrupted)
	return res, nil
}

// fetchPage lists one batch, switching to the search endpoint when the
// folder listing is unavailable. The switch latches for the rest of the
// run so every page comes from a single source.
func (e *Extractor) fetchPage(ctx context.Context, accountID, folderID string, start, limit int, useSearch *bool) (*zoho.Page, error) {
	if !*useSearch {
		page, err := e.api.ListMessages(ctx, accountID, folderID, start, limit)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		e.logger.Warn("folder listing unavailable, falling back to search", "error", err)
		*useSearch = true
	}
	return e.api.SearchMessages(ctx, accountID, start, limit)
}

// processEntry resolves one page entry to an identity and merges it.
// Entries that are bare references need a detail fetch; a failed fetch
// or an unparseable sender is counted as discarded, never fatal.
func (e *Extractor) processEntry(ctx context.Context, accountID string, entry *zoho.PageEntry, ledger *Ledger, res *Result) {
	msg := entry.Message
	if msg == nil {
		if entry.Ref == "" {
			res.Discarded++
			return
		}
		detail, err := e.api.GetMessage(ctx, accountID, entry.Ref)
		if err != nil {
			e.logger.Warn("skipping unreadable message", "message_id", entry.Ref, "error", err)
			res.Discarded++
			return
		}
		msg = detail
	}

	id, ok := ResolveIdentity(msg)
	if !ok {
		e.logger.Debug("discarding message without usable sender",
			"message_id", msg.ID, "from", msg.FromAddress)
		res.Discarded++
		return
	}
	res.Processed++

	rec := Record{
		Identity:      id,
		Subject:       strings.TrimSpace(msg.Subject),
		ReceivedTime:  msg.ReceivedTime,
		HasAttachment: msg.HasAttachment,
	}

	if msg.HasAttachment && e.fetcher != nil && e.fetcher.Available() {
		saved, err := e.fetcher.Fetch(ctx, accountID, msg.ID, id.Email)
		if err == nil {
			rec.Attachments = saved
		}
	}

	ledger.Merge(rec)
}

// resolveFolder picks the folder to walk: a folder named like the inbox
// first, then the system inbox markers, then the first folder listed.
// An empty ID tells the listing endpoint to use the server default.
func (e *Extractor) resolveFolder(ctx context.Context, accountID string) string {
	folders, err := e.api.ListFolders(ctx, accountID)
	if err != nil || len(folders) == 0 {
		e.logger.Warn("could not list folders, using server default", "error", err)
		return ""
	}

	for _, f := range folders {
		name := strings.ToLower(f.Name)
		if name == "inbox" || name == "inbox folder" {
			e.logger.Info("selected folder", "name", f.Name, "folder_id", f.ID)
			return f.ID
		}
	}
	for _, f := range folders {
		if f.System || f.ID == "1" {
			e.logger.Info("selected system folder", "name", f.Name, "folder_id", f.ID)
			return f.ID
		}
	}

	e.logger.Info("no inbox found, using first folder",
		"name", folders[0].Name, "folder_id", folders[0].ID)
	return folders[0].ID
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
