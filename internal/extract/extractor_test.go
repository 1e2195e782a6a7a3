package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/sysdevcode/mailsift/internal/zoho"
)

func msg(id, from, name string, ts int64) *zoho.Message {
	return &zoho.Message{ID: id, FromAddress: from, SenderName: name, ReceivedTime: ts}
}

func inlinePage(msgs ...*zoho.Message) *zoho.Page {
	p := &zoho.Page{}
	for _, m := range msgs {
		p.Entries = append(p.Entries, zoho.PageEntry{Message: m})
	}
	return p
}

func TestRunShortPageStops(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{
		inlinePage(
			msg("1", "a@example.com", "A", 1000),
			msg("2", "b@example.com", "B", 2000),
		),
	}

	e := New(api, nil, Options{BatchSize: 5}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Processed != 2 {
		t.Errorf("Processed = %d, want 2", res.Processed)
	}
	if len(res.Contacts) != 2 {
		t.Errorf("Contacts = %d, want 2", len(res.Contacts))
	}
	// A short page means exhaustion; no second listing call.
	if api.ListCalls != 1 {
		t.Errorf("ListCalls = %d, want 1", api.ListCalls)
	}
}

func TestRunPaginatesFullPages(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{
		inlinePage(msg("1", "a@example.com", "A", 1), msg("2", "b@example.com", "B", 2)),
		inlinePage(msg("3", "c@example.com", "C", 3)),
	}

	e := New(api, nil, Options{BatchSize: 2}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if api.ListCalls != 2 {
		t.Errorf("ListCalls = %d, want 2", api.ListCalls)
	}
	if api.LastListStart != 2 {
		t.Errorf("LastListStart = %d, want 2", api.LastListStart)
	}
	if res.Processed != 3 {
		t.Errorf("Processed = %d, want 3", res.Processed)
	}
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{
		inlinePage(msg("1", "a@example.com", "A", 1), msg("2", "a@example.com", "A", 2)),
		inlinePage(msg("3", "a@example.com", "Alice Anderson", 3)),
	}

	e := New(api, nil, Options{BatchSize: 2}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Contacts) != 1 {
		t.Fatalf("Contacts = %d, want 1", len(res.Contacts))
	}
	c := res.Contacts[0]
	if c.MessageCount != 3 {
		t.Errorf("MessageCount = %d, want 3", c.MessageCount)
	}
	if c.Name != "Alice Anderson" {
		t.Errorf("Name = %q, want the upgraded name", c.Name)
	}
}

func TestRunFetchesBareReferences(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{{Entries: []zoho.PageEntry{{Ref: "77"}}}}
	api.Messages["77"] = msg("77", "ref@example.com", "Ref", 100)

	e := New(api, nil, Options{BatchSize: 5}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(api.GetMessageCalls) != 1 || api.GetMessageCalls[0] != "77" {
		t.Errorf("GetMessageCalls = %v, want [77]", api.GetMessageCalls)
	}
	if res.Processed != 1 {
		t.Errorf("Processed = %d, want 1", res.Processed)
	}
}

func TestRunSkipsUnreadableDetail(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{{Entries: []zoho.PageEntry{
		{Ref: "broken"},
		{Message: msg("2", "ok@example.com", "OK", 5)},
	}}}
	api.GetMessageError["broken"] = errors.New("boom")

	e := New(api, nil, Options{BatchSize: 5}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Processed != 1 || res.Discarded != 1 {
		t.Errorf("Processed/Discarded = %d/%d, want 1/1", res.Processed, res.Discarded)
	}
}

func TestRunDiscardsInvalidSenders(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{inlinePage(
		msg("1", "not-an-email", "X", 1),
		msg("2", "ok@example.com", "OK", 2),
	)}

	e := New(api, nil, Options{BatchSize: 5}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Processed != 1 || res.Discarded != 1 {
		t.Errorf("Processed/Discarded = %d/%d, want 1/1", res.Processed, res.Discarded)
	}
	if len(res.Contacts) != 1 {
		t.Errorf("Contacts = %d, want 1", len(res.Contacts))
	}
}

func TestRunFallsBackToSearch(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.ListError = errors.New("listing unsupported")
	api.SearchPages = []*zoho.Page{
		inlinePage(msg("1", "a@example.com", "A", 1), msg("2", "b@example.com", "B", 2)),
		inlinePage(msg("3", "c@example.com", "C", 3)),
	}

	e := New(api, nil, Options{BatchSize: 2}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Processed != 3 {
		t.Errorf("Processed = %d, want 3", res.Processed)
	}
	// The fallback latches: one failed listing call, then search only.
	if api.ListCalls != 1 {
		t.Errorf("ListCalls = %d, want 1", api.ListCalls)
	}
	if api.SearchCalls != 2 {
		t.Errorf("SearchCalls = %d, want 2", api.SearchCalls)
	}
}

func TestRunHonorsMessageCeiling(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{
		inlinePage(msg("1", "a@example.com", "A", 1), msg("2", "b@example.com", "B", 2)),
		inlinePage(msg("3", "c@example.com", "C", 3), msg("4", "d@example.com", "D", 4)),
	}

	e := New(api, nil, Options{BatchSize: 2, MaxMessages: 3}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Processed != 3 {
		t.Errorf("Processed = %d, want 3", res.Processed)
	}
}

func TestRunCeilingCountsDiscardedMessages(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{
		inlinePage(msg("1", "bad-1", "X", 1), msg("2", "bad-2", "X", 2)),
		inlinePage(msg("3", "bad-3", "X", 3), msg("4", "bad-4", "X", 4)),
		inlinePage(msg("5", "bad-5", "X", 5), msg("6", "bad-6", "X", 6)),
	}

	e := New(api, nil, Options{BatchSize: 2, MaxMessages: 2}, nil)
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// A mailbox full of unusable senders still stops at the ceiling.
	if api.ListCalls != 1 {
		t.Errorf("ListCalls = %d, want 1", api.ListCalls)
	}
	if res.Processed != 0 || res.Discarded != 2 {
		t.Errorf("Processed/Discarded = %d/%d, want 0/2", res.Processed, res.Discarded)
	}
}

func TestRunAccountFailureIsFatal(t *testing.T) {
	api := zoho.NewMockAPI()
	api.AccountError = errors.New("no account")

	e := New(api, nil, Options{}, nil)
	if _, err := e.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded, want account resolution failure")
	}
}

func TestRunCanceledKeepsPartialResults(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{
		inlinePage(msg("1", "a@example.com", "A", 1), msg("2", "b@example.com", "B", 2)),
		inlinePage(msg("3", "c@example.com", "C", 3), msg("4", "d@example.com", "D", 4)),
	}

	// Cancel while the second page is being fetched, so the first page
	// is fully aggregated.
	ctx, cancel := context.WithCancel(context.Background())
	api.OnListMessages = func() {
		if api.ListCalls == 2 {
			cancel()
		}
	}

	e := New(api, nil, Options{BatchSize: 2}, nil)
	res, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !res.Interrupted {
		t.Error("Interrupted = false after cancellation")
	}
	if res.Processed != 2 {
		t.Errorf("Processed = %d, want the first page aggregated", res.Processed)
	}
}

func TestRunFatalPageErrorKeepsPartialResults(t *testing.T) {
	api := zoho.NewMockAPI()
	api.Folders = []zoho.Folder{{ID: "1", Name: "Inbox"}}
	api.Pages = []*zoho.Page{
		inlinePage(msg("1", "a@example.com", "A", 1), msg("2", "b@example.com", "B", 2)),
	}
	api.SearchError = errors.New("search broken")
	api.OnListMessages = func() {
		if api.ListCalls == 2 {
			api.ListError = errors.New("listing broken")
		}
	}

	e := New(api, nil, Options{BatchSize: 2}, nil)
	res, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("Run succeeded, want a fatal page error")
	}
	if res == nil {
		t.Fatal("Run returned no partial result alongside the error")
	}
	if len(res.Contacts) != 2 {
		t.Errorf("Contacts = %d, want the first page preserved", len(res.Contacts))
	}
}

func TestResolveFolderPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		folders []zoho.Folder
		want    string
	}{
		{
			name: "inbox by name",
			folders: []zoho.Folder{
				{ID: "9", Name: "Archive"},
				{ID: "3", Name: "Inbox"},
			},
			want: "3",
		},
		{
			name: "system folder fallback",
			folders: []zoho.Folder{
				{ID: "9", Name: "Archive"},
				{ID: "4", Name: "Eingang", System: true},
			},
			want: "4",
		},
		{
			name: "id one fallback",
			folders: []zoho.Folder{
				{ID: "9", Name: "Archive"},
				{ID: "1", Name: "Posta"},
			},
			want: "1",
		},
		{
			name: "first folder fallback",
			folders: []zoho.Folder{
				{ID: "9", Name: "Archive"},
				{ID: "8", Name: "Drafts"},
			},
			want: "9",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := zoho.NewMockAPI()
			api.Folders = tc.folders

			e := New(api, nil, Options{}, nil)
			if got := e.resolveFolder(context.Background(), "acc"); got != tc.want {
				t.Errorf("resolveFolder = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveFolderListFailure(t *testing.T) {
	api := zoho.NewMockAPI()
	api.FoldersError = errors.New("boom")

	e := New(api, nil, Options{}, nil)
	if got := e.resolveFolder(context.Background(), "acc"); got != "" {
		t.Errorf("resolveFolder = %q, want empty for server default", got)
	}
}
