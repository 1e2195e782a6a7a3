package zoho

import (
	"context"
	"fmt"
	"sync"
)

// MockAPI is a mock implementation of the Zoho Mail API for testing.
type MockAPI struct {
	mu sync.Mutex

	// Account to return
	Account *Account

	// Folders to return
	Folders []Folder

	// Listing pages served in order by ListMessages
	Pages []*Page

	// SearchPages served in order by SearchMessages
	SearchPages []*Page

	// Message details indexed by ID
	Messages map[string]*Message

	// Attachment metadata indexed by message ID
	Attachments map[string][]AttachmentMeta

	// Attachment content indexed by attachment ID
	AttachmentData map[string][]byte

	// Error injection
	AccountError     error
	FoldersError     error
	ListError        error
	SearchError      error
	GetMessageError  map[string]error // Per-message errors
	AttachmentsError error
	DownloadError    error

	// OnListMessages, when set, runs after each ListMessages call is
	// tracked. Tests use it to cancel mid-run.
	OnListMessages func()

	// Call tracking for assertions
	AccountCalls     int
	FoldersCalls     int
	ListCalls        int
	SearchCalls      int
	GetMessageCalls  []string
	AttachmentCalls  []string
	DownloadCalls    []string
	LastListFolderID string
	LastListStart    int
}

// NewMockAPI creates a mock API with empty state.
func NewMockAPI() *MockAPI {
	return &MockAPI{
		Messages:        make(map[string]*Message),
		Attachments:     make(map[string][]AttachmentMeta),
		AttachmentData:  make(map[string][]byte),
		GetMessageError: make(map[string]error),
	}
}

// AccountInfo returns the mock account.
func (m *MockAPI) AccountInfo(ctx context.Context) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AccountCalls++

	if m.AccountError != nil {
		return nil, m.AccountError
	}
	if m.Account == nil {
		return &Account{ID: "acc1", DisplayName: "Test Account"}, nil
	}
	return m.Account, nil
}

// ListFolders returns the mock folders.
func (m *MockAPI) ListFolders(ctx context.Context, accountID string) ([]Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FoldersCalls++

	if m.FoldersError != nil {
		return nil, m.FoldersError
	}
	return m.Folders, nil
}

// ListMessages serves the next scripted page.
func (m *MockAPI) ListMessages(ctx context.Context, accountID, folderID string, start, limit int) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	m.LastListFolderID = folderID
	m.LastListStart = start

	if m.OnListMessages != nil {
		m.OnListMessages()
	}

	if m.ListError != nil {
		return nil, m.ListError
	}
	if m.ListCalls > len(m.Pages) {
		return &Page{}, nil
	}
	return m.Pages[m.ListCalls-1], nil
}

// SearchMessages serves the next scripted search page.
func (m *MockAPI) SearchMessages(ctx context.Context, accountID string, start, limit int) (*Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SearchCalls++

	if m.SearchError != nil {
		return nil, m.SearchError
	}
	if m.SearchCalls > len(m.SearchPages) {
		return &Page{}, nil
	}
	return m.SearchPages[m.SearchCalls-1], nil
}

// GetMessage returns the scripted detail record.
func (m *MockAPI) GetMessage(ctx context.Context, accountID, messageID string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetMessageCalls = append(m.GetMessageCalls, messageID)

	if err := m.GetMessageError[messageID]; err != nil {
		return nil, err
	}
	msg, ok := m.Messages[messageID]
	if !ok {
		return nil, fmt.Errorf("no such message: %s", messageID)
	}
	return msg, nil
}

// ListAttachments returns the scripted metadata.
func (m *MockAPI) ListAttachments(ctx context.Context, accountID, messageID string) ([]AttachmentMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AttachmentCalls = append(m.AttachmentCalls, messageID)

	if m.AttachmentsError != nil {
		return nil, m.AttachmentsError
	}
	return m.Attachments[messageID], nil
}

// DownloadAttachment returns the scripted content.
func (m *MockAPI) DownloadAttachment(ctx context.Context, accountID, messageID, attachmentID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DownloadCalls = append(m.DownloadCalls, attachmentID)

	if m.DownloadError != nil {
		return nil, m.DownloadError
	}
	data, ok := m.AttachmentData[attachmentID]
	if !ok {
		return nil, fmt.Errorf("no such attachment: %s", attachmentID)
	}
	return data, nil
}

// Ensure MockAPI implements the API interface.
var _ API = (*MockAPI)(nil)
