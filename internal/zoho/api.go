package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// API is the surface of the Zoho Mail service consumed by extraction.
// Implementations must be safe for sequential reuse across a run.
type API interface {
	AccountInfo(ctx context.Context) (*Account, error)
	ListFolders(ctx context.Context, accountID string) ([]Folder, error)
	ListMessages(ctx context.Context, accountID, folderID string, start, limit int) (*Page, error)
	SearchMessages(ctx context.Context, accountID string, start, limit int) (*Page, error)
	GetMessage(ctx context.Context, accountID, messageID string) (*Message, error)
	ListAttachments(ctx context.Context, accountID, messageID string) ([]AttachmentMeta, error)
	DownloadAttachment(ctx context.Context, accountID, messageID, attachmentID string) ([]byte, error)
}

// Ensure Client implements the API interface.
var _ API = (*Client)(nil)

// AccountInfo returns the primary mailbox account.
func (c *Client) AccountInfo(ctx context.Context) (*Account, error) {
	resp, err := c.Get(ctx, "accounts", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError("list accounts", resp)
	}

	var body listAccountsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("parse accounts: %w", err)
	}
	if len(body.Data) == 0 {
		return nil, errors.New("no accounts in response")
	}

	first := body.Data[0]
	return &Account{ID: string(first.AccountID), DisplayName: first.DisplayName}, nil
}

// ListFolders returns the folders of an account.
func (c *Client) ListFolders(ctx context.Context, accountID string) ([]Folder, error) {
	resp, err := c.Get(ctx, "accounts/"+accountID+"/folders", nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError("list folders", resp)
	}

	var body listFoldersResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("parse folders: %w", err)
	}

	folders := make([]Folder, len(body.Data))
	for i, f := range body.Data {
		folders[i] = Folder{
			ID:     string(f.FolderID),
			Name:   f.FolderName,
			System: bool(f.SystemFolder),
		}
	}
	return folders, nil
}

// ListMessages fetches one page of the folder-scoped message listing.
func (c *Client) ListMessages(ctx context.Context, accountID, folderID string, start, limit int) (*Page, error) {
	params := url.Values{}
	params.Set("start", strconv.Itoa(start))
	params.Set("limit", strconv.Itoa(limit))
	params.Set("folderId", folderID)
	return c.listPage(ctx, "accounts/"+accountID+"/messages/view", params)
}

// SearchMessages fetches one page of the unscoped search listing, the
// fallback when no folder could be resolved or the scoped endpoint
// fails.
func (c *Client) SearchMessages(ctx context.Context, accountID string, start, limit int) (*Page, error) {
	params := url.Values{}
	params.Set("start", strconv.Itoa(start))
	params.Set("limit", strconv.Itoa(limit))
	return c.listPage(ctx, "accounts/"+accountID+"/messages/search", params)
}

func (c *Client) listPage(ctx context.Context, endpoint string, params url.Values) (*Page, error) {
	resp, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError("list messages", resp)
	}

	var body listMessagesResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("parse message page: %w", err)
	}

	page := &Page{
		Entries: make([]PageEntry, len(body.Data)),
		Total:   int64(body.Total),
	}
	for i := range body.Data {
		page.Entries[i] = body.Data[i].toEntry()
	}
	return page, nil
}

// GetMessage fetches the full record for a message identifier.
func (c *Client) GetMessage(ctx context.Context, accountID, messageID string) (*Message, error) {
	resp, err := c.Get(ctx, "accounts/"+accountID+"/messages/"+messageID, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError("get message", resp)
	}

	var body messageDetailResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if body.Data == nil {
		return nil, errors.New("message detail response carried no data")
	}
	return body.Data.toMessage(), nil
}

// The attachment sub-path is not stable across Zoho deployments, so
// both attachment operations walk an ordered list of candidate paths
// and take the first that answers 2xx.

func (c *Client) attachmentListCandidates(accountID, messageID string) []string {
	base := "accounts/" + accountID + "/messages/" + messageID
	return []string{
		base + "/attachments",
		base + "/attachment",
		"accounts/" + accountID + "/folders/*/messages/" + messageID + "/attachments",
	}
}

func (c *Client) attachmentDownloadCandidates(accountID, messageID, attachmentID string) []string {
	base := "accounts/" + accountID + "/messages/" + messageID
	return []string{
		base + "/attachments/" + attachmentID,
		base + "/attachment/" + attachmentID,
		base + "/attachments/" + attachmentID + "/content",
	}
}

// ListAttachments returns attachment metadata for a message.
func (c *Client) ListAttachments(ctx context.Context, accountID, messageID string) ([]AttachmentMeta, error) {
	resp, err := c.firstSuccess(ctx, c.attachmentListCandidates(accountID, messageID))
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	var body listAttachmentsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("parse attachments: %w", err)
	}

	metas := make([]AttachmentMeta, len(body.Data))
	for i, a := range body.Data {
		metas[i] = AttachmentMeta{
			ID:   string(a.AttachmentID),
			Name: a.AttachmentName,
			Size: int64(a.Size),
		}
	}
	return metas, nil
}

// DownloadAttachment returns the raw content of one attachment.
func (c *Client) DownloadAttachment(ctx context.Context, accountID, messageID, attachmentID string) ([]byte, error) {
	resp, err := c.firstSuccess(ctx, c.attachmentDownloadCandidates(accountID, messageID, attachmentID))
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	return resp.Body, nil
}

// firstSuccess tries each candidate endpoint in order, short-circuiting
// on the first 2xx answer.
func (c *Client) firstSuccess(ctx context.Context, candidates []string) (*Response, error) {
	var lastErr error
	for _, endpoint := range candidates {
		resp, err := c.Get(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.OK() {
			return resp, nil
		}
		lastErr = statusError("try "+endpoint, resp)
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate endpoints")
	}
	return nil, fmt.Errorf("no endpoint variant succeeded: %w", lastErr)
}

// statusError renders a non-2xx status the caller chose to treat as a
// failure.
func statusError(op string, resp *Response) error {
	body := resp.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, body)
}
