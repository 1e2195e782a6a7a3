package zoho

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Domain types returned by the API surface. The wire layer below
// tolerates the encoding drift Zoho exhibits across deployments and
// maps into these.

// Account identifies a mailbox account.
type Account struct {
	ID          string
	DisplayName string
}

// Folder is a mailbox folder.
type Folder struct {
	ID     string
	Name   string
	System bool
}

// Message is a mail record as returned by the listing and detail
// endpoints. SenderName comes from the sender field (object or string);
// FromName is the separate fromName field. Identity resolution applies
// the precedence between them.
type Message struct {
	ID            string
	FromAddress   string
	FromName      string
	SenderName    string
	Subject       string
	ReceivedTime  int64 // epoch milliseconds
	HasAttachment bool
}

// PageEntry is one listing result: either an inline message record or a
// bare identifier (Ref) that needs a follow-up detail fetch.
type PageEntry struct {
	Ref     string
	Message *Message
}

// Page is one batch of listing results.
type Page struct {
	Entries []PageEntry
	Total   int64
}

// AttachmentMeta describes one attachment of a message.
type AttachmentMeta struct {
	ID   string
	Name string
	Size int64
}

// Wire types. Identifiers arrive as strings or numbers, timestamps as
// strings or numbers, booleans occasionally as "0"/"1", and the sender
// as an object or a plain string. Each tolerant decoder lives here so
// the rest of the package works with one shape.

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt64 decodes a JSON number or numeric string into an int64.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt64(v)
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(int64(v))
	return nil
}

// flexBool decodes true/false, 0/1, or their string forms.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// senderJSON tolerates both shapes of the sender field: an object with
// a name, or a plain display string.
type senderJSON struct {
	Name string
}

func (s *senderJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		s.Name = strings.TrimSpace(obj.Name)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	s.Name = strings.TrimSpace(str)
	return nil
}

type accountJSON struct {
	AccountID   flexString `json:"accountId"`
	DisplayName string     `json:"displayName"`
}

type folderJSON struct {
	FolderID     flexString `json:"folderId"`
	FolderName   string     `json:"folderName"`
	SystemFolder flexBool   `json:"systemFolder"`
}

type messageJSON struct {
	MessageID     flexString `json:"messageId"`
	AltID         flexString `json:"id"`
	FromAddress   string     `json:"fromAddress"`
	FromName      string     `json:"fromName"`
	Sender        senderJSON `json:"sender"`
	Subject       string     `json:"subject"`
	ReceivedTime  flexInt64  `json:"receivedTime"`
	HasAttachment flexBool   `json:"hasAttachment"`
}

func (m *messageJSON) toMessage() *Message {
	id := string(m.MessageID)
	if id == "" {
		id = string(m.AltID)
	}
	return &Message{
		ID:            id,
		FromAddress:   m.FromAddress,
		FromName:      strings.TrimSpace(m.FromName),
		SenderName:    m.Sender.Name,
		Subject:       m.Subject,
		ReceivedTime:  int64(m.ReceivedTime),
		HasAttachment: bool(m.HasAttachment),
	}
}

// pageEntryJSON resolves the inline-record-or-bare-identifier variant
// once, at decode time.
type pageEntryJSON struct {
	ref flexString
	msg *messageJSON
}

func (e *pageEntryJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var m messageJSON
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		e.msg = &m
		return nil
	}
	return json.Unmarshal(data, &e.ref)
}

func (e *pageEntryJSON) toEntry() PageEntry {
	if e.msg != nil {
		return PageEntry{Message: e.msg.toMessage()}
	}
	return PageEntry{Ref: string(e.ref)}
}

type listAccountsResponse struct {
	Data []accountJSON `json:"data"`
}

type listFoldersResponse struct {
	Data []folderJSON `json:"data"`
}

type listMessagesResponse struct {
	Data  []pageEntryJSON `json:"data"`
	Total flexInt64       `json:"total"`
}

type messageDetailResponse struct {
	Data *messageJSON `json:"data"`
}

type attachmentJSON struct {
	AttachmentID   flexString `json:"attachmentId"`
	AttachmentName string     `json:"attachmentName"`
	Size           flexInt64  `json:"size"`
}

type listAttachmentsResponse struct {
	Data []attachmentJSON `json:"data"`
}
