package extract

import "sort"

// Attachment records one saved attachment file.
type Attachment struct {
	Filename string
	Path     string
	Size     int64
}

// Contact is one deduplicated sender with everything learned about it
// across the run.
type Contact struct {
	Email          string
	Name           string
	MessageCount   int
	FirstSeen      int64 // epoch millis
	LastSeen       int64 // epoch millis
	LatestSubject  string
	HasAttachments bool
	Attachments    []Attachment
}

// Record is one observation of a sender, fed into the ledger.
type Record struct {
	Identity      Identity
	Subject       string
	ReceivedTime  int64
	HasAttachment bool
	Attachments   []Attachment
}

// Ledger deduplicates sender observations by address. Not safe for
// concurrent use; the extraction loop is single threaded.
type Ledger struct {
	contacts map[string]*Contact
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{contacts: make(map[string]*Contact)}
}

// Merge folds one observation into the ledger. A first observation
// creates the contact; later ones update it field by field:
//
//   - the name upgrades only to a longer, non-placeholder name
//   - the subject upgrades only to a longer, non-empty subject
//   - first seen keeps the earliest timestamp, last seen the value
//     from this observation
//   - attachment evidence and downloaded files accumulate
func (l *Ledger) Merge(rec Record) {
	c, ok := l.contacts[rec.Identity.Email]
	if !ok {
		l.contacts[rec.Identity.Email] = &Contact{
			Email:          rec.Identity.Email,
			Name:           rec.Identity.Name,
			MessageCount:   1,
			FirstSeen:      rec.ReceivedTime,
			LastSeen:       rec.ReceivedTime,
			LatestSubject:  rec.Subject,
			HasAttachments: rec.HasAttachment,
			Attachments:    rec.Attachments,
		}
		return
	}

	c.MessageCount++

	if name := rec.Identity.Name; name != placeholderName && len(name) > len(c.Name) {
		c.Name = name
	} else if c.Name == placeholderName && name != placeholderName {
		c.Name = name
	}

	if rec.Subject != "" && len(rec.Subject) > len(c.LatestSubject) {
		c.LatestSubject = rec.Subject
	}

	if rec.ReceivedTime != 0 && (c.FirstSeen == 0 || rec.ReceivedTime < c.FirstSeen) {
		c.FirstSeen = rec.ReceivedTime
	}
	c.LastSeen = rec.ReceivedTime

	if rec.HasAttachment {
		c.HasAttachments = true
	}
	c.Attachments = append(c.Attachments, rec.Attachments...)
}

// Len returns the number of distinct senders.
func (l *Ledger) Len() int { return len(l.contacts) }

// Get returns the contact for an address, or nil.
func (l *Ledger) Get(email string) *Contact { return l.contacts[email] }

// Contacts returns all contacts ordered by message count descending,
// address ascending as a tiebreak.
func (l *Ledger) Contacts() []*Contact {
	out := make([]*Contact, 0, len(l.contacts))
	for _, c := range l.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MessageCount != out[j].MessageCount {
			return out[i].MessageCount > out[j].MessageCount
		}
		return out[i].Email < out[j].Email
	})
	return out
}
