// Package extract walks a mailbox folder page by page and aggregates
// the senders it finds into a deduplicated contact ledger.
package extract

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/sysdevcode/mailsift/internal/zoho"
)

// emailPattern is the acceptance filter for sender addresses. Addresses
// that fail it are discarded rather than aggregated.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// placeholderName is recorded when no usable display name exists.
const placeholderName = "Unknown"

// Identity is a validated sender: a lowercased address plus the best
// display name the message offered.
type Identity struct {
	Email string
	Name  string
}

// ResolveIdentity extracts the sender identity from a message. It
// returns false when the sender address is missing or fails the
// acceptance filter.
//
// Name precedence: the sender display field, then the from display
// field, then a name parsed out of an RFC 5322 "Name <addr>" from
// value, then a name derived from the address local part.
func ResolveIdentity(msg *zoho.Message) (Identity, bool) {
	from := strings.TrimSpace(msg.FromAddress)

	name := strings.TrimSpace(msg.SenderName)
	if name == "" {
		name = strings.TrimSpace(msg.FromName)
	}

	// The from field sometimes carries a full "Name <addr>" value
	// instead of a bare address.
	if strings.Contains(from, "<") {
		if addr, err := mail.ParseAddress(from); err == nil {
			if name == "" {
				name = strings.TrimSpace(addr.Name)
			}
			from = addr.Address
		} else {
			// Salvage the angle-bracketed address by hand.
			if start := strings.Index(from, "<"); start >= 0 {
				if end := strings.Index(from[start:], ">"); end > 0 {
					from = from[start+1 : start+end]
				}
			}
		}
	}

	from = strings.ToLower(strings.TrimSpace(from))
	if !emailPattern.MatchString(from) {
		return Identity{}, false
	}

	if name == "" || strings.EqualFold(name, from) {
		name = nameFromLocalPart(from)
	}
	if name == "" {
		name = placeholderName
	}

	return Identity{Email: from, Name: name}, true
}

// nameFromLocalPart derives a human-ish display name from the address
// local part: separators become spaces and each word is title-cased,
// so "jane.doe@example.com" yields "Jane Doe".
func nameFromLocalPart(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return ""
	}

	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
