package message

import (
	"fmt"
	"strings"
)

// SenderCard builds the contact card forwarded when an automation rule
// hands a conversation to a human. address may be a bare number or a JID.
func SenderCard(name, address string) ContactCard {
	number := address
	if i := strings.IndexByte(number, '@'); i >= 0 {
		number = number[:i]
	}
	if i := strings.IndexByte(number, ':'); i >= 0 {
		number = number[:i]
	}
	number = strings.TrimPrefix(number, "+")
	if strings.TrimSpace(name) == "" {
		name = "+" + number
	}
	vcard := fmt.Sprintf("BEGIN:VCARD\nVERSION:3.0\nFN:%s\nTEL;type=CELL;waid=%s:+%s\nEND:VCARD", name, number, number)
	return ContactCard{Name: name, VCard: vcard}
}
