// Package message defines what a job sends and how per-recipient content is
// derived from it.
package message

import "strings"

type Attachment struct {
	// Ref is the object key in the media store.
	Ref      string `json:"ref" yaml:"ref"`
	Filename string `json:"filename,omitempty" yaml:"filename,omitempty"`
	Caption  string `json:"caption,omitempty" yaml:"caption,omitempty"`
}

type ContactCard struct {
	Name  string `json:"name" yaml:"name"`
	VCard string `json:"vcard" yaml:"vcard"`
}

type Poll struct {
	Title       string   `json:"title" yaml:"title"`
	Options     []string `json:"options" yaml:"options"`
	MultiSelect bool     `json:"multi_select,omitempty" yaml:"multi_select,omitempty"`
}

// Payload is the content of one job. Parts are delivered text first, then
// attachments, contact cards and polls.
type Payload struct {
	Text        string        `json:"text,omitempty" yaml:"text,omitempty"`
	Attachments []Attachment  `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	Contacts    []ContactCard `json:"contacts,omitempty" yaml:"contacts,omitempty"`
	Polls       []Poll        `json:"polls,omitempty" yaml:"polls,omitempty"`
}

func (p Payload) IsEmpty() bool {
	return strings.TrimSpace(p.Text) == "" && len(p.Attachments) == 0 && len(p.Contacts) == 0 && len(p.Polls) == 0
}

// Validate returns a description of the first problem, or "".
func (p Payload) Validate() string {
	if p.IsEmpty() {
		return "payload has no content"
	}
	for _, a := range p.Attachments {
		if strings.TrimSpace(a.Ref) == "" {
			return "attachment ref is required"
		}
	}
	for _, c := range p.Contacts {
		if strings.TrimSpace(c.VCard) == "" {
			return "contact card vcard is required"
		}
	}
	for _, pl := range p.Polls {
		if strings.TrimSpace(pl.Title) == "" || len(pl.Options) < 2 {
			return "poll needs a title and at least two options"
		}
	}
	return ""
}

// Clone copies the slices so a rendered payload never aliases its template.
func (p Payload) Clone() Payload {
	out := p
	out.Attachments = append([]Attachment(nil), p.Attachments...)
	out.Contacts = append([]ContactCard(nil), p.Contacts...)
	out.Polls = make([]Poll, len(p.Polls))
	for i, pl := range p.Polls {
		pl.Options = append([]string(nil), pl.Options...)
		out.Polls[i] = pl
	}
	if len(p.Polls) == 0 {
		out.Polls = nil
	}
	return out
}
