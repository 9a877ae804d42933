package message

import (
	"math/rand/v2"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Render replaces {{column}} placeholders with vars[column]. Lookup is
// case-insensitive; unknown placeholders become empty.
func Render(text string, vars map[string]string) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}
	folded := make(map[string]string, len(vars))
	for k, v := range vars {
		folded[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		return folded[strings.ToLower(key)]
	})
}

// RenderPayload substitutes vars into the text and every attachment caption.
func RenderPayload(p Payload, vars map[string]string) Payload {
	out := p.Clone()
	out.Text = Render(out.Text, vars)
	for i := range out.Attachments {
		out.Attachments[i].Caption = Render(out.Attachments[i].Caption, vars)
	}
	return out
}

const suffixAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// WithRandomSuffix appends a short random token so that consecutive
// messages of a campaign are never byte-identical.
func WithRandomSuffix(p Payload, rng *rand.Rand) Payload {
	if p.Text == "" {
		return p
	}
	b := make([]byte, 6)
	for i := range b {
		b[i] = suffixAlphabet[rng.IntN(len(suffixAlphabet))]
	}
	p.Text = p.Text + "\n\n" + string(b)
	return p
}
