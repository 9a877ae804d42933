package campaign

import (
	"context"
	"errors"
	"strings"

	"waflow/internal/apperr"

	"github.com/rs/zerolog/log"
)

type recipient struct {
	address string
	// vars feed {{placeholder}} rendering; nil when the source has no columns.
	vars map[string]string
}

func (s *Service) resolve(ctx context.Context, owner string, src RecipientSource) ([]recipient, error) {
	kind := src.kind()
	sess, ok := s.cfg.Sessions.Ready(owner)
	if !ok {
		return nil, &apperr.RecipientResolutionError{Source: kind, Err: errors.New("session not connected")}
	}

	var out []recipient
	switch kind {
	case "numbers":
		addrs, err := sess.ResolveNumberIDs(ctx, src.Numbers)
		if err != nil {
			return nil, &apperr.RecipientResolutionError{Source: kind, Err: err}
		}
		for _, a := range addrs {
			out = append(out, recipient{address: a})
		}

	case "rows":
		numbers := make([]string, 0, len(src.Rows))
		rows := make([]map[string]string, 0, len(src.Rows))
		for _, row := range src.Rows {
			n := lookup(row, s.cfg.NumberColumn)
			if n == "" {
				continue
			}
			numbers = append(numbers, n)
			rows = append(rows, row)
		}
		addrs, err := sess.ResolveNumberIDs(ctx, numbers)
		if err != nil {
			return nil, &apperr.RecipientResolutionError{Source: kind, Err: err}
		}
		for i, a := range addrs {
			if i < len(rows) {
				out = append(out, recipient{address: a, vars: rows[i]})
			}
		}

	case "group":
		addrs, err := sess.ResolveGroupMembers(ctx, src.GroupID)
		if err != nil {
			return nil, &apperr.RecipientResolutionError{Source: kind, Err: err}
		}
		for _, a := range addrs {
			out = append(out, recipient{address: a})
		}

	case "label":
		addrs, err := sess.ResolveLabelMembers(ctx, src.LabelID)
		if err != nil {
			return nil, &apperr.RecipientResolutionError{Source: kind, Err: err}
		}
		for _, a := range addrs {
			out = append(out, recipient{address: a})
		}
	}

	out = dedupe(out)
	if len(out) == 0 {
		return nil, &apperr.RecipientResolutionError{Source: kind, Err: errors.New("no reachable recipients")}
	}
	log.Debug().Str("owner", owner).Str("source", kind).Int("recipients", len(out)).Msg("recipients resolved")
	return out, nil
}

// dedupe drops unresolved entries and repeated addresses, keeping the first.
func dedupe(in []recipient) []recipient {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, r := range in {
		if r.address == "" || seen[r.address] {
			continue
		}
		seen[r.address] = true
		out = append(out, r)
	}
	return out
}

func lookup(row map[string]string, column string) string {
	if v, ok := row[column]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range row {
		if strings.EqualFold(strings.TrimSpace(k), column) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
