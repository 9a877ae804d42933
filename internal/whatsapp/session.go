// Package whatsapp runs owner accounts on whatsmeow and exposes each one as
// a session.Session.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"waflow/internal/media"
	"waflow/internal/message"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

// Session adapts one whatsmeow client. Label membership is not queryable on
// demand, so it is indexed from app-state events as they arrive.
type Session struct {
	client *whatsmeow.Client
	media  media.Fetcher

	mu     sync.RWMutex
	labels map[string]map[types.JID]struct{}
}

func newSession(client *whatsmeow.Client, fetcher media.Fetcher) *Session {
	return &Session{
		client: client,
		media:  fetcher,
		labels: make(map[string]map[types.JID]struct{}),
	}
}

func (s *Session) Ready() bool {
	return s.client.IsConnected() && s.client.IsLoggedIn()
}

// ParseAddress accepts a JID or a bare phone number.
func ParseAddress(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if strings.ContainsRune(to, '@') {
		return types.ParseJID(to)
	}
	number := strings.TrimPrefix(to, "+")
	if number == "" {
		return types.EmptyJID, errors.New("empty address")
	}
	return types.NewJID(number, types.DefaultUserServer), nil
}

func (s *Session) send(ctx context.Context, to string, msg *waE2E.Message) error {
	jid, err := ParseAddress(to)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, jid, msg, whatsmeow.SendRequestExtra{ID: s.client.GenerateMessageID()})
	return err
}

func (s *Session) SendText(ctx context.Context, to, text string) error {
	return s.send(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
}

func (s *Session) SendMedia(ctx context.Context, to string, a message.Attachment) error {
	if s.media == nil {
		return errors.New("no media store configured")
	}
	obj, err := s.media.Fetch(ctx, a.Ref)
	if err != nil {
		return err
	}
	name := a.Filename
	if name == "" {
		name = obj.Name
	}

	var msg *waE2E.Message
	switch {
	case strings.HasPrefix(obj.ContentType, "image/"):
		up, err := s.client.Upload(ctx, obj.Data, whatsmeow.MediaImage)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(obj.ContentType),
			Caption:       proto.String(a.Caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}
	case strings.HasPrefix(obj.ContentType, "video/"):
		up, err := s.client.Upload(ctx, obj.Data, whatsmeow.MediaVideo)
		if err != nil {
			return fmt.Errorf("upload video: %w", err)
		}
		msg = &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(obj.ContentType),
			Caption:       proto.String(a.Caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}
	default:
		up, err := s.client.Upload(ctx, obj.Data, whatsmeow.MediaDocument)
		if err != nil {
			return fmt.Errorf("upload document: %w", err)
		}
		msg = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			Mimetype:      proto.String(obj.ContentType),
			FileName:      proto.String(name),
			Title:         proto.String(name),
			Caption:       proto.String(a.Caption),
			FileLength:    proto.Uint64(up.FileLength),
			FileSHA256:    up.FileSHA256,
			FileEncSHA256: up.FileEncSHA256,
			MediaKey:      up.MediaKey,
		}}
	}
	return s.send(ctx, to, msg)
}

func (s *Session) SendContactCard(ctx context.Context, to string, c message.ContactCard) error {
	return s.send(ctx, to, &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
		DisplayName: proto.String(c.Name),
		Vcard:       proto.String(c.VCard),
	}})
}

func (s *Session) SendPoll(ctx context.Context, to string, p message.Poll) error {
	selectable := 1
	if p.MultiSelect {
		selectable = len(p.Options)
	}
	return s.send(ctx, to, s.client.BuildPollCreation(p.Title, p.Options, selectable))
}

func (s *Session) ResolveGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	jid, err := ParseAddress(groupID)
	if err != nil {
		return nil, err
	}
	if jid.Server != types.GroupServer {
		jid = types.NewJID(jid.User, types.GroupServer)
	}
	info, err := s.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("group info %s: %w", jid, err)
	}
	own := types.EmptyJID
	if s.client.Store.ID != nil {
		own = s.client.Store.ID.ToNonAD()
	}
	out := make([]string, 0, len(info.Participants))
	for _, p := range info.Participants {
		member := p.JID.ToNonAD()
		if member == own {
			continue
		}
		out = append(out, member.String())
	}
	return out, nil
}

func (s *Session) ResolveLabelMembers(_ context.Context, labelID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.labels[labelID]
	if !ok {
		return nil, fmt.Errorf("label %s has no known chats", labelID)
	}
	out := make([]string, 0, len(members))
	for jid := range members {
		out = append(out, jid.String())
	}
	sort.Strings(out)
	return out, nil
}

func (s *Session) ResolveNumberIDs(ctx context.Context, numbers []string) ([]string, error) {
	queries := make([]string, len(numbers))
	for i, n := range numbers {
		queries[i] = "+" + strings.TrimPrefix(strings.TrimSpace(n), "+")
	}
	resp, err := s.client.IsOnWhatsApp(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("number lookup: %w", err)
	}
	found := make(map[string]string, len(resp))
	for _, r := range resp {
		if r.IsIn {
			found[r.Query] = r.JID.String()
		}
	}
	out := make([]string, len(numbers))
	for i, q := range queries {
		out[i] = found[q]
	}
	return out, nil
}

func (s *Session) setLabel(labelID string, chat types.JID, labeled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.labels[labelID]
	if labeled {
		if members == nil {
			members = make(map[types.JID]struct{})
			s.labels[labelID] = members
		}
		members[chat.ToNonAD()] = struct{}{}
		return
	}
	delete(members, chat.ToNonAD())
}
