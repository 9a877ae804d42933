package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"waflow/internal/bot"
	"waflow/internal/logger"
	"waflow/internal/media"
	"waflow/internal/session"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// InboundFunc receives every message an owner's account is sent.
type InboundFunc func(ctx context.Context, owner string, in bot.Inbound)

// Manager connects every paired device in the device store and keeps the
// session registry in step with their connection state. Pairing new
// devices happens elsewhere; the manager only runs what is already paired.
type Manager struct {
	container *sqlstore.Container
	registry  *session.Registry
	media     media.Fetcher
	inbound   InboundFunc

	mu      sync.Mutex
	clients map[string]*whatsmeow.Client
}

func NewManager(ctx context.Context, dsn string, registry *session.Registry, fetcher media.Fetcher, inbound InboundFunc) (*Manager, error) {
	container, err := sqlstore.New(ctx, "postgres", dsn, waLog.Zerolog(logger.Component("wastore")))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	return &Manager{
		container: container,
		registry:  registry,
		media:     fetcher,
		inbound:   inbound,
		clients:   make(map[string]*whatsmeow.Client),
	}, nil
}

// Start connects all stored devices. Inbound messages are handled with ctx,
// so cancelling it abandons pending rule fires.
func (m *Manager) Start(ctx context.Context) error {
	devices, err := m.container.GetAllDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if dev.ID == nil {
			continue
		}
		owner := dev.ID.User
		l := logger.Component("whatsapp").With().Str("owner", owner).Logger()

		client := whatsmeow.NewClient(dev, waLog.Zerolog(l.Level(zerolog.WarnLevel)))
		client.EnableAutoReconnect = true
		s := newSession(client, m.media)
		client.AddEventHandler(m.handler(ctx, owner, s))

		if err := client.Connect(); err != nil {
			l.Error().Err(err).Msg("session connect failed")
			continue
		}
		m.mu.Lock()
		m.clients[owner] = client
		m.mu.Unlock()
		m.registry.Register(owner, s)
		l.Info().Msg("session connected")
	}
	return nil
}

func (m *Manager) handler(ctx context.Context, owner string, s *Session) func(any) {
	return func(evt any) {
		switch e := evt.(type) {
		case *events.Message:
			in, ok := toInbound(ctx, s, e)
			if ok && m.inbound != nil {
				m.inbound(ctx, owner, in)
			}
		case *events.LabelAssociationChat:
			s.setLabel(e.LabelID, e.JID, e.Action.GetLabeled())
		case *events.LoggedOut:
			log.Warn().Str("owner", owner).Msg("session logged out")
			m.registry.Remove(owner)
		case *events.Connected:
			m.registry.Register(owner, s)
		}
	}
}

func toInbound(ctx context.Context, s *Session, e *events.Message) (bot.Inbound, bool) {
	if e.Info.IsFromMe || e.Info.Chat == types.StatusBroadcastJID {
		return bot.Inbound{}, false
	}
	body := e.Message.GetConversation()
	if body == "" {
		body = e.Message.GetExtendedTextMessage().GetText()
	}
	if strings.TrimSpace(body) == "" {
		return bot.Inbound{}, false
	}

	sender := e.Info.Sender.ToNonAD()
	in := bot.Inbound{
		Sender:     sender.String(),
		Chat:       e.Info.Chat.ToNonAD().String(),
		Body:       body,
		IsGroup:    e.Info.IsGroup,
		SenderName: e.Info.PushName,
	}
	if c, err := s.client.Store.Contacts.GetContact(ctx, sender); err == nil && c.Found {
		in.SenderSaved = c.FullName != ""
		if c.FullName != "" {
			in.SenderName = c.FullName
		}
	}
	return in, true
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for owner, c := range m.clients {
		c.Disconnect()
		m.registry.Remove(owner)
	}
}
