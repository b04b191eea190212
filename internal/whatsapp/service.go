package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"rosterbot/internal/handler"
	"rosterbot/internal/message"
)

// Handler answers one inbound envelope
type Handler interface {
	Handle(ctx context.Context, env message.Envelope) (handler.Reply, bool)
}

type Config struct {
	DataDir string
	// DefaultCountryCode is prefixed to numbers written with a leading trunk 0
	DefaultCountryCode string
}

type Service struct {
	client  *whatsmeow.Client
	cfg     Config
	log     zerolog.Logger
	handler Handler
	ctx     context.Context
}

// NewService opens the whatsmeow device store under cfg.DataDir
func NewService(ctx context.Context, cfg Config, h Handler, log zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	// Use nil logger - sqlstore will use a no-op logger by default
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	service := &Service{
		client:  whatsmeow.NewClient(deviceStore, nil),
		cfg:     cfg,
		log:     log.With().Str("component", "whatsapp").Logger(),
		handler: h,
		ctx:     ctx,
	}
	service.client.AddEventHandler(service.eventHandler)
	return service, nil
}

// NormalizePhoneNumber converts a phone number to E.164 ("+15550000001").
// Numbers written with a leading trunk 0 get countryCode instead of the 0,
// and a 00 international prefix is dropped.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phoneNumber)
	if digits == "" {
		return ""
	}

	explicit := strings.HasPrefix(strings.TrimSpace(phoneNumber), "+")
	switch {
	case explicit:
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case strings.HasPrefix(digits, "0") && countryCode != "":
		digits = strings.TrimLeft(countryCode, "+") + digits[1:]
	}

	// country code followed by a stray trunk 0, e.g. 9720...
	if cc := strings.TrimLeft(countryCode, "+"); cc != "" && strings.HasPrefix(digits, cc+"0") {
		digits = cc + digits[len(cc)+1:]
	}
	return "+" + digits
}

// Connect connects to WhatsApp, printing a QR code when the device is not linked yet
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, _ := s.client.GetQRChannel(ctx)
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Printf("QR Code: %s\n", evt.Code)
			fmt.Println("Please scan this QR code with WhatsApp to connect.")
			continue
		}
		fmt.Println("\n" + q.ToSmallString(false))
		fmt.Println("Scan the QR code above with WhatsApp:")
		fmt.Println("   1. Open WhatsApp on your phone")
		fmt.Println("   2. Go to Settings > Linked Devices")
		fmt.Println("   3. Tap 'Link a Device'")
		fmt.Println("   4. Scan the QR code shown above")
	}
	return nil
}

// Run connects and handles messages until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	s.ctx = ctx
	if err := s.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Disconnect()
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// SendText sends text to a chat, quoting the message it answers when given
func (s *Service) SendText(ctx context.Context, chat types.JID, text string, quoted *events.Message) error {
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if quoted != nil {
		msg = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text: proto.String(text),
				ContextInfo: &waE2E.ContextInfo{
					StanzaID:      proto.String(quoted.Info.ID),
					Participant:   proto.String(quoted.Info.Sender.ToNonAD().String()),
					QuotedMessage: quoted.Message,
				},
			},
		}
	}

	s.log.Debug().Str("jid", chat.String()).Msg("Sending message")
	if _, err := s.client.SendMessage(ctx, chat, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", chat, err)
	}
	return nil
}

// eventHandler handles incoming WhatsApp events
func (s *Service) eventHandler(evt interface{}) {
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}

// handleMessage processes incoming messages
func (s *Service) handleMessage(msg *events.Message) {
	env, ok := EnvelopeFromEvent(msg)
	if !ok {
		return
	}

	reply, ok := s.handler.Handle(s.ctx, env)
	if !ok {
		return
	}
	if err := s.SendText(s.ctx, msg.Info.Chat, reply.Text, msg); err != nil {
		s.log.Error().Err(err).Str("sender", env.Sender).Msg("Error sending reply")
	}
}

// EnvelopeFromEvent converts a whatsmeow message into an envelope. Messages
// from the linked device itself and non-text messages are skipped.
func EnvelopeFromEvent(msg *events.Message) (message.Envelope, bool) {
	if msg == nil || msg.Message == nil || msg.Info.IsFromMe {
		return message.Envelope{}, false
	}

	body := msg.Message.GetConversation()
	ext := msg.Message.GetExtendedTextMessage()
	if body == "" {
		body = ext.GetText()
	}
	if body == "" {
		return message.Envelope{}, false
	}

	env := message.Envelope{
		Sender:    "+" + senderPhone(msg.Info.MessageSource).User,
		Body:      body,
		Timestamp: msg.Info.Timestamp.UnixMilli(),
		ReplyID:   ext.GetContextInfo().GetStanzaID(),
	}
	if msg.Info.IsGroup {
		env.GroupID = msg.Info.Chat.User
	}
	return env, true
}

// senderPhone prefers the phone-number JID when the sender is addressed by LID
func senderPhone(src types.MessageSource) types.JID {
	if src.Sender.Server == types.HiddenUserServer && !src.SenderAlt.IsEmpty() && src.SenderAlt.Server == types.DefaultUserServer {
		return src.SenderAlt
	}
	return src.Sender
}
