package ingest

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"

	"propdesk/internal/config"
)

// TelegramSource buffers channel posts pushed by the bot API and hands them
// to the intake loop on Poll. The bot's long-poller runs on its own
// goroutine; the buffer is the handoff point between the push side and the
// pull side.
type TelegramSource struct {
	bot      *tele.Bot
	logger   *zap.Logger
	channels map[string]struct{}

	mu     sync.Mutex
	buffer []RawMessage
}

func NewTelegramSource(cfg config.TelegramConfig, logger *zap.Logger) (*TelegramSource, error) {
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	})
	if err != nil {
		return nil, err
	}
	bot.Use(middleware.AutoRespond())

	src := &TelegramSource{
		bot:      bot,
		logger:   logger,
		channels: make(map[string]struct{}, len(cfg.Channels)),
	}
	for _, ch := range cfg.Channels {
		ch = strings.TrimSpace(strings.TrimPrefix(ch, "@"))
		if ch != "" {
			src.channels[strings.ToLower(ch)] = struct{}{}
		}
	}

	bot.Handle(tele.OnChannelPost, src.onMessage)
	bot.Handle(tele.OnText, src.onMessage)
	return src, nil
}

func (s *TelegramSource) Name() string {
	return "telegram"
}

// Start launches the bot's long-poller. Returns immediately.
func (s *TelegramSource) Start() {
	if s == nil || s.bot == nil {
		return
	}
	go s.bot.Start()
}

func (s *TelegramSource) Stop() {
	if s == nil || s.bot == nil {
		return
	}
	s.bot.Stop()
}

func (s *TelegramSource) onMessage(c tele.Context) error {
	msg := c.Message()
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	channel := channelKey(msg.Chat)
	if !s.allowed(channel) {
		return nil
	}
	s.mu.Lock()
	s.buffer = append(s.buffer, RawMessage{
		Channel:    channel,
		MessageID:  int64(msg.ID),
		ReceivedAt: msg.Time().UTC(),
		Text:       msg.Text,
	})
	s.mu.Unlock()
	return nil
}

// Poll hands over the buffered messages and resets the buffer.
func (s *TelegramSource) Poll(ctx context.Context) ([]RawMessage, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.buffer
	s.buffer = nil
	return out, nil
}

// allowed filters to the configured channels; an empty allowlist accepts
// everything, which is only sane for a bot invited to a single channel.
func (s *TelegramSource) allowed(channel string) bool {
	if len(s.channels) == 0 {
		return true
	}
	_, ok := s.channels[strings.ToLower(channel)]
	return ok
}

func channelKey(chat *tele.Chat) string {
	if chat == nil {
		return ""
	}
	if chat.Username != "" {
		return chat.Username
	}
	return strconv.FormatInt(chat.ID, 10)
}
