package world

import (
	"sort"
	"strings"
)

// maxWhisperHistory caps how much of a whisper conversation one query
// returns.
const maxWhisperHistory = 50

// publicChannels are the channels players may post to directly. Whispers go
// through SendWhisper and are stored under per-pair channels.
var publicChannels = map[string]bool{
	"global": true,
	"zone":   true,
	"guild":  true,
	"party":  true,
}

func whisperChannel(sender, target string) string {
	return "whisper:" + sender + ":" + target
}

// sanitizeMessage trims, bounds, and strips a raw chat message down to
// printable ASCII plus whitespace.
func sanitizeMessage(raw string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", Validationf("Message cannot be empty")
	}
	if len(trimmed) > maxLen {
		return "", Validationf("Message too long")
	}
	var b strings.Builder
	b.Grow(len(trimmed))
	for _, r := range trimmed {
		switch {
		case r >= 0x21 && r <= 0x7e:
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\f' || r == '\r':
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// SendChat posts a message to a public channel.
func (w *World) SendChat(ctx Ctx, channel, message string) (ChatMessage, error) {
	p, ok := w.players[ctx.Caller]
	if !ok {
		return ChatMessage{}, NotFoundf("Must be in game to send messages")
	}
	if !p.Online {
		return ChatMessage{}, Permissionf("Must be online to send messages")
	}
	text, err := sanitizeMessage(message, w.tun.Chat.MaxMessageLen)
	if err != nil {
		return ChatMessage{}, err
	}
	if !publicChannels[channel] {
		return ChatMessage{}, Validationf("Invalid chat channel")
	}
	msg := w.appendMessage(ctx, channel, p.Username, text)
	w.touchSession(ctx)
	return msg, nil
}

// SendWhisper sends a private message to another online player. The
// conversation is stored under a directional channel named
// whisper:<sender>:<target>.
func (w *World) SendWhisper(ctx Ctx, targetUsername, message string) (ChatMessage, error) {
	p, ok := w.players[ctx.Caller]
	if !ok {
		return ChatMessage{}, NotFoundf("Must be in game to send messages")
	}
	if !p.Online {
		return ChatMessage{}, Permissionf("Must be online to send messages")
	}
	var target *Player
	if id, ok := w.byName[targetUsername]; ok {
		target = w.players[id]
	}
	if target == nil || !target.Online {
		return ChatMessage{}, NotFoundf("Target player not found or offline")
	}
	text, err := sanitizeMessage(message, w.tun.Chat.MaxMessageLen)
	if err != nil {
		return ChatMessage{}, err
	}
	msg := w.appendMessage(ctx, whisperChannel(p.Username, targetUsername), p.Username, text)
	w.touchSession(ctx)
	return msg, nil
}

// appendMessage commits a message to a channel, pruning the channel to the
// history cap.
func (w *World) appendMessage(ctx Ctx, channel, senderName, text string) ChatMessage {
	msg := ChatMessage{
		ID:         w.nextID(ctx),
		Channel:    channel,
		Sender:     ctx.Caller,
		SenderName: senderName,
		Text:       text,
		SentAt:     ctx.Now,
	}
	msgs := append(w.chat[channel], msg)
	if over := len(msgs) - w.tun.Chat.HistoryPerChannel; over > 0 {
		msgs = append([]ChatMessage(nil), msgs[over:]...)
	}
	w.chat[channel] = msgs
	return msg
}

// RecentChat returns up to limit messages from a public channel, newest
// first. Whisper channels are not readable this way.
func (w *World) RecentChat(ctx Ctx, channel string, limit int) ([]ChatMessage, error) {
	if _, ok := w.players[ctx.Caller]; !ok {
		return nil, NotFoundf("Player not found")
	}
	if !publicChannels[channel] {
		return nil, Validationf("Invalid chat channel")
	}
	if limit < 0 {
		limit = 0
	}
	if limit > w.tun.Chat.HistoryPerChannel {
		limit = w.tun.Chat.HistoryPerChannel
	}
	msgs := w.chat[channel]
	out := make([]ChatMessage, 0, min(limit, len(msgs)))
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

// WhisperHistory returns the caller's two-way conversation with another
// player, newest first.
func (w *World) WhisperHistory(ctx Ctx, otherUsername string, limit int) ([]ChatMessage, error) {
	p, ok := w.players[ctx.Caller]
	if !ok {
		return nil, NotFoundf("Player not found")
	}
	if limit < 0 {
		limit = 0
	}
	if limit > maxWhisperHistory {
		limit = maxWhisperHistory
	}

	merged := append([]ChatMessage(nil), w.chat[whisperChannel(p.Username, otherUsername)]...)
	if otherUsername != p.Username {
		merged = append(merged, w.chat[whisperChannel(otherUsername, p.Username)]...)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].SentAt.Equal(merged[j].SentAt) {
			return merged[i].SentAt.After(merged[j].SentAt)
		}
		return merged[i].ID > merged[j].ID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}
