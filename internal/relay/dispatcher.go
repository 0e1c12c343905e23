// ABOUTME: Event dispatch for the OneBot relay
// ABOUTME: Turns chat commands into conversation turns and replies with the result

package relay

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/himari-bot/himari-relay/internal/chatgpt"
)

// busyNotice is sent when a user issues a command while their previous
// turn is still being streamed. Concurrent commands are dropped with this
// notice, never queued.
const busyNotice = "Your previous request is still in progress, please wait."

// handleEvent decodes one OneBot event and dispatches on its post type.
func (s *Server) handleEvent(ctx context.Context, c *wsConn, data []byte) {
	var evt inboundEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		s.logger.Warn("discarding malformed event", "error", err)
		return
	}

	switch evt.PostType {
	case "":
		// API responses echo back through the same socket; nothing to do.
	case "meta_event":
		s.handleMetaEvent(&evt)
	case "message":
		s.handleMessageEvent(ctx, c, &evt)
	default:
		s.logger.Debug("ignoring event", "post_type", evt.PostType)
	}
}

func (s *Server) handleMetaEvent(evt *inboundEvent) {
	switch evt.MetaEventType {
	case "lifecycle":
		if evt.SubType == "connect" {
			s.logger.Info("bot account online", "self_id", evt.SelfID)
		}
	case "heartbeat":
		s.logger.Debug("heartbeat", "self_id", evt.SelfID)
	}
}

// handleMessageEvent matches group messages against the command prefix and
// dispatches a conversation turn for each match.
func (s *Server) handleMessageEvent(ctx context.Context, c *wsConn, evt *inboundEvent) {
	if evt.MessageType != "group" || evt.SubType != "normal" {
		return
	}

	m := s.commandRe.FindStringSubmatch(evt.plainText())
	if m == nil {
		return
	}
	prompt := m[1]

	// Cheap pre-check so the user gets a notice instead of silence; the
	// authoritative claim happens inside SendTurn.
	if !s.gpt.IsUserFree(evt.UserID) {
		s.reply(c, evt, busyNotice)
		return
	}

	s.logger.Info("dispatching conversation turn",
		"user_id", evt.UserID,
		"group_id", evt.GroupID,
		"prompt", truncate(prompt, 50))

	go func() {
		err := s.gpt.SendTurn(ctx, evt.UserID, prompt, func(reply string, err error) {
			if err != nil {
				s.logger.Warn("turn failed", "user_id", evt.UserID, "error", err)
				reply = err.Error()
			}
			s.reply(c, evt, reply)
		})
		if errors.Is(err, chatgpt.ErrTurnInFlight) {
			s.reply(c, evt, busyNotice)
		}
	}()
}

func (s *Server) reply(c *wsConn, evt *inboundEvent, text string) {
	if err := c.send(newGroupReply(evt.GroupID, evt.MessageID, text)); err != nil {
		s.logger.Error("sending reply failed",
			"group_id", evt.GroupID,
			"error", err)
	}
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
