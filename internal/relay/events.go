// ABOUTME: OneBot v11 event envelope and API call types
// ABOUTME: Decodes inbound chat events and builds outbound group replies

package relay

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// inboundEvent is the OneBot event envelope. Only the fields the relay
// dispatches on are decoded; everything else is ignored.
type inboundEvent struct {
	PostType      string           `json:"post_type"`
	MetaEventType string           `json:"meta_event_type"`
	SubType       string           `json:"sub_type"`
	MessageType   string           `json:"message_type"`
	SelfID        int64            `json:"self_id"`
	UserID        int64            `json:"user_id"`
	GroupID       int64            `json:"group_id"`
	MessageID     int64            `json:"message_id"`
	Message       []messageSegment `json:"message"`
}

// messageSegment is one element of a OneBot array-format message.
type messageSegment struct {
	Type string      `json:"type"`
	Data segmentData `json:"data"`
}

type segmentData struct {
	Text string `json:"text"`
}

// plainText concatenates the trimmed text segments of the message,
// dropping images, mentions, and other non-text segments.
func (e *inboundEvent) plainText() string {
	var b strings.Builder
	for _, seg := range e.Message {
		if seg.Type != "text" {
			continue
		}
		b.WriteString(strings.TrimSpace(seg.Data.Text))
	}
	return b.String()
}

// apiCall is an outbound OneBot API invocation.
type apiCall struct {
	Action string             `json:"action"`
	Echo   string             `json:"echo"`
	Params groupMessageParams `json:"params"`
}

type groupMessageParams struct {
	GroupID int64  `json:"group_id"`
	Message string `json:"message"`
}

// newGroupReply builds a send_group_msg call that quotes the triggering
// message via a CQ reply code.
func newGroupReply(groupID, replyTo int64, text string) apiCall {
	return apiCall{
		Action: "send_group_msg",
		Echo:   uuid.New().String(),
		Params: groupMessageParams{
			GroupID: groupID,
			Message: fmt.Sprintf("[CQ:reply,id=%d]%s", replyTo, text),
		},
	}
}
