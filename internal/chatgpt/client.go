// ABOUTME: ChatGPT backend client and streaming response assembler
// ABOUTME: Sends conversation turns and assembles replies from the SSE body

package chatgpt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/google/uuid"
)

const (
	// The backend serves a browser surface; requests carry a browser UA.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36 Edg/107.0.1418.62"

	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Options configures a Client. Zero-value fields fall back to the
// production endpoints and model.
type Options struct {
	BaseURL     string // chat surface, e.g. https://chat.openai.com
	AuthBaseURL string // authorization surface, e.g. https://auth0.openai.com
	Model       string
}

// Client talks to the ChatGPT web backend. It owns the per-user session
// store and the process-wide bearer credential.
type Client struct {
	http        *http.Client
	baseURL     string
	authBaseURL string
	model       string
	logger      *slog.Logger
	sessions    *Store

	// accessToken is written by Login/LoginWithToken before turns start;
	// concurrent turns only read it. No expiry tracking: an invalid token
	// surfaces as a failed turn.
	accessToken string
}

// NewClient creates a Client. The underlying HTTP client keeps a cookie jar
// (the login flow depends on session cookies) and never follows redirects on
// its own - each hop is inspected by the login state machine.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://chat.openai.com"
	}
	if opts.AuthBaseURL == "" {
		opts.AuthBaseURL = "https://auth0.openai.com"
	}
	if opts.Model == "" {
		opts.Model = "text-davinci-002-render"
	}

	return &Client{
		http: &http.Client{
			Jar: jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL:     strings.TrimSuffix(opts.BaseURL, "/"),
		authBaseURL: strings.TrimSuffix(opts.AuthBaseURL, "/"),
		model:       opts.Model,
		logger:      logger.With("component", "chatgpt"),
		sessions:    NewStore(),
	}, nil
}

// LoginWithToken injects a bearer credential directly, bypassing the login flow.
func (c *Client) LoginWithToken(token string) {
	c.accessToken = token
}

// IsUserFree reports whether the user has no turn in flight.
func (c *Client) IsUserFree(userID int64) bool {
	return c.sessions.IsCompleted(userID)
}

// Wire types for the conversation endpoint.

type turnMessage struct {
	ID      string      `json:"id"`
	Role    string      `json:"role"`
	Content turnContent `json:"content"`
}

type turnContent struct {
	ContentType string   `json:"content_type"`
	Parts       []string `json:"parts"`
}

type turnRequest struct {
	Action          string        `json:"action"`
	Messages        []turnMessage `json:"messages"`
	ParentMessageID string        `json:"parent_message_id"`
	Model           string        `json:"model"`
	ConversationID  *string       `json:"conversation_id,omitempty"`
}

type turnFragment struct {
	ConversationID *string      `json:"conversation_id"`
	Error          *string      `json:"error"`
	Message        *turnMessage `json:"message"`
}

// SendTurn sends one conversation turn for the user and streams the reply.
// It blocks until the turn settles and then invokes onComplete exactly once:
// with the final reply text on success, or with an empty string and the
// failure otherwise. The session is always released before returning, even
// on cancellation. Returns ErrTurnInFlight without invoking onComplete if
// the user already has a turn being streamed.
//
// Continuity fields are committed incrementally as fragments arrive, so a
// stream that fails mid-turn leaves the session advanced past the incomplete
// turn; the next turn resumes from that linkage state rather than rolling back.
func (c *Client) SendTurn(ctx context.Context, userID int64, text string, onComplete func(reply string, err error)) error {
	conversationID, parentMessageID, ok := c.sessions.TryBegin(userID)
	if !ok {
		return ErrTurnInFlight
	}
	defer c.sessions.Complete(userID)

	messageID := uuid.New().String()
	reqBody := turnRequest{
		Action: "next",
		Messages: []turnMessage{{
			ID:   messageID,
			Role: "user",
			Content: turnContent{
				ContentType: "text",
				Parts:       []string{text},
			},
		}},
		ParentMessageID: parentMessageID,
		Model:           c.model,
		ConversationID:  conversationID,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		onComplete("", fmt.Errorf("marshaling turn request: %w", err))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/backend-api/conversation", bytes.NewReader(payload))
	if err != nil {
		onComplete("", fmt.Errorf("creating turn request: %w", err))
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		onComplete("", fmt.Errorf("sending turn request: %w", err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		onComplete("", fmt.Errorf("conversation endpoint returned status %d", resp.StatusCode))
		return nil
	}

	reply, err := c.assembleReply(ctx, userID, resp.Body)
	if err != nil {
		onComplete("", err)
		return nil
	}

	c.logger.Debug("turn complete",
		"user_id", userID,
		"message_id", messageID,
		"reply_len", len(reply))
	onComplete(reply, nil)
	return nil
}

// assembleReply reads the SSE body line by line as it arrives. Each fragment
// repeats the cumulative reply text so far, so the last snapshot wins -
// appending would corrupt the reply. Lines that are not recognizable
// fragments are skipped.
func (c *Client) assembleReply(ctx context.Context, userID int64, body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lastMessage string
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimPrefix(line, dataPrefix)

		if data == doneSentinel {
			return lastMessage, nil
		}

		var frag turnFragment
		if err := json.Unmarshal([]byte(data), &frag); err != nil || frag.Message == nil {
			// Streams interleave non-message control payloads; skip them.
			continue
		}

		if len(frag.Message.Content.Parts) > 0 {
			lastMessage = frag.Message.Content.Parts[0]
		}
		c.sessions.Update(userID, frag.ConversationID, frag.Message.ID)
	}

	// The sentinel was never observed: the turn did not settle cleanly.
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("turn cancelled: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading event stream: %w", err)
	}
	return "", fmt.Errorf("event stream ended before completion: %w", io.ErrUnexpectedEOF)
}
