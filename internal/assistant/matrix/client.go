// Package matrix provides the chat-platform transport for the assistant.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds Matrix client configuration.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// DB is an optional SQLite connection used to persist the sync token
	// (next_batch) across restarts. When nil an in-memory store is used and
	// room history is replayed on every restart.
	DB *sql.DB
}

// IncomingMessage is one normalized inbound text message.
type IncomingMessage struct {
	SenderID    string
	RoomID      string
	Body        string
	IsDirect    bool
	MentionsBot bool

	// MentionedUserIDs lists the users intentionally mentioned in the
	// message, excluding the bot and the sender.
	MentionedUserIDs []string
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *IncomingMessage)

// Client wraps the mautrix client.
type Client struct {
	client     *mautrix.Client
	config     *Config
	stopCh     chan struct{}
	msgHandler MessageHandler

	// memberCounts caches joined-member counts per room for DM detection
	// (a direct message is a two-member room).
	memberMu     sync.Mutex
	memberCounts map[id.RoomID]int
}

// New creates a Matrix client.
func New(config *Config) (*Client, error) {
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}

	c := &Client{
		client:       client,
		config:       config,
		stopCh:       make(chan struct{}),
		memberCounts: make(map[id.RoomID]int),
	}

	if config.DB != nil {
		client.Store = newDBSyncStore(config.DB)
		slog.Info("matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("matrix sync store: no DB configured, history will replay on restart")
	}

	return c, nil
}

const (
	syncBackoffMin = 2 * time.Second
	syncBackoffMax = 5 * time.Minute
	// A connection that held this long counts as recovered; the next failure
	// starts the schedule over.
	syncStableAfter = time.Minute
)

// syncBackoff tracks the reconnect delay: doubling on each consecutive
// failure up to syncBackoffMax, back to syncBackoffMin once a connection
// has held for syncStableAfter.
type syncBackoff struct {
	current time.Duration
}

func (b *syncBackoff) next(connectedFor time.Duration) time.Duration {
	if b.current == 0 || connectedFor >= syncStableAfter {
		b.current = syncBackoffMin
		return b.current
	}
	b.current *= 2
	if b.current > syncBackoffMax {
		b.current = syncBackoffMax
	}
	return b.current
}

// Start begins syncing with the homeserver. The sync loop reconnects with
// exponential backoff; without it a transient homeserver error would leave
// the bot deaf to all new messages.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	c.msgHandler = handler

	syncer := c.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMembership)

	go func() {
		var backoff syncBackoff
		for {
			started := time.Now()
			if err := c.client.Sync(); err != nil {
				select {
				case <-c.stopCh:
					return
				default:
				}
				delay := backoff.next(time.Since(started))
				slog.Error("matrix sync stopped; reconnecting", "err", err, "backoff", delay)
				select {
				case <-c.stopCh:
					return
				case <-time.After(delay):
				}
				continue
			}
			return
		}
	}()

	return nil
}

// Stop stops the Matrix client.
func (c *Client) Stop() {
	close(c.stopCh)
	c.client.StopSync()
}

// SendText sends a plain text message to a room.
func (c *Client) SendText(ctx context.Context, roomID, message string) error {
	_, err := c.client.SendText(ctx, id.RoomID(roomID), message)
	if err != nil {
		return fmt.Errorf("matrix: send message: %w", err)
	}
	return nil
}

// SendNotice sends a notice (less intrusive than a normal message).
func (c *Client) SendNotice(ctx context.Context, roomID, message string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    message,
	}
	_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("matrix: send notice: %w", err)
	}
	return nil
}

// SetTyping sets the typing indicator in a room.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool, timeout time.Duration) error {
	_, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, timeout)
	if err != nil {
		return fmt.Errorf("matrix: set typing: %w", err)
	}
	return nil
}

// JoinRoom joins a room, tolerating already-joined errors.
func (c *Client) JoinRoom(ctx context.Context, roomID string) error {
	_, err := c.client.JoinRoomByID(ctx, id.RoomID(roomID))
	if err != nil {
		if errors.Is(err, mautrix.MForbidden) {
			slog.Warn("join room: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return fmt.Errorf("matrix: join room %s: %w", roomID, err)
	}
	return nil
}

// UserID returns the bot's own user ID.
func (c *Client) UserID() string {
	return c.config.UserID
}

// DisplayName returns the bot's display name, falling back to the localpart
// of the user ID.
func (c *Client) DisplayName(ctx context.Context) string {
	profile, err := c.client.GetProfile(ctx, id.UserID(c.config.UserID))
	if err == nil && profile.DisplayName != "" {
		return profile.DisplayName
	}
	local := strings.TrimPrefix(c.config.UserID, "@")
	if idx := strings.IndexByte(local, ':'); idx > 0 {
		local = local[:idx]
	}
	return local
}

// handleMessage normalizes an inbound event and forwards it to the handler.
func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	// Ignore our own messages.
	if evt.Sender == id.UserID(c.config.UserID) {
		return
	}

	msgContent := evt.Content.AsMessage()
	if msgContent == nil || msgContent.MsgType != event.MsgText {
		return
	}

	if c.msgHandler == nil {
		return
	}

	c.msgHandler(ctx, &IncomingMessage{
		SenderID:         evt.Sender.String(),
		RoomID:           evt.RoomID.String(),
		Body:             msgContent.Body,
		IsDirect:         c.isDirect(ctx, evt.RoomID),
		MentionsBot:      c.mentionsBot(msgContent),
		MentionedUserIDs: c.otherMentions(msgContent, evt.Sender),
	})
}

// handleMembership invalidates the member-count cache when a room's
// membership changes.
func (c *Client) handleMembership(ctx context.Context, evt *event.Event) {
	c.memberMu.Lock()
	delete(c.memberCounts, evt.RoomID)
	c.memberMu.Unlock()
}

// isDirect reports whether roomID is a two-member room.
func (c *Client) isDirect(ctx context.Context, roomID id.RoomID) bool {
	c.memberMu.Lock()
	count, ok := c.memberCounts[roomID]
	c.memberMu.Unlock()

	if !ok {
		resp, err := c.client.JoinedMembers(ctx, roomID)
		if err != nil {
			slog.Warn("matrix: joined members lookup failed", "room", roomID, "err", err)
			return false
		}
		count = len(resp.Joined)
		c.memberMu.Lock()
		c.memberCounts[roomID] = count
		c.memberMu.Unlock()
	}
	return count == 2
}

// mentionsBot reports whether the message intentionally mentions the bot or
// names it in the body.
func (c *Client) mentionsBot(content *event.MessageEventContent) bool {
	if content.Mentions != nil {
		for _, uid := range content.Mentions.UserIDs {
			if uid == id.UserID(c.config.UserID) {
				return true
			}
		}
	}
	return strings.Contains(content.Body, c.config.UserID)
}

// otherMentions collects intentional mentions of users other than the bot
// and the sender.
func (c *Client) otherMentions(content *event.MessageEventContent, sender id.UserID) []string {
	if content.Mentions == nil {
		return nil
	}
	var out []string
	for _, uid := range content.Mentions.UserIDs {
		if uid == id.UserID(c.config.UserID) || uid == sender {
			continue
		}
		out = append(out, uid.String())
	}
	return out
}
