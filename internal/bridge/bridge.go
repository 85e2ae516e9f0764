// ABOUTME: Matrix bridge connecting chat rooms to the command dispatcher
// ABOUTME: Handles sync, room filtering, prefix stripping, and reply delivery

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/berth-ops/berth/internal/command"
	"github.com/berth-ops/berth/internal/config"
	"github.com/berth-ops/berth/internal/dispatch"
)

// Executor runs one parsed command on behalf of an identity. Satisfied by
// dispatch.Dispatcher.
type Executor interface {
	Execute(ctx context.Context, identity string, cmd *command.Command) (dispatch.Outcome, error)
}

// permissionsVisibleFor is how long the full permission dump stays in the
// room before it is redacted. Permission state is sensitive enough that it
// should not linger in chat history.
const permissionsVisibleFor = 5 * time.Second

// typingTimeout is the duration the typing indicator shows.
const typingTimeout = 30 * time.Second

// networkTimeout is the timeout for incidental Matrix API calls.
const networkTimeout = 10 * time.Second

// sendTimeout is the timeout for sending replies, which can be large.
const sendTimeout = 30 * time.Second

// Bridge connects a Matrix account to the dispatcher. The identity of the
// Matrix sender is the identity the dispatcher authorizes against; the
// bridge itself makes no permission decisions.
type Bridge struct {
	cfg    config.MatrixConfig
	matrix *mautrix.Client
	exec   Executor
	crypto *CryptoManager
	logger *slog.Logger

	// dataDir holds the E2EE crypto store, alongside the main database.
	dataDir string

	// ctx is the parent context for per-message goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Matrix bridge. The crypto store is placed in the directory
// holding the main database.
func New(cfg *config.Config, exec Executor) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Matrix.Homeserver, id.UserID(cfg.Matrix.UserID), cfg.Matrix.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	return &Bridge{
		cfg:     cfg.Matrix,
		matrix:  client,
		exec:    exec,
		logger:  slog.Default().With("component", "bridge"),
		dataDir: filepath.Dir(cfg.Database.Path),
	}, nil
}

// Run starts the bridge and blocks until the context is cancelled or the
// sync loop fails.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.cfg.Homeserver,
		"user_id", b.cfg.UserID,
		"prefix", b.cfg.CommandPrefix,
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	crypto, err := SetupCrypto(b.ctx, b.matrix, b.cfg.UserID, b.cfg.RecoveryKey, b.dataDir, b.logger)
	if err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	b.crypto = crypto
	defer func() {
		if err := b.crypto.Close(); err != nil {
			b.logger.Warn("closing crypto store", "error", err)
		}
	}()

	syncer, ok := b.matrix.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.matrix.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	b.logger.Info("connecting to matrix homeserver")

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.matrix.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		b.cancel()
		return nil
	case err := <-syncErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent filters incoming Matrix messages down to commands and
// hands them off to a goroutine so the sync loop never blocks on the
// container engine.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	// Ignore our own messages
	if evt.Sender == id.UserID(b.cfg.UserID) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return
	}
	if content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	if !b.isRoomAllowed(roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	body, ok := stripPrefix(content.Body, b.cfg.CommandPrefix)
	if !ok {
		return
	}

	b.logger.Info("received command",
		"room", roomID,
		"sender", evt.Sender.String(),
		"content", truncate(body, 80),
	)

	go b.runCommand(b.ctx, evt.RoomID, evt.ID, evt.Sender, body)
}

// runCommand executes one command text and delivers the reply. Permission
// commands carry identities and capability names, so both the request
// message and the permission dump reply are redacted after a short delay.
func (b *Bridge) runCommand(ctx context.Context, roomID id.RoomID, requestID id.EventID, sender id.UserID, text string) {
	b.setTyping(roomID, true)
	defer b.setTyping(roomID, false)

	reply, cmd := b.commandReply(ctx, sender.String(), text)

	if cmd != nil && cmd.Name == "permissions" {
		b.scheduleRedaction(roomID, requestID)
	}

	if reply == "" {
		return
	}

	eventID, err := b.sendMarkdown(roomID, reply)
	if err != nil {
		b.logger.Error("failed to send reply", "room", roomID.String(), "error", err)
		return
	}

	if isEphemeral(cmd) {
		b.scheduleRedaction(roomID, eventID)
	}
}

// commandReply parses and executes one command text and returns the reply
// markdown. The parsed command is nil when parsing failed.
func (b *Bridge) commandReply(ctx context.Context, identity, text string) (string, *command.Command) {
	cmd, err := command.Parse(text)
	if err != nil {
		var parseErr *command.ParseError
		if errors.As(err, &parseErr) {
			return parseErr.Error(), nil
		}
		b.logger.Error("parse failed", "error", err)
		return "could not parse that command", nil
	}

	out, err := b.exec.Execute(ctx, identity, cmd)
	if err != nil {
		b.logger.Error("command execution failed",
			"identity", identity,
			"command", cmd.Name,
			"error", err,
		)
		return "internal error, see daemon logs", cmd
	}

	return renderOutcome(out), cmd
}

// isEphemeral reports whether the reply to cmd exposes permission state and
// should be short-lived in the room.
func isEphemeral(cmd *command.Command) bool {
	return cmd != nil && cmd.Name == "permissions" && len(cmd.Args) > 0 && cmd.Args[0] == "show"
}

// scheduleRedaction redacts a sent event after the visibility window.
func (b *Bridge) scheduleRedaction(roomID id.RoomID, eventID id.EventID) {
	time.AfterFunc(permissionsVisibleFor, func() {
		ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
		defer cancel()
		if _, err := b.matrix.RedactEvent(ctx, roomID, eventID); err != nil {
			b.logger.Warn("failed to redact permissions dump",
				"room", roomID.String(),
				"event", eventID.String(),
				"error", err,
			)
		}
	})
}

// isRoomAllowed checks the allowed-rooms filter. An empty filter allows all
// rooms the account is joined to.
func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.cfg.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.cfg.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// stripPrefix returns the command text behind the prefix, or ok=false when
// the message is not addressed to the bridge.
func stripPrefix(body, prefix string) (string, bool) {
	if prefix != "" {
		if !strings.HasPrefix(body, prefix) {
			return "", false
		}
		body = strings.TrimPrefix(body, prefix)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	return body, true
}

// setTyping sends the typing indicator to a room.
func (b *Bridge) setTyping(roomID id.RoomID, typing bool) {
	var timeout time.Duration
	if typing {
		timeout = typingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), networkTimeout)
	defer cancel()
	if _, err := b.matrix.UserTyping(ctx, roomID, typing, timeout); err != nil {
		b.logger.Debug("failed to set typing indicator", "room", roomID.String(), "error", err)
	}
}

// sendMarkdown renders markdown to HTML and sends it with a plain-text
// fallback body. Returns the event ID of the sent message.
func (b *Bridge) sendMarkdown(roomID id.RoomID, md string) (id.EventID, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    md,
	}
	if html, err := markdownToHTML(md); err == nil {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	} else {
		b.logger.Warn("markdown rendering failed, sending plain text", "error", err)
	}

	resp, err := b.matrix.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return resp.EventID, nil
}

// truncate shortens a string to the given max rune count, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
