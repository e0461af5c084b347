package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/tgerr"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/cache"
	"github.com/vietddude/floodguard/internal/infra/rpc"
	"github.com/vietddude/floodguard/internal/metrics"
	"github.com/vietddude/floodguard/internal/scheduler"
	"github.com/vietddude/floodguard/internal/textutil"
)

const (
	// DefaultGroupName is reported when a group's title is unknown.
	DefaultGroupName = "Unknown Group"

	// DefaultGroupLink is reported when a group has no public username.
	DefaultGroupLink = "https://t.me/"
)

// ErrEmptyText is reported for messages whose text is blank.
var ErrEmptyText = errors.New("message text is empty")

// Config holds client behaviour settings.
type Config struct {
	DefaultGroupLink string        `yaml:"default_group_link"`
	ReportTTL        time.Duration `yaml:"report_ttl"`
}

// Client exposes the platform operations the moderation layer uses. Every
// remote call goes through the executor; results come back as outcomes and
// are never raised as errors.
type Client struct {
	api      API
	exec     *rpc.Executor
	sched    *scheduler.Scheduler
	chats    cache.Store[domain.Chat]
	stickers cache.Store[string]
	cfg      Config
	log      *slog.Logger

	sendExec    *rpc.Executor
	deleteExec  *rpc.Executor
	chatExec    *rpc.Executor
	userExec    *rpc.Executor
	resolveExec *rpc.Executor
	memberExec  *rpc.Executor
	stickerExec *rpc.Executor
	plainExec   *rpc.Executor
}

// Option configures a Client.
type Option func(*Client)

// WithChatCache sets the chat metadata cache.
func WithChatCache(c cache.Store[domain.Chat]) Option {
	return func(cl *Client) {
		if c != nil {
			cl.chats = c
		}
	}
}

// WithStickerCache sets the sticker title cache.
func WithStickerCache(c cache.Store[string]) Option {
	return func(cl *Client) {
		if c != nil {
			cl.stickers = c
		}
	}
}

// WithConfig sets client behaviour.
func WithConfig(cfg Config) Option {
	return func(cl *Client) { cl.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

// NewClient creates a client. exec carries the shared retry caps, pacing
// and observers; each operation family gets a copy with its own denial set.
// sched may be nil, in which case report messages are not deleted.
func NewClient(api API, exec *rpc.Executor, sched *scheduler.Scheduler, opts ...Option) *Client {
	if exec == nil {
		exec = rpc.NewExecutor()
	}
	c := &Client{
		api:      api,
		exec:     exec,
		sched:    sched,
		chats:    cache.NewMemory[domain.Chat](0, 0),
		stickers: cache.NewMemory[string](0, 0),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.DefaultGroupLink == "" {
		c.cfg.DefaultGroupLink = DefaultGroupLink
	}

	c.sendExec = exec.With(rpc.WithClassifier(Classifier(sendDenials...)))
	c.deleteExec = exec.With(rpc.WithClassifier(Classifier(deleteDenials...)))
	c.chatExec = exec.With(rpc.WithClassifier(Classifier(chatDenials...)))
	c.userExec = exec.With(rpc.WithClassifier(Classifier(userDenials...)))
	c.resolveExec = exec.With(rpc.WithClassifier(Classifier(resolveDenials...)))
	c.memberExec = exec.With(rpc.WithClassifier(Classifier(memberDenials...)))
	c.stickerExec = exec.With(rpc.WithClassifier(Classifier(stickerDenials...)))
	c.plainExec = exec.With(rpc.WithClassifier(Classifier()))

	if sched != nil {
		sched.SetDeleter(c)
	}
	return c
}

// markupError names the keyboard in the error so the single failure log
// shows what was rejected.
func markupError(err error, markup domain.Markup) error {
	if tgerr.Is(err, buttonDataInvalid) {
		return fmt.Errorf("invalid markup %v: %w", markup, err)
	}
	return err
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// SendMessage sends an HTML message without link preview.
func (c *Client) SendMessage(
	ctx context.Context,
	chat domain.ChatID,
	text string,
	replyTo domain.MessageID,
	markup domain.Markup,
) rpc.Outcome[domain.Message] {
	return c.sendMessage(ctx, c.sendExec, chat, text, replyTo, markup)
}

func (c *Client) sendMessage(
	ctx context.Context,
	exec *rpc.Executor,
	chat domain.ChatID,
	text string,
	replyTo domain.MessageID,
	markup domain.Markup,
) rpc.Outcome[domain.Message] {
	if strings.TrimSpace(text) == "" {
		return rpc.Failed[domain.Message](ErrEmptyText)
	}
	req := SendRequest{Chat: chat, Text: text, ReplyTo: replyTo, Markup: markup}
	return rpc.Execute(ctx, exec, rpc.NewOperation("messages.sendMessage", chat,
		func(ctx context.Context) (domain.Message, error) {
			msg, err := c.api.SendMessage(ctx, req)
			return msg, markupError(err, markup)
		}))
}

// SendDocument uploads a local file and sends it with an HTML caption.
func (c *Client) SendDocument(
	ctx context.Context,
	chat domain.ChatID,
	path, caption string,
	replyTo domain.MessageID,
	markup domain.Markup,
) rpc.Outcome[domain.Message] {
	req := SendRequest{Chat: chat, Text: caption, ReplyTo: replyTo, Markup: markup}
	return rpc.Execute(ctx, c.sendExec, rpc.NewOperation("messages.sendMedia", chat,
		func(ctx context.Context) (domain.Message, error) {
			msg, err := c.api.SendDocument(ctx, req, path)
			return msg, markupError(err, markup)
		}))
}

// SendReportMessage sends a message and deletes it after ttl. A ttl of zero
// uses the configured report TTL. Denials are reported as errors.
func (c *Client) SendReportMessage(
	ctx context.Context,
	chat domain.ChatID,
	text string,
	replyTo domain.MessageID,
	markup domain.Markup,
	ttl time.Duration,
) rpc.Outcome[domain.Message] {
	out := c.sendMessage(ctx, c.plainExec, chat, text, replyTo, markup)
	msg, ok := out.Get()
	if !ok {
		return out
	}

	if ttl <= 0 {
		ttl = c.cfg.ReportTTL
	}
	if c.sched == nil || ttl <= 0 {
		return out
	}
	if _, err := c.sched.ScheduleDeletion(ctx, chat, []domain.MessageID{msg.ID}, ttl); err != nil {
		c.log.Warn("Failed to schedule report deletion", "chat", chat, "message", msg.ID, "error", err)
	}
	return out
}

// DeleteMessages deletes messages in batches of rpc.BatchSize. A denied
// batch does not stop the others. The result is the number of messages
// deleted; it is Denied only if no batch succeeded and one was denied.
func (c *Client) DeleteMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) rpc.Outcome[int] {
	outcomes := rpc.ExecuteBatches(ctx, c.deleteExec, ids, rpc.BatchSize,
		func(batch []domain.MessageID) rpc.Operation[int] {
			return rpc.NewOperation("messages.deleteMessages", chat, func(ctx context.Context) (int, error) {
				return c.api.DeleteMessages(ctx, chat, batch)
			})
		})
	return rpc.Merge(outcomes, func(acc, n int) int { return acc + n })
}

// DeleteDeferred deletes messages for the scheduler.
func (c *Client) DeleteDeferred(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) error {
	out := c.DeleteMessages(ctx, chat, ids)
	if out.IsSuccess() {
		return nil
	}
	return out.Err
}

// GetMessages fetches messages in batches of rpc.BatchSize.
func (c *Client) GetMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) rpc.Outcome[[]domain.Message] {
	outcomes := rpc.ExecuteBatches(ctx, c.plainExec, ids, rpc.BatchSize,
		func(batch []domain.MessageID) rpc.Operation[[]domain.Message] {
			return rpc.NewOperation("messages.getMessages", chat, func(ctx context.Context) ([]domain.Message, error) {
				return c.api.GetMessages(ctx, chat, batch)
			})
		})
	return rpc.Merge(outcomes, func(acc, v []domain.Message) []domain.Message { return append(acc, v...) })
}

// -----------------------------------------------------------------------------
// Chats and users
// -----------------------------------------------------------------------------

// GetChat fetches chat metadata by id or username.
func (c *Client) GetChat(ctx context.Context, ref domain.PeerRef) rpc.Outcome[domain.Chat] {
	return rpc.Execute(ctx, c.chatExec, rpc.NewOperation("channels.getChannels", ref,
		func(ctx context.Context) (domain.Chat, error) {
			return c.api.GetChat(ctx, ref)
		}))
}

// GetAdmins lists the creator and administrators of a group.
func (c *Client) GetAdmins(ctx context.Context, chat domain.ChatID) rpc.Outcome[[]domain.Member] {
	return rpc.Execute(ctx, c.chatExec, rpc.NewOperation("channels.getParticipants", chat,
		func(ctx context.Context) ([]domain.Member, error) {
			return c.api.GetAdmins(ctx, chat)
		}))
}

// GetUsers fetches users by id or username.
func (c *Client) GetUsers(ctx context.Context, refs []domain.PeerRef) rpc.Outcome[[]domain.User] {
	target := make([]string, len(refs))
	for i, ref := range refs {
		target[i] = ref.String()
	}
	return rpc.Execute(ctx, c.userExec, rpc.NewOperation("users.getUsers", strings.Join(target, ","),
		func(ctx context.Context) ([]domain.User, error) {
			return c.api.GetUsers(ctx, refs)
		}))
}

// ResolvePeer resolves an id or username to an addressable peer.
func (c *Client) ResolvePeer(ctx context.Context, ref domain.PeerRef) rpc.Outcome[domain.Peer] {
	return rpc.Execute(ctx, c.resolveExec, rpc.NewOperation("contacts.resolvePeer", ref,
		func(ctx context.Context) (domain.Peer, error) {
			return c.api.ResolvePeer(ctx, ref)
		}))
}

// GetUserBio resolves the user and returns their normalised bio.
func (c *Client) GetUserBio(ctx context.Context, user domain.UserID, normal, printable bool) rpc.Outcome[string] {
	resolved := c.ResolvePeer(ctx, domain.PeerRef{ID: domain.ChatID(user)})
	peer, ok := resolved.Get()
	if !ok {
		return rpc.Outcome[string]{Kind: resolved.Kind, Err: resolved.Err}
	}

	out := rpc.Execute(ctx, c.plainExec, rpc.NewOperation("users.getFullUser", user,
		func(ctx context.Context) (string, error) {
			return c.api.GetUserBio(ctx, peer)
		}))
	return rpc.MapOutcome(out, func(bio string) string {
		return textutil.Normalize(bio, normal, printable)
	})
}

// GetGroupInfo returns the group's name and link, falling back to defaults
// when the chat cannot be fetched. Cached chats are always used; fetched
// chats are stored only when useCache is set.
func (c *Client) GetGroupInfo(ctx context.Context, chat domain.ChatID, useCache bool) domain.GroupInfo {
	info := domain.GroupInfo{Name: DefaultGroupName, Link: c.cfg.DefaultGroupLink}
	key := strconv.FormatInt(int64(chat), 10)

	cached, hit, err := c.chats.Get(ctx, key)
	if err != nil {
		c.log.Debug("Chat cache lookup failed", "chat", chat, "error", err)
	}
	metrics.CacheLookup("chat", hit)

	if !hit {
		fetched, ok := c.GetChat(ctx, domain.PeerRef{ID: chat}).Get()
		if !ok {
			return info
		}
		if useCache {
			if err := c.chats.Set(ctx, key, fetched); err != nil {
				c.log.Debug("Chat cache store failed", "chat", chat, "error", err)
			}
		}
		cached = fetched
	}

	if cached.Title != "" {
		info.Name = cached.Title
	}
	if cached.Username != "" {
		info.Link = "https://t.me/" + cached.Username
	}
	return info
}

// -----------------------------------------------------------------------------
// Membership
// -----------------------------------------------------------------------------

// RestrictMember limits what a member may do until the given time. A zero
// until restricts forever.
func (c *Client) RestrictMember(
	ctx context.Context,
	chat domain.ChatID,
	user domain.UserID,
	perms domain.Permissions,
	until time.Time,
) rpc.Outcome[struct{}] {
	return rpc.Execute(ctx, c.memberExec, rpc.NewCall("channels.editBanned", chat,
		func(ctx context.Context) error {
			return c.api.RestrictMember(ctx, chat, user, perms, until)
		}))
}

// KickMember removes a member from a group.
func (c *Client) KickMember(ctx context.Context, chat domain.ChatID, user domain.UserID) rpc.Outcome[struct{}] {
	return rpc.Execute(ctx, c.memberExec, rpc.NewCall("channels.kick", chat,
		func(ctx context.Context) error {
			return c.api.KickMember(ctx, chat, user)
		}))
}

// LeaveChat leaves a group, optionally deleting the history of a basic group.
func (c *Client) LeaveChat(ctx context.Context, chat domain.ChatID, deleteHistory bool) rpc.Outcome[struct{}] {
	return rpc.Execute(ctx, c.chatExec, rpc.NewCall("channels.leaveChannel", chat,
		func(ctx context.Context) error {
			return c.api.LeaveChat(ctx, chat, deleteHistory)
		}))
}

// -----------------------------------------------------------------------------
// Stickers and media
// -----------------------------------------------------------------------------

// GetStickerTitle returns the normalised title of a sticker set. With
// useCache a cached title is returned without a remote call. Fetched titles
// are always cached.
func (c *Client) GetStickerTitle(
	ctx context.Context,
	shortName string,
	normal, printable, useCache bool,
) rpc.Outcome[string] {
	if useCache {
		title, hit, err := c.stickers.Get(ctx, shortName)
		if err != nil {
			c.log.Debug("Sticker cache lookup failed", "set", shortName, "error", err)
		}
		metrics.CacheLookup("sticker_title", hit && title != "")
		if hit && title != "" {
			return rpc.Success(title)
		}
	}

	out := rpc.Execute(ctx, c.stickerExec, rpc.NewOperation("messages.getStickerSet", shortName,
		func(ctx context.Context) (string, error) {
			return c.api.GetStickerSetTitle(ctx, shortName)
		}))
	out = rpc.MapOutcome(out, func(title string) string {
		return textutil.Normalize(title, normal, printable)
	})

	if title, ok := out.Get(); ok {
		if err := c.stickers.Set(ctx, shortName, title); err != nil {
			c.log.Debug("Sticker cache store failed", "set", shortName, "error", err)
		}
	}
	return out
}

// DownloadMedia downloads a Bot API file id to path and returns the path.
func (c *Client) DownloadMedia(ctx context.Context, fileID, path string) rpc.Outcome[string] {
	return rpc.Execute(ctx, c.plainExec, rpc.NewOperation("upload.getFile", path,
		func(ctx context.Context) (string, error) {
			return c.api.DownloadMedia(ctx, fileID, path)
		}))
}

