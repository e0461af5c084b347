// Package telegram wraps the MTProto client with flood-aware, outcome
// returning operations for the moderation layer.
package telegram

import (
	"context"
	"time"

	"github.com/vietddude/floodguard/internal/core/domain"
)

// SendRequest describes an outgoing message.
type SendRequest struct {
	Chat    domain.ChatID
	Text    string
	ReplyTo domain.MessageID
	Markup  domain.Markup
}

// API is the raw platform surface. Each method performs exactly one remote
// call (plus peer resolution) and returns platform errors untouched; flood
// waits and denials are classified by Client.
type API interface {
	SendMessage(ctx context.Context, req SendRequest) (domain.Message, error)
	SendDocument(ctx context.Context, req SendRequest, path string) (domain.Message, error)
	DeleteMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) (int, error)
	GetMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) ([]domain.Message, error)
	GetChat(ctx context.Context, ref domain.PeerRef) (domain.Chat, error)
	GetAdmins(ctx context.Context, chat domain.ChatID) ([]domain.Member, error)
	GetUsers(ctx context.Context, refs []domain.PeerRef) ([]domain.User, error)
	ResolvePeer(ctx context.Context, ref domain.PeerRef) (domain.Peer, error)
	RestrictMember(ctx context.Context, chat domain.ChatID, user domain.UserID, perms domain.Permissions, until time.Time) error
	KickMember(ctx context.Context, chat domain.ChatID, user domain.UserID) error
	LeaveChat(ctx context.Context, chat domain.ChatID, deleteHistory bool) error
	GetUserBio(ctx context.Context, user domain.Peer) (string, error)
	GetStickerSetTitle(ctx context.Context, shortName string) (string, error)
	DownloadMedia(ctx context.Context, fileID, path string) (string, error)
}
