package telegram

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gotd/td/fileid"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/html"
	"github.com/gotd/td/telegram/peers"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"

	"github.com/vietddude/floodguard/internal/core/domain"
)

var (
	// ErrNotSupergroup is returned for member operations on chats that are
	// not channels or supergroups.
	ErrNotSupergroup = errors.New("chat is not a supergroup")

	// ErrUnsupportedFileID is returned for file ids that do not point at a
	// downloadable location.
	ErrUnsupportedFileID = errors.New("file id has no downloadable location")

	// ErrNotUser is returned when a user reference resolves to a chat.
	ErrNotUser = errors.New("peer is not a user")

	// ErrStickerSetUnavailable is returned when Telegram answers a sticker
	// set lookup without the set itself.
	ErrStickerSetUnavailable = errors.New("sticker set unavailable")
)

// GotdAPI implements API on top of a gotd tg.Client.
type GotdAPI struct {
	raw        *tg.Client
	peers      *peers.Manager
	sender     *message.Sender
	uploader   *uploader.Uploader
	downloader *downloader.Downloader
}

var _ API = (*GotdAPI)(nil)

// NewGotdAPI creates the gotd-backed API.
func NewGotdAPI(raw *tg.Client) *GotdAPI {
	return &GotdAPI{
		raw:        raw,
		peers:      peers.Options{}.Build(raw),
		sender:     message.NewSender(raw),
		uploader:   uploader.NewUploader(raw),
		downloader: downloader.NewDownloader(),
	}
}

// -----------------------------------------------------------------------------
// Peer resolution
// -----------------------------------------------------------------------------

func (g *GotdAPI) resolve(ctx context.Context, ref domain.PeerRef) (peers.Peer, error) {
	if ref.Username != "" {
		return g.peers.ResolveDomain(ctx, ref.Username)
	}
	return g.resolveID(ctx, ref.ID)
}

func (g *GotdAPI) resolveID(ctx context.Context, id domain.ChatID) (peers.Peer, error) {
	switch id.Kind() {
	case domain.PeerChannel:
		ch, err := g.peers.ResolveChannelID(ctx, id.RawID())
		if err != nil {
			return nil, err
		}
		return ch, nil
	case domain.PeerChat:
		chat, err := g.peers.ResolveChatID(ctx, id.RawID())
		if err != nil {
			return nil, err
		}
		return chat, nil
	default:
		user, err := g.peers.ResolveUserID(ctx, id.RawID())
		if err != nil {
			return nil, err
		}
		return user, nil
	}
}

func (g *GotdAPI) channel(ctx context.Context, id domain.ChatID) (peers.Channel, error) {
	if id.Kind() != domain.PeerChannel {
		return peers.Channel{}, fmt.Errorf("%w: %d", ErrNotSupergroup, id)
	}
	return g.peers.ResolveChannelID(ctx, id.RawID())
}

func (g *GotdAPI) user(ctx context.Context, id domain.UserID) (peers.User, error) {
	return g.peers.ResolveUserID(ctx, int64(id))
}

func peerKind(p peers.Peer) domain.PeerKind {
	switch p.(type) {
	case peers.Channel:
		return domain.PeerChannel
	case peers.Chat:
		return domain.PeerChat
	default:
		return domain.PeerUser
	}
}

func accessHash(p tg.InputPeerClass) int64 {
	switch p := p.(type) {
	case *tg.InputPeerUser:
		return p.AccessHash
	case *tg.InputPeerChannel:
		return p.AccessHash
	default:
		return 0
	}
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

func inlineMarkup(m domain.Markup) tg.ReplyMarkupClass {
	if len(m) == 0 {
		return nil
	}
	rows := make([]tg.KeyboardButtonRow, 0, len(m))
	for _, row := range m {
		buttons := make([]tg.KeyboardButtonClass, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, &tg.KeyboardButtonURL{Text: b.Text, URL: b.URL})
				continue
			}
			buttons = append(buttons, &tg.KeyboardButtonCallback{Text: b.Text, Data: []byte(b.Data)})
		}
		rows = append(rows, tg.KeyboardButtonRow{Buttons: buttons})
	}
	return &tg.ReplyInlineMarkup{Rows: rows}
}

func (g *GotdAPI) builder(ctx context.Context, req SendRequest) (*message.Builder, error) {
	p, err := g.resolveID(ctx, req.Chat)
	if err != nil {
		return nil, err
	}
	b := g.sender.To(p.InputPeer()).NoWebpage()
	if req.ReplyTo != 0 {
		b = b.Reply(int(req.ReplyTo))
	}
	if m := inlineMarkup(req.Markup); m != nil {
		b = b.Markup(m)
	}
	return b, nil
}

func (g *GotdAPI) SendMessage(ctx context.Context, req SendRequest) (domain.Message, error) {
	b, err := g.builder(ctx, req)
	if err != nil {
		return domain.Message{}, err
	}
	upd, err := b.StyledText(ctx, html.String(nil, req.Text))
	if err != nil {
		return domain.Message{}, err
	}
	return sentMessage(upd, req.Chat, req.Text)
}

func (g *GotdAPI) SendDocument(ctx context.Context, req SendRequest, path string) (domain.Message, error) {
	b, err := g.builder(ctx, req)
	if err != nil {
		return domain.Message{}, err
	}
	file, err := g.uploader.FromPath(ctx, path)
	if err != nil {
		return domain.Message{}, fmt.Errorf("upload %s: %w", path, err)
	}
	doc := message.UploadedDocument(file, html.String(nil, req.Text)).Filename(filepath.Base(path))
	upd, err := b.Media(ctx, doc)
	if err != nil {
		return domain.Message{}, err
	}
	return sentMessage(upd, req.Chat, req.Text)
}

func sentMessage(upd tg.UpdatesClass, chat domain.ChatID, text string) (domain.Message, error) {
	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return domain.Message{ID: domain.MessageID(u.ID), ChatID: chat, Text: text}, nil
	case *tg.Updates:
		return messageFromUpdates(u.Updates, chat)
	case *tg.UpdatesCombined:
		return messageFromUpdates(u.Updates, chat)
	}
	return domain.Message{}, fmt.Errorf("unexpected updates type %T", upd)
}

func messageFromUpdates(updates []tg.UpdateClass, chat domain.ChatID) (domain.Message, error) {
	var fallback int
	for _, u := range updates {
		switch u := u.(type) {
		case *tg.UpdateNewMessage:
			if m, ok := u.Message.(*tg.Message); ok {
				return convertMessage(m, chat), nil
			}
		case *tg.UpdateNewChannelMessage:
			if m, ok := u.Message.(*tg.Message); ok {
				return convertMessage(m, chat), nil
			}
		case *tg.UpdateMessageID:
			fallback = u.ID
		}
	}
	if fallback != 0 {
		return domain.Message{ID: domain.MessageID(fallback), ChatID: chat}, nil
	}
	return domain.Message{}, errors.New("sent message not found in updates")
}

func convertMessage(m *tg.Message, chat domain.ChatID) domain.Message {
	msg := domain.Message{
		ID:     domain.MessageID(m.ID),
		ChatID: chat,
		Text:   m.Message,
	}
	if from, ok := m.FromID.(*tg.PeerUser); ok {
		msg.SenderID = from.UserID
	}
	return msg
}

func inputMessages(ids []domain.MessageID) []tg.InputMessageClass {
	out := make([]tg.InputMessageClass, len(ids))
	for i, id := range ids {
		out[i] = &tg.InputMessageID{ID: int(id)}
	}
	return out
}

func rawIDs(ids []domain.MessageID) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}

func (g *GotdAPI) DeleteMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) (int, error) {
	if chat.Kind() == domain.PeerChannel {
		ch, err := g.channel(ctx, chat)
		if err != nil {
			return 0, err
		}
		affected, err := g.raw.ChannelsDeleteMessages(ctx, &tg.ChannelsDeleteMessagesRequest{
			Channel: ch.InputChannel(),
			ID:      rawIDs(ids),
		})
		if err != nil {
			return 0, err
		}
		return affected.PtsCount, nil
	}

	affected, err := g.raw.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     rawIDs(ids),
	})
	if err != nil {
		return 0, err
	}
	return affected.PtsCount, nil
}

func (g *GotdAPI) GetMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) ([]domain.Message, error) {
	var (
		res tg.MessagesMessagesClass
		err error
	)
	if chat.Kind() == domain.PeerChannel {
		ch, cerr := g.channel(ctx, chat)
		if cerr != nil {
			return nil, cerr
		}
		res, err = g.raw.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: ch.InputChannel(),
			ID:      inputMessages(ids),
		})
	} else {
		res, err = g.raw.MessagesGetMessages(ctx, inputMessages(ids))
	}
	if err != nil {
		return nil, err
	}

	var list []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesMessages:
		list = r.Messages
	case *tg.MessagesMessagesSlice:
		list = r.Messages
	case *tg.MessagesChannelMessages:
		list = r.Messages
	default:
		return nil, fmt.Errorf("unexpected messages type %T", res)
	}

	out := make([]domain.Message, 0, len(list))
	for _, m := range list {
		switch m := m.(type) {
		case *tg.Message:
			out = append(out, convertMessage(m, chat))
		case *tg.MessageEmpty:
			out = append(out, domain.Message{ID: domain.MessageID(m.ID), ChatID: chat, Empty: true})
		case *tg.MessageService:
			out = append(out, domain.Message{ID: domain.MessageID(m.ID), ChatID: chat})
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Chats and users
// -----------------------------------------------------------------------------

func (g *GotdAPI) GetChat(ctx context.Context, ref domain.PeerRef) (domain.Chat, error) {
	p, err := g.resolve(ctx, ref)
	if err != nil {
		return domain.Chat{}, err
	}
	chat := domain.Chat{
		ID:    domain.ChatID(p.TDLibPeerID()),
		Kind:  peerKind(p),
		Title: p.VisibleName(),
	}
	if username, ok := p.Username(); ok {
		chat.Username = username
	}
	return chat, nil
}

func convertUser(u *tg.User) domain.User {
	return domain.User{
		ID:        domain.UserID(u.ID),
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Bot:       u.Bot,
		Deleted:   u.Deleted,
	}
}

func usersByID(list []tg.UserClass) map[int64]domain.User {
	out := make(map[int64]domain.User, len(list))
	for _, u := range list {
		if user, ok := u.(*tg.User); ok {
			out[user.ID] = convertUser(user)
		}
	}
	return out
}

func (g *GotdAPI) GetAdmins(ctx context.Context, chat domain.ChatID) ([]domain.Member, error) {
	switch chat.Kind() {
	case domain.PeerChannel:
		ch, err := g.channel(ctx, chat)
		if err != nil {
			return nil, err
		}
		res, err := g.raw.ChannelsGetParticipants(ctx, &tg.ChannelsGetParticipantsRequest{
			Channel: ch.InputChannel(),
			Filter:  &tg.ChannelParticipantsAdmins{},
			Limit:   200,
		})
		if err != nil {
			return nil, err
		}
		list, ok := res.(*tg.ChannelsChannelParticipants)
		if !ok {
			return nil, nil
		}
		users := usersByID(list.Users)
		members := make([]domain.Member, 0, len(list.Participants))
		for _, p := range list.Participants {
			switch p := p.(type) {
			case *tg.ChannelParticipantCreator:
				members = append(members, domain.Member{User: users[p.UserID], Role: domain.RoleCreator})
			case *tg.ChannelParticipantAdmin:
				members = append(members, domain.Member{User: users[p.UserID], Role: domain.RoleAdministrator})
			}
		}
		return members, nil

	case domain.PeerChat:
		full, err := g.raw.MessagesGetFullChat(ctx, chat.RawID())
		if err != nil {
			return nil, err
		}
		info, ok := full.FullChat.(*tg.ChatFull)
		if !ok {
			return nil, nil
		}
		parts, ok := info.Participants.(*tg.ChatParticipants)
		if !ok {
			return nil, nil
		}
		users := usersByID(full.Users)
		members := make([]domain.Member, 0, len(parts.Participants))
		for _, p := range parts.Participants {
			switch p := p.(type) {
			case *tg.ChatParticipantCreator:
				members = append(members, domain.Member{User: users[p.UserID], Role: domain.RoleCreator})
			case *tg.ChatParticipantAdmin:
				members = append(members, domain.Member{User: users[p.UserID], Role: domain.RoleAdministrator})
			}
		}
		return members, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrNotSupergroup, chat)
}

func (g *GotdAPI) GetUsers(ctx context.Context, refs []domain.PeerRef) ([]domain.User, error) {
	inputs := make([]tg.InputUserClass, 0, len(refs))
	for _, ref := range refs {
		p, err := g.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		u, ok := p.(peers.User)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotUser, ref)
		}
		inputs = append(inputs, u.InputUser())
	}

	list, err := g.raw.UsersGetUsers(ctx, inputs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(list))
	for _, u := range list {
		if user, ok := u.(*tg.User); ok {
			out = append(out, convertUser(user))
		}
	}
	return out, nil
}

func (g *GotdAPI) ResolvePeer(ctx context.Context, ref domain.PeerRef) (domain.Peer, error) {
	p, err := g.resolve(ctx, ref)
	if err != nil {
		return domain.Peer{}, err
	}
	peer := domain.Peer{
		ID:         domain.ChatID(p.TDLibPeerID()),
		Kind:       peerKind(p),
		AccessHash: accessHash(p.InputPeer()),
	}
	if username, ok := p.Username(); ok {
		peer.Username = username
	}
	return peer, nil
}

func (g *GotdAPI) GetUserBio(ctx context.Context, user domain.Peer) (string, error) {
	if user.Kind != domain.PeerUser {
		return "", fmt.Errorf("%w: %d", ErrNotUser, user.ID)
	}
	full, err := g.raw.UsersGetFullUser(ctx, &tg.InputUser{
		UserID:     user.ID.RawID(),
		AccessHash: user.AccessHash,
	})
	if err != nil {
		return "", err
	}
	return full.FullUser.About, nil
}

// -----------------------------------------------------------------------------
// Membership
// -----------------------------------------------------------------------------

func bannedRights(perms domain.Permissions, until time.Time) tg.ChatBannedRights {
	rights := tg.ChatBannedRights{
		SendMessages: !perms.SendMessages,
		SendMedia:    !perms.SendMedia,
		SendStickers: !perms.SendStickers,
		SendGifs:     !perms.SendStickers,
		SendGames:    !perms.SendStickers,
		SendInline:   !perms.SendStickers,
		SendPolls:    !perms.SendPolls,
		EmbedLinks:   !perms.EmbedLinks,
		InviteUsers:  !perms.InviteUsers,
		PinMessages:  !perms.PinMessages,
		ChangeInfo:   !perms.ChangeInfo,
	}
	if !until.IsZero() {
		rights.UntilDate = int(until.Unix())
	}
	return rights
}

func (g *GotdAPI) RestrictMember(
	ctx context.Context,
	chat domain.ChatID,
	user domain.UserID,
	perms domain.Permissions,
	until time.Time,
) error {
	ch, err := g.channel(ctx, chat)
	if err != nil {
		return err
	}
	u, err := g.user(ctx, user)
	if err != nil {
		return err
	}
	_, err = g.raw.ChannelsEditBanned(ctx, &tg.ChannelsEditBannedRequest{
		Channel:      ch.InputChannel(),
		Participant:  u.InputPeer(),
		BannedRights: bannedRights(perms, until),
	})
	return err
}

func (g *GotdAPI) KickMember(ctx context.Context, chat domain.ChatID, user domain.UserID) error {
	u, err := g.user(ctx, user)
	if err != nil {
		return err
	}

	if chat.Kind() == domain.PeerChat {
		_, err = g.raw.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
			ChatID: chat.RawID(),
			UserID: u.InputUser(),
		})
		return err
	}

	ch, err := g.channel(ctx, chat)
	if err != nil {
		return err
	}
	_, err = g.raw.ChannelsEditBanned(ctx, &tg.ChannelsEditBannedRequest{
		Channel:      ch.InputChannel(),
		Participant:  u.InputPeer(),
		BannedRights: tg.ChatBannedRights{ViewMessages: true},
	})
	return err
}

func (g *GotdAPI) LeaveChat(ctx context.Context, chat domain.ChatID, deleteHistory bool) error {
	if chat.Kind() == domain.PeerChat {
		if _, err := g.raw.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
			ChatID: chat.RawID(),
			UserID: &tg.InputUserSelf{},
		}); err != nil {
			return err
		}
		if deleteHistory {
			_, err := g.raw.MessagesDeleteHistory(ctx, &tg.MessagesDeleteHistoryRequest{
				Peer: &tg.InputPeerChat{ChatID: chat.RawID()},
			})
			return err
		}
		return nil
	}

	ch, err := g.channel(ctx, chat)
	if err != nil {
		return err
	}
	_, err = g.raw.ChannelsLeaveChannel(ctx, ch.InputChannel())
	return err
}

// -----------------------------------------------------------------------------
// Stickers and media
// -----------------------------------------------------------------------------

func (g *GotdAPI) GetStickerSetTitle(ctx context.Context, shortName string) (string, error) {
	res, err := g.raw.MessagesGetStickerSet(ctx, &tg.MessagesGetStickerSetRequest{
		Stickerset: &tg.InputStickerSetShortName{ShortName: shortName},
	})
	if err != nil {
		return "", err
	}
	set, ok := res.(*tg.MessagesStickerSet)
	if !ok {
		return "", fmt.Errorf("%w: %s: got %T", ErrStickerSetUnavailable, shortName, res)
	}
	return set.Set.Title, nil
}

func (g *GotdAPI) DownloadMedia(ctx context.Context, fileID, path string) (string, error) {
	id, err := fileid.DecodeFileID(fileID)
	if err != nil {
		return "", fmt.Errorf("decode file id: %w", err)
	}
	loc, ok := id.AsInputFileLocation()
	if !ok {
		return "", ErrUnsupportedFileID
	}
	if _, err := g.downloader.Download(g.raw, loc).ToPath(ctx, path); err != nil {
		return "", err
	}
	return path, nil
}
