package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ChatID is a Bot API style peer identifier: positive for users, negative for
// basic groups and -100 prefixed for channels and supergroups.
type ChatID int64

// UserID identifies a user.
type UserID int64

// MessageID identifies a message inside a chat.
type MessageID int

type PeerKind string

const (
	PeerUser    PeerKind = "user"
	PeerChat    PeerKind = "chat"
	PeerChannel PeerKind = "channel"
)

const channelIDOffset = 1000000000000

// Kind reports which kind of peer the id refers to.
func (id ChatID) Kind() PeerKind {
	switch {
	case id <= -channelIDOffset:
		return PeerChannel
	case id < 0:
		return PeerChat
	default:
		return PeerUser
	}
}

// RawID strips the Bot API prefix and returns the MTProto id.
func (id ChatID) RawID() int64 {
	switch id.Kind() {
	case PeerChannel:
		return -int64(id) - channelIDOffset
	case PeerChat:
		return -int64(id)
	default:
		return int64(id)
	}
}

// ChannelChatID builds the Bot API id of a channel.
func ChannelChatID(raw int64) ChatID {
	return ChatID(-raw - channelIDOffset)
}

// BasicChatID builds the Bot API id of a basic group.
func BasicChatID(raw int64) ChatID {
	return ChatID(-raw)
}

// Chat holds the chat fields the moderation layer reads.
type Chat struct {
	ID       ChatID   `json:"id"`
	Kind     PeerKind `json:"kind"`
	Title    string   `json:"title"`
	Username string   `json:"username,omitempty"`
}

// User holds the user fields the moderation layer reads.
type User struct {
	ID        UserID `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

type MemberRole string

const (
	RoleCreator       MemberRole = "creator"
	RoleAdministrator MemberRole = "administrator"
)

// Member is a chat participant returned by admin listings.
type Member struct {
	User User       `json:"user"`
	Role MemberRole `json:"role"`
}

// Message is a fetched message.
type Message struct {
	ID       MessageID `json:"id"`
	ChatID   ChatID    `json:"chat_id"`
	SenderID int64     `json:"sender_id,omitempty"`
	Text     string    `json:"text,omitempty"`
	Empty    bool      `json:"empty,omitempty"`
}

// Permissions lists what a restricted member may still do.
type Permissions struct {
	SendMessages bool
	SendMedia    bool
	SendStickers bool
	SendPolls    bool
	EmbedLinks   bool
	InviteUsers  bool
	PinMessages  bool
	ChangeInfo   bool
}

// Button is an inline keyboard callback button.
type Button struct {
	Text string
	Data string
	URL  string
}

// Markup is an inline keyboard, one slice per row.
type Markup [][]Button

// GroupInfo is the display name and public link of a group.
type GroupInfo struct {
	Name string
	Link string
}

// Peer is a resolved peer that further calls can address directly.
type Peer struct {
	ID         ChatID   `json:"id"`
	Kind       PeerKind `json:"kind"`
	AccessHash int64    `json:"access_hash,omitempty"`
	Username   string   `json:"username,omitempty"`
}

// PeerRef references a peer either by id or by @username.
type PeerRef struct {
	ID       ChatID
	Username string
}

// ParsePeerRef accepts "123", "-100123", "@name" or "name".
func ParsePeerRef(s string) (PeerRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return PeerRef{}, fmt.Errorf("empty peer reference")
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return PeerRef{ID: ChatID(id)}, nil
	}
	name := strings.TrimPrefix(s, "@")
	if name == "" {
		return PeerRef{}, fmt.Errorf("invalid peer reference: %q", s)
	}
	return PeerRef{Username: name}, nil
}

func (r PeerRef) String() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	return strconv.FormatInt(int64(r.ID), 10)
}
