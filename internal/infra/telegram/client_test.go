package telegram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/floodguard/internal/core/domain"
	"github.com/vietddude/floodguard/internal/infra/rpc"
	"github.com/vietddude/floodguard/internal/scheduler"
)

// fakeAPI scripts API responses. Unset hooks fail the call.
type fakeAPI struct {
	mu    sync.Mutex
	calls map[string]int

	sendMessage    func(req SendRequest) (domain.Message, error)
	sendDocument   func(req SendRequest, path string) (domain.Message, error)
	deleteMessages func(chat domain.ChatID, ids []domain.MessageID) (int, error)
	getMessages    func(chat domain.ChatID, ids []domain.MessageID) ([]domain.Message, error)
	getChat        func(ref domain.PeerRef) (domain.Chat, error)
	getAdmins      func(chat domain.ChatID) ([]domain.Member, error)
	getUsers       func(refs []domain.PeerRef) ([]domain.User, error)
	resolvePeer    func(ref domain.PeerRef) (domain.Peer, error)
	restrict       func(chat domain.ChatID, user domain.UserID) error
	kick           func(chat domain.ChatID, user domain.UserID) error
	leave          func(chat domain.ChatID, deleteHistory bool) error
	userBio        func(user domain.Peer) (string, error)
	stickerTitle   func(shortName string) (string, error)
	download       func(fileID, path string) (string, error)
}

var errNotScripted = errors.New("not scripted")

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) SendMessage(ctx context.Context, req SendRequest) (domain.Message, error) {
	f.hit("SendMessage")
	if f.sendMessage == nil {
		return domain.Message{}, errNotScripted
	}
	return f.sendMessage(req)
}

func (f *fakeAPI) SendDocument(ctx context.Context, req SendRequest, path string) (domain.Message, error) {
	f.hit("SendDocument")
	if f.sendDocument == nil {
		return domain.Message{}, errNotScripted
	}
	return f.sendDocument(req, path)
}

func (f *fakeAPI) DeleteMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) (int, error) {
	f.hit("DeleteMessages")
	if f.deleteMessages == nil {
		return 0, errNotScripted
	}
	return f.deleteMessages(chat, ids)
}

func (f *fakeAPI) GetMessages(ctx context.Context, chat domain.ChatID, ids []domain.MessageID) ([]domain.Message, error) {
	f.hit("GetMessages")
	if f.getMessages == nil {
		return nil, errNotScripted
	}
	return f.getMessages(chat, ids)
}

func (f *fakeAPI) GetChat(ctx context.Context, ref domain.PeerRef) (domain.Chat, error) {
	f.hit("GetChat")
	if f.getChat == nil {
		return domain.Chat{}, errNotScripted
	}
	return f.getChat(ref)
}

func (f *fakeAPI) GetAdmins(ctx context.Context, chat domain.ChatID) ([]domain.Member, error) {
	f.hit("GetAdmins")
	if f.getAdmins == nil {
		return nil, errNotScripted
	}
	return f.getAdmins(chat)
}

func (f *fakeAPI) GetUsers(ctx context.Context, refs []domain.PeerRef) ([]domain.User, error) {
	f.hit("GetUsers")
	if f.getUsers == nil {
		return nil, errNotScripted
	}
	return f.getUsers(refs)
}

func (f *fakeAPI) ResolvePeer(ctx context.Context, ref domain.PeerRef) (domain.Peer, error) {
	f.hit("ResolvePeer")
	if f.resolvePeer == nil {
		return domain.Peer{}, errNotScripted
	}
	return f.resolvePeer(ref)
}

func (f *fakeAPI) RestrictMember(
	ctx context.Context,
	chat domain.ChatID,
	user domain.UserID,
	perms domain.Permissions,
	until time.Time,
) error {
	f.hit("RestrictMember")
	if f.restrict == nil {
		return errNotScripted
	}
	return f.restrict(chat, user)
}

func (f *fakeAPI) KickMember(ctx context.Context, chat domain.ChatID, user domain.UserID) error {
	f.hit("KickMember")
	if f.kick == nil {
		return errNotScripted
	}
	return f.kick(chat, user)
}

func (f *fakeAPI) LeaveChat(ctx context.Context, chat domain.ChatID, deleteHistory bool) error {
	f.hit("LeaveChat")
	if f.leave == nil {
		return errNotScripted
	}
	return f.leave(chat, deleteHistory)
}

func (f *fakeAPI) GetUserBio(ctx context.Context, user domain.Peer) (string, error) {
	f.hit("GetUserBio")
	if f.userBio == nil {
		return "", errNotScripted
	}
	return f.userBio(user)
}

func (f *fakeAPI) GetStickerSetTitle(ctx context.Context, shortName string) (string, error) {
	f.hit("GetStickerSetTitle")
	if f.stickerTitle == nil {
		return "", errNotScripted
	}
	return f.stickerTitle(shortName)
}

func (f *fakeAPI) DownloadMedia(ctx context.Context, fileID, path string) (string, error) {
	f.hit("DownloadMedia")
	if f.download == nil {
		return "", errNotScripted
	}
	return f.download(fileID, path)
}

type testEnv struct {
	api    *fakeAPI
	client *Client
	logs   *bytes.Buffer
	slept  *[]time.Duration
}

func newTestClient(t *testing.T, api *fakeAPI, sched *scheduler.Scheduler, opts ...Option) testEnv {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var mu sync.Mutex
	slept := []time.Duration{}
	exec := rpc.NewExecutor(
		rpc.WithLogger(logger),
		rpc.WithSleeper(func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			slept = append(slept, d)
			mu.Unlock()
			return nil
		}),
	)
	opts = append([]Option{WithLogger(logger)}, opts...)
	return testEnv{
		api:    api,
		client: NewClient(api, exec, sched, opts...),
		logs:   logs,
		slept:  &slept,
	}
}

const testChat domain.ChatID = -1001234567890

func TestSendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("blank text is an error without a call", func(t *testing.T) {
		env := newTestClient(t, &fakeAPI{}, nil)
		out := env.client.SendMessage(ctx, testChat, "  \n ", 0, nil)
		assert.True(t, out.IsError())
		assert.ErrorIs(t, out.Err, ErrEmptyText)
		assert.Equal(t, 0, env.api.count("SendMessage"))
	})

	t.Run("flood wait then success", func(t *testing.T) {
		calls := 0
		api := &fakeAPI{sendMessage: func(req SendRequest) (domain.Message, error) {
			calls++
			if calls < 3 {
				return domain.Message{}, tgerr.New(420, "FLOOD_WAIT_2")
			}
			return domain.Message{ID: 77, ChatID: req.Chat, Text: req.Text}, nil
		}}
		env := newTestClient(t, api, nil)

		out := env.client.SendMessage(ctx, testChat, "<b>warning</b>", 5, nil)
		msg, ok := out.Get()
		require.True(t, ok)
		assert.Equal(t, domain.MessageID(77), msg.ID)
		assert.Equal(t, 3, api.count("SendMessage"))
		assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *env.slept)
	})

	t.Run("admin required is denied", func(t *testing.T) {
		api := &fakeAPI{sendMessage: func(SendRequest) (domain.Message, error) {
			return domain.Message{}, tgerr.New(403, "CHAT_ADMIN_REQUIRED")
		}}
		env := newTestClient(t, api, nil)

		out := env.client.SendMessage(ctx, testChat, "hi", 0, nil)
		assert.True(t, out.IsDenied())
		assert.Equal(t, 1, api.count("SendMessage"))
	})

	t.Run("invalid markup is logged once as error", func(t *testing.T) {
		api := &fakeAPI{sendMessage: func(SendRequest) (domain.Message, error) {
			return domain.Message{}, tgerr.New(400, "BUTTON_DATA_INVALID")
		}}
		env := newTestClient(t, api, nil)

		markup := domain.Markup{{{Text: "Unban", Data: "unban:42"}}}
		out := env.client.SendMessage(ctx, testChat, "hi", 0, markup)
		assert.True(t, out.IsError())
		assert.Equal(t, 1, bytes.Count(env.logs.Bytes(), []byte("Operation failed")))
		assert.Contains(t, env.logs.String(), "invalid markup")
	})
}

func TestSendDocument(t *testing.T) {
	api := &fakeAPI{sendDocument: func(req SendRequest, path string) (domain.Message, error) {
		return domain.Message{ID: 9, ChatID: req.Chat, Text: req.Text}, nil
	}}
	env := newTestClient(t, api, nil)

	out := env.client.SendDocument(context.Background(), testChat, "/tmp/report.txt", "report", 0, nil)
	msg, ok := out.Get()
	require.True(t, ok)
	assert.Equal(t, "report", msg.Text)
}

func TestSendReportMessage(t *testing.T) {
	ctx := context.Background()

	deleted := make(chan []domain.MessageID, 1)
	api := &fakeAPI{
		sendMessage: func(req SendRequest) (domain.Message, error) {
			return domain.Message{ID: 501, ChatID: req.Chat}, nil
		},
		deleteMessages: func(chat domain.ChatID, ids []domain.MessageID) (int, error) {
			deleted <- ids
			return len(ids), nil
		},
	}
	sched := scheduler.New(nil, scheduler.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	defer sched.Stop(ctx)
	env := newTestClient(t, api, sched)

	out := env.client.SendReportMessage(ctx, testChat, "user banned", 0, nil, 10*time.Millisecond)
	require.True(t, out.IsSuccess())

	select {
	case ids := <-deleted:
		assert.Equal(t, []domain.MessageID{501}, ids)
	case <-time.After(2 * time.Second):
		t.Fatal("report message was not deleted")
	}
}

func TestSendReportMessage_NoDenialSet(t *testing.T) {
	api := &fakeAPI{sendMessage: func(SendRequest) (domain.Message, error) {
		return domain.Message{}, tgerr.New(403, "CHAT_ADMIN_REQUIRED")
	}}
	env := newTestClient(t, api, nil)

	out := env.client.SendReportMessage(context.Background(), testChat, "x", 0, nil, time.Minute)
	assert.True(t, out.IsError())
}

func TestDeleteMessages(t *testing.T) {
	ctx := context.Background()
	ids := make([]domain.MessageID, 250)
	for i := range ids {
		ids[i] = domain.MessageID(i + 1)
	}

	t.Run("denied batch does not stop the rest", func(t *testing.T) {
		var sizes []int
		api := &fakeAPI{deleteMessages: func(chat domain.ChatID, batch []domain.MessageID) (int, error) {
			sizes = append(sizes, len(batch))
			if batch[0] == 101 {
				return 0, tgerr.New(403, "MESSAGE_DELETE_FORBIDDEN")
			}
			return len(batch), nil
		}}
		env := newTestClient(t, api, nil)

		out := env.client.DeleteMessages(ctx, testChat, ids)
		n, ok := out.Get()
		require.True(t, ok)
		assert.Equal(t, 150, n)
		assert.Equal(t, []int{100, 100, 50}, sizes)
	})

	t.Run("all denied", func(t *testing.T) {
		api := &fakeAPI{deleteMessages: func(domain.ChatID, []domain.MessageID) (int, error) {
			return 0, tgerr.New(403, "MESSAGE_DELETE_FORBIDDEN")
		}}
		env := newTestClient(t, api, nil)

		out := env.client.DeleteMessages(ctx, testChat, ids[:10])
		assert.True(t, out.IsDenied())
		assert.Error(t, env.client.DeleteDeferred(ctx, testChat, ids[:10]))
	})
}

func TestGetMessages(t *testing.T) {
	ids := make([]domain.MessageID, 120)
	for i := range ids {
		ids[i] = domain.MessageID(i + 1)
	}
	api := &fakeAPI{getMessages: func(chat domain.ChatID, batch []domain.MessageID) ([]domain.Message, error) {
		out := make([]domain.Message, len(batch))
		for i, id := range batch {
			out[i] = domain.Message{ID: id, ChatID: chat}
		}
		return out, nil
	}}
	env := newTestClient(t, api, nil)

	msgs, ok := env.client.GetMessages(context.Background(), testChat, ids).Get()
	require.True(t, ok)
	assert.Len(t, msgs, 120)
	assert.Equal(t, 2, api.count("GetMessages"))
}

func TestChatDenials(t *testing.T) {
	ctx := context.Background()
	private := tgerr.New(400, "CHANNEL_PRIVATE")
	api := &fakeAPI{
		getChat:   func(domain.PeerRef) (domain.Chat, error) { return domain.Chat{}, private },
		getAdmins: func(domain.ChatID) ([]domain.Member, error) { return nil, private },
		leave:     func(domain.ChatID, bool) error { return private },
	}
	env := newTestClient(t, api, nil)

	assert.True(t, env.client.GetChat(ctx, domain.PeerRef{ID: testChat}).IsDenied())
	assert.True(t, env.client.GetAdmins(ctx, testChat).IsDenied())
	assert.True(t, env.client.LeaveChat(ctx, testChat, false).IsDenied())
}

func TestGetUsersAndResolve(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		getUsers: func(refs []domain.PeerRef) ([]domain.User, error) {
			return nil, tgerr.New(400, "PEER_ID_INVALID")
		},
		resolvePeer: func(ref domain.PeerRef) (domain.Peer, error) {
			return domain.Peer{}, tgerr.New(400, "USERNAME_NOT_OCCUPIED")
		},
	}
	env := newTestClient(t, api, nil)

	assert.True(t, env.client.GetUsers(ctx, []domain.PeerRef{{ID: 1}, {Username: "x"}}).IsDenied())
	assert.True(t, env.client.ResolvePeer(ctx, domain.PeerRef{Username: "nobody"}).IsDenied())
}

func TestMemberOperations(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		restrict: func(domain.ChatID, domain.UserID) error { return nil },
		kick:     func(domain.ChatID, domain.UserID) error { return tgerr.New(400, "USER_NOT_PARTICIPANT") },
	}
	env := newTestClient(t, api, nil)

	assert.True(t, env.client.RestrictMember(ctx, testChat, 42, domain.Permissions{}, time.Time{}).IsSuccess())
	assert.True(t, env.client.KickMember(ctx, testChat, 42).IsDenied())
}

func TestGetUserBio(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves then fetches", func(t *testing.T) {
		api := &fakeAPI{
			resolvePeer: func(ref domain.PeerRef) (domain.Peer, error) {
				return domain.Peer{ID: ref.ID, Kind: domain.PeerUser, AccessHash: 99}, nil
			},
			userBio: func(p domain.Peer) (string, error) {
				if p.AccessHash != 99 {
					return "", errors.New("wrong peer")
				}
				return "  ＢＵＹ crypto\u200b  ", nil
			},
		}
		env := newTestClient(t, api, nil)

		bio, ok := env.client.GetUserBio(ctx, 42, true, true).Get()
		require.True(t, ok)
		assert.Equal(t, "BUY crypto", bio)
	})

	t.Run("resolve denial propagates", func(t *testing.T) {
		api := &fakeAPI{resolvePeer: func(domain.PeerRef) (domain.Peer, error) {
			return domain.Peer{}, tgerr.New(400, "PEER_ID_INVALID")
		}}
		env := newTestClient(t, api, nil)

		assert.True(t, env.client.GetUserBio(ctx, 42, false, false).IsDenied())
		assert.Equal(t, 0, api.count("GetUserBio"))
	})
}

func TestGetStickerTitle(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{stickerTitle: func(name string) (string, error) {
		if name == "gone" {
			return "", tgerr.New(400, "STICKERSET_INVALID")
		}
		return "Ｃａｔｓ\x00", nil
	}}
	env := newTestClient(t, api, nil)

	title, ok := env.client.GetStickerTitle(ctx, "cats", true, true, true).Get()
	require.True(t, ok)
	assert.Equal(t, "Cats", title)

	title, ok = env.client.GetStickerTitle(ctx, "cats", true, true, true).Get()
	require.True(t, ok)
	assert.Equal(t, "Cats", title)
	assert.Equal(t, 1, api.count("GetStickerSetTitle"))

	// Bypassing the cache fetches again.
	env.client.GetStickerTitle(ctx, "cats", true, true, false)
	assert.Equal(t, 2, api.count("GetStickerSetTitle"))

	assert.True(t, env.client.GetStickerTitle(ctx, "gone", false, true, true).IsDenied())
}

func TestGetGroupInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when unavailable", func(t *testing.T) {
		api := &fakeAPI{getChat: func(domain.PeerRef) (domain.Chat, error) {
			return domain.Chat{}, tgerr.New(400, "CHANNEL_PRIVATE")
		}}
		env := newTestClient(t, api, nil, WithConfig(Config{DefaultGroupLink: "https://t.me/scp_079"}))

		info := env.client.GetGroupInfo(ctx, testChat, true)
		assert.Equal(t, domain.GroupInfo{Name: DefaultGroupName, Link: "https://t.me/scp_079"}, info)
	})

	t.Run("title and username, cached", func(t *testing.T) {
		api := &fakeAPI{getChat: func(ref domain.PeerRef) (domain.Chat, error) {
			return domain.Chat{ID: ref.ID, Title: "Spam Busters", Username: "spambusters"}, nil
		}}
		env := newTestClient(t, api, nil)

		info := env.client.GetGroupInfo(ctx, testChat, true)
		assert.Equal(t, domain.GroupInfo{Name: "Spam Busters", Link: "https://t.me/spambusters"}, info)

		env.client.GetGroupInfo(ctx, testChat, true)
		assert.Equal(t, 1, api.count("GetChat"))
	})

	t.Run("not stored without cache flag", func(t *testing.T) {
		api := &fakeAPI{getChat: func(ref domain.PeerRef) (domain.Chat, error) {
			return domain.Chat{ID: ref.ID, Title: "No Link"}, nil
		}}
		env := newTestClient(t, api, nil)

		info := env.client.GetGroupInfo(ctx, testChat, false)
		assert.Equal(t, DefaultGroupLink, info.Link)
		env.client.GetGroupInfo(ctx, testChat, false)
		assert.Equal(t, 2, api.count("GetChat"))
	})
}

func TestDownloadMedia(t *testing.T) {
	api := &fakeAPI{download: func(fileID, path string) (string, error) {
		return "", errors.New("connection reset")
	}}
	env := newTestClient(t, api, nil)

	out := env.client.DownloadMedia(context.Background(), "AgAD", "/tmp/x.jpg")
	assert.True(t, out.IsError())
	assert.Contains(t, env.logs.String(), "op=upload.getFile")
}
