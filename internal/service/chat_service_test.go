package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sideline-chat/sideline/internal/config"
	"github.com/sideline-chat/sideline/internal/domain"
	"github.com/sideline-chat/sideline/internal/fallback"
	"github.com/sideline-chat/sideline/internal/hub"
	"github.com/sideline-chat/sideline/internal/presence"
	"github.com/sideline-chat/sideline/pkg/jwt"
)

type fakeUserRepo struct {
	users map[string]*domain.User
}

func (r *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("not found")
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, errors.New("not found")
}

func (r *fakeUserRepo) Exists(_ context.Context, id string) (bool, error) {
	_, ok := r.users[id]
	return ok, nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	appended []domain.Message
	failWith error
}

func (r *fakeMessageRepo) Append(_ context.Context, msg *domain.Message) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.Timestamp = time.Now().UTC()
	msg.ID = uint64(len(r.appended) + 1)
	r.appended = append(r.appended, *msg)
	return nil
}

func (r *fakeMessageRepo) GetConversation(_ context.Context, userA, userB string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.appended {
		if (m.SenderID == userA && m.RecipientID == userB) || (m.SenderID == userB && m.RecipientID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appended)
}

type stubGenerator struct {
	reply string
	delay time.Duration
	err   error
}

func (g *stubGenerator) Generate(ctx context.Context, _ string, _ int) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

type routerFixture struct {
	svc      ChatService
	hub      *hub.Hub
	users    *fakeUserRepo
	messages *fakeMessageRepo
	presence presence.Store
	tokens   *jwt.Manager
}

func newRouterFixture(t *testing.T, gen fallback.Generator) *routerFixture {
	t.Helper()

	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}

	users := &fakeUserRepo{users: map[string]*domain.User{
		"u1": {ID: "u1", Email: "u1@example.com", Username: "alice"},
		"u2": {ID: "u2", Email: "u2@example.com", Username: "bob"},
	}}
	messages := &fakeMessageRepo{}
	store := presence.NewMemoryStore()
	tokens, err := jwt.NewManager("test-secret", time.Hour, "sideline")
	require.NoError(t, err)

	h := hub.NewHub(wsCfg)
	go h.Run()

	responder := fallback.NewResponder(gen, fallback.Config{Timeout: 500 * time.Millisecond})
	svc := NewChatService(h, tokens, users, messages, store, responder)

	return &routerFixture{
		svc:      svc,
		hub:      h,
		users:    users,
		messages: messages,
		presence: store,
		tokens:   tokens,
	}
}

func (f *routerFixture) connect(t *testing.T, connID, userID string) *hub.Client {
	t.Helper()
	wsCfg := config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
	c := hub.NewClient(connID, f.hub, nil, wsCfg)
	c.Session.Authenticate(userID, "user-"+userID, userID+"@example.com")
	f.hub.Bind(c)
	return c
}

func recvEvent(t *testing.T, c *hub.Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func requireNoEvent(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected event: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAvailableRecipientWithLiveConnection(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})
	sender := f.connect(t, "conn-1", "u1")
	recipient := f.connect(t, "conn-2", "u2")

	err := f.svc.HandleSendMessage(context.Background(), sender, "u2", "hi bob")
	require.NoError(t, err)

	// Exactly one persisted record.
	require.Equal(t, 1, f.messages.count())
	require.Equal(t, "u1", f.messages.appended[0].SenderID)
	require.Equal(t, "u2", f.messages.appended[0].RecipientID)
	require.Equal(t, "hi bob", f.messages.appended[0].Text)

	// Exactly one delivery to the recipient.
	ev := recvEvent(t, recipient)
	require.Equal(t, domain.MsgTypeReceiveMessage, ev["type"])
	require.Equal(t, "u1", ev["sender_id"])
	require.Equal(t, "hi bob", ev["text"])
	require.Contains(t, ev, "timestamp")
	requireNoEvent(t, recipient)

	// Exactly one echo to the sender.
	echo := recvEvent(t, sender)
	require.Equal(t, "u1", echo["sender_id"])
	require.Equal(t, "hi bob", echo["text"])
	requireNoEvent(t, sender)
}

func TestAvailableRecipientOffline(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})
	sender := f.connect(t, "conn-1", "u1")
	// u2 exists but has no live connection.

	err := f.svc.HandleSendMessage(context.Background(), sender, "u2", "are you there")
	require.NoError(t, err)

	// Still persisted, echo still delivered.
	require.Equal(t, 1, f.messages.count())
	echo := recvEvent(t, sender)
	require.Equal(t, "u1", echo["sender_id"])
	require.Equal(t, "are you there", echo["text"])
	requireNoEvent(t, sender)
}

func TestBusyRecipientGetsStandInReply(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "hello back", delay: 50 * time.Millisecond})
	sender := f.connect(t, "conn-1", "u1")
	recipient := f.connect(t, "conn-2", "u2")

	require.NoError(t, f.presence.Set(context.Background(), "u2", domain.StatusBusy))

	err := f.svc.HandleSendMessage(context.Background(), sender, "u2", "hi")
	require.NoError(t, err)

	// Reply appears to originate from the busy recipient.
	ev := recvEvent(t, sender)
	require.Equal(t, domain.MsgTypeReceiveMessage, ev["type"])
	require.Equal(t, "u2", ev["sender_id"])
	require.Equal(t, "hello back", ev["text"])
	require.NotContains(t, ev, "timestamp")

	// Nothing persisted, recipient receives nothing.
	require.Equal(t, 0, f.messages.count())
	requireNoEvent(t, recipient)
}

func TestBusyRecipientDegradedOnSlowGenerator(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "too late", delay: 5 * time.Second})
	sender := f.connect(t, "conn-1", "u1")

	require.NoError(t, f.presence.Set(context.Background(), "u2", domain.StatusBusy))

	start := time.Now()
	err := f.svc.HandleSendMessage(context.Background(), sender, "u2", "hi")
	require.NoError(t, err)
	require.Less(t, time.Since(start), 2*time.Second)

	ev := recvEvent(t, sender)
	require.Equal(t, "u2", ev["sender_id"])
	require.Equal(t, fallback.DefaultDegradedReply, ev["text"])
	require.Equal(t, 0, f.messages.count())
}

func TestUnknownRecipientRejectsSend(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})
	sender := f.connect(t, "conn-1", "u1")

	err := f.svc.HandleSendMessage(context.Background(), sender, "ghost", "hello?")
	require.NoError(t, err)

	ev := recvEvent(t, sender)
	require.Equal(t, domain.MsgTypeError, ev["type"])
	require.Equal(t, domain.ErrCodeUnknownRecipient, ev["code"])
	require.Equal(t, 0, f.messages.count())
}

func TestPersistenceFailureAbortsSend(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})
	f.messages.failWith = errors.New("store unreachable")
	sender := f.connect(t, "conn-1", "u1")
	recipient := f.connect(t, "conn-2", "u2")

	err := f.svc.HandleSendMessage(context.Background(), sender, "u2", "hi")
	require.Error(t, err)

	ev := recvEvent(t, sender)
	require.Equal(t, domain.MsgTypeError, ev["type"])
	require.Equal(t, domain.ErrCodePersistenceFailure, ev["code"])

	// No partial delivery to anyone.
	requireNoEvent(t, sender)
	requireNoEvent(t, recipient)
}

func TestUnauthenticatedSendRejected(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})

	wsCfg := config.WebSocketConfig{PingInterval: 30 * time.Second, PongWait: 60 * time.Second, WriteWait: 10 * time.Second, MaxMessageSize: 4096}
	c := hub.NewClient("conn-x", f.hub, nil, wsCfg)

	err := f.svc.HandleSendMessage(context.Background(), c, "u2", "hi")
	require.NoError(t, err)

	ev := recvEvent(t, c)
	require.Equal(t, domain.ErrCodeUnauthorized, ev["code"])
}

func TestEmptyTextIsRoutedNormally(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})
	sender := f.connect(t, "conn-1", "u1")

	err := f.svc.HandleSendMessage(context.Background(), sender, "u2", "")
	require.NoError(t, err)
	require.Equal(t, 1, f.messages.count())
	require.Equal(t, "", f.messages.appended[0].Text)
}

func TestSelfSendIsPermitted(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})
	sender := f.connect(t, "conn-1", "u1")

	err := f.svc.HandleSendMessage(context.Background(), sender, "u1", "note to self")
	require.NoError(t, err)
	require.Equal(t, 1, f.messages.count())

	// Delivery and echo both land on the same connection.
	first := recvEvent(t, sender)
	second := recvEvent(t, sender)
	require.Equal(t, "note to self", first["text"])
	require.Equal(t, "note to self", second["text"])
}

func TestPresenceFlipDuringRoutingDoesNotAffectDecision(t *testing.T) {
	// The presence read is a one-time snapshot: a flip after routing has
	// started must not turn a live delivery into a fallback.
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})
	sender := f.connect(t, "conn-1", "u1")

	err := f.svc.HandleSendMessage(context.Background(), sender, "u2", "first")
	require.NoError(t, err)
	require.NoError(t, f.presence.Set(context.Background(), "u2", domain.StatusBusy))

	// The already-routed message stays persisted.
	require.Equal(t, 1, f.messages.count())

	// The next send takes the fallback path.
	err = f.svc.HandleSendMessage(context.Background(), sender, "u2", "second")
	require.NoError(t, err)
	require.Equal(t, 1, f.messages.count())
}

func TestHandleAuthBindsConnection(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})

	wsCfg := config.WebSocketConfig{PingInterval: 30 * time.Second, PongWait: 60 * time.Second, WriteWait: 10 * time.Second, MaxMessageSize: 4096}
	c := hub.NewClient("conn-1", f.hub, nil, wsCfg)

	token, _, err := f.tokens.GenerateToken("u1", "u1@example.com", "alice")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleAuth(context.Background(), c, token))
	require.True(t, c.Session.IsAuthenticated())
	require.Same(t, c, f.hub.Resolve("u1"))

	ev := recvEvent(t, c)
	require.Equal(t, domain.MsgTypeAuthResult, ev["type"])
	require.Equal(t, true, ev["success"])
	require.Equal(t, "u1", ev["user_id"])
}

func TestHandleAuthRejectsReauthentication(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})

	wsCfg := config.WebSocketConfig{PingInterval: 30 * time.Second, PongWait: 60 * time.Second, WriteWait: 10 * time.Second, MaxMessageSize: 4096}
	c := hub.NewClient("conn-1", f.hub, nil, wsCfg)

	firstToken, _, err := f.tokens.GenerateToken("u1", "u1@example.com", "alice")
	require.NoError(t, err)
	require.NoError(t, f.svc.HandleAuth(context.Background(), c, firstToken))
	recvEvent(t, c)

	// A second auth frame, even for another user, must not rebind the
	// connection: a handle is bound to at most one user.
	secondToken, _, err := f.tokens.GenerateToken("u2", "u2@example.com", "bob")
	require.NoError(t, err)
	err = f.svc.HandleAuth(context.Background(), c, secondToken)
	require.Error(t, err)

	ev := recvEvent(t, c)
	require.Equal(t, domain.MsgTypeAuthResult, ev["type"])
	require.Equal(t, false, ev["success"])

	// The original binding is intact and no binding exists for the
	// second user.
	require.Equal(t, "u1", c.Session.GetUserID())
	require.Same(t, c, f.hub.Resolve("u1"))
	require.Nil(t, f.hub.Resolve("u2"))
}

func TestHandleAuthRejectsBadToken(t *testing.T) {
	f := newRouterFixture(t, &stubGenerator{reply: "unused"})

	wsCfg := config.WebSocketConfig{PingInterval: 30 * time.Second, PongWait: 60 * time.Second, WriteWait: 10 * time.Second, MaxMessageSize: 4096}
	c := hub.NewClient("conn-1", f.hub, nil, wsCfg)

	err := f.svc.HandleAuth(context.Background(), c, "garbage")
	require.Error(t, err)
	require.False(t, c.Session.IsAuthenticated())

	ev := recvEvent(t, c)
	require.Equal(t, domain.MsgTypeAuthResult, ev["type"])
	require.Equal(t, false, ev["success"])
}
