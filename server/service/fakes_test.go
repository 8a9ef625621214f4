package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wealthline/supportchat/internal/model"
	"gorm.io/gorm"
)

// fakeConversationRepo 内存实现，测试路由逻辑用
type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message
	nextMsgID     int64

	failAppend bool
	failCreate bool
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
	}
}

func (f *fakeConversationRepo) GetOrCreateConversation(ctx context.Context, conv *model.Conversation) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, fmt.Errorf("store unavailable")
	}
	if existing, ok := f.conversations[conv.ID]; ok {
		copied := *existing
		return &copied, nil
	}
	created := &model.Conversation{
		ID:              conv.ID,
		UserID:          conv.UserID,
		SupportID:       conv.SupportID,
		LastMessageText: conv.LastMessageText,
		LastMessageAt:   time.Now(),
		UnreadCount:     1,
		CreatedAt:       time.Now(),
	}
	f.conversations[conv.ID] = created
	copied := *created
	return &copied, nil
}

func (f *fakeConversationRepo) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv, ok := f.conversations[conversationID]; ok {
		copied := *conv
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return fmt.Errorf("store unavailable")
	}
	f.nextMsgID++
	msg.ID = f.nextMsgID
	msg.CreatedAt = time.Now()
	stored := *msg
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], &stored)
	if conv, ok := f.conversations[msg.ConversationID]; ok {
		conv.LastMessageText = msg.Content
		conv.LastMessageAt = msg.CreatedAt
		conv.UnreadCount++
	}
	return nil
}

func (f *fakeConversationRepo) ListConversationsFor(ctx context.Context, identityID int64, role string) ([]*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Conversation
	for _, conv := range f.conversations {
		if (role == model.RoleSupport && conv.SupportID == identityID) ||
			(role != model.RoleSupport && conv.UserID == identityID) {
			copied := *conv
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (f *fakeConversationRepo) ListMessages(ctx context.Context, conversationID string, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[conversationID]
	out := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		copied := *m
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeConversationRepo) MarkRead(ctx context.Context, conversationID string, recipientID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages[conversationID] {
		if m.RecipientID == recipientID {
			m.IsRead = true
		}
	}
	if conv, ok := f.conversations[conversationID]; ok {
		conv.UnreadCount = 0
	}
	return nil
}

func (f *fakeConversationRepo) Close() error { return nil }

// sentEvent 记录一次推送
type sentEvent struct {
	UserID  int64
	Event   string
	Payload interface{}
}

// fakePusher 记录所有推送，broadcast 单独记
type fakePusher struct {
	mu         sync.Mutex
	sent       []sentEvent
	broadcasts []sentEvent
	offline    map[int64]bool
}

func newFakePusher() *fakePusher {
	return &fakePusher{offline: make(map[int64]bool)}
}

func (f *fakePusher) SendToUser(userID int64, event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline[userID] {
		return fmt.Errorf("user not connected: %d", userID)
	}
	f.sent = append(f.sent, sentEvent{UserID: userID, Event: event, Payload: payload})
	return nil
}

func (f *fakePusher) BroadcastSupport(event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, sentEvent{Event: event, Payload: payload})
}

func (f *fakePusher) eventsFor(userID int64, event string) []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentEvent
	for _, e := range f.sent {
		if e.UserID == userID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakePusher) broadcastCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, e := range f.broadcasts {
		if e.Event == event {
			count++
		}
	}
	return count
}

// fakeRegistry 固定的在线集合
type fakeRegistry struct {
	mu     sync.Mutex
	online map[int64]bool
}

func newFakeRegistry(ids ...int64) *fakeRegistry {
	r := &fakeRegistry{online: make(map[int64]bool)}
	for _, id := range ids {
		r.online[id] = true
	}
	return r
}

func (f *fakeRegistry) IsOnline(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func (f *fakeRegistry) OnlineUserIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.online {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeRegistry) setOnline(userID int64, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if online {
		f.online[userID] = true
	} else {
		delete(f.online, userID)
	}
}

// fakeUserRepo 内存用户表
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	f := &fakeUserRepo{users: make(map[int64]*model.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) ListUsers(ctx context.Context) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.User
	for _, u := range f.users {
		copied := *u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (f *fakeUserRepo) Close() error { return nil }

// fakePresenceRepo 内存在线状态表
type fakePresenceRepo struct {
	mu      sync.Mutex
	records map[int64]*model.PresenceRecord
	failAll bool
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{records: make(map[int64]*model.PresenceRecord)}
}

func (f *fakePresenceRepo) SetOnline(ctx context.Context, userID int64, connectionHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return fmt.Errorf("store unavailable")
	}
	f.records[userID] = &model.PresenceRecord{
		UserID:           userID,
		IsOnline:         true,
		LastSeenAt:       time.Now(),
		ConnectionHandle: connectionHandle,
	}
	return nil
}

func (f *fakePresenceRepo) SetOffline(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return fmt.Errorf("store unavailable")
	}
	if r, ok := f.records[userID]; ok {
		r.IsOnline = false
		r.LastSeenAt = time.Now()
		r.ConnectionHandle = ""
	}
	return nil
}

func (f *fakePresenceRepo) ListOnline(ctx context.Context) ([]*model.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, fmt.Errorf("store unavailable")
	}
	var out []*model.PresenceRecord
	for _, r := range f.records {
		if r.IsOnline {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakePresenceRepo) ListAll(ctx context.Context) ([]*model.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.PresenceRecord
	for _, r := range f.records {
		copied := *r
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakePresenceRepo) MarkAllOffline(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		r.IsOnline = false
	}
	return nil
}

func (f *fakePresenceRepo) Close() error { return nil }
