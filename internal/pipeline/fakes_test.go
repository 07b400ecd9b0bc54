package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"PrivateLine/server/internal/crypto"
	"PrivateLine/server/internal/models"
	"PrivateLine/server/internal/store"
	apperrors "PrivateLine/server/pkg/errors"
	"PrivateLine/server/pkg/logger"
)

// In-memory stand-ins mirroring the repositories' row-level semantics.

type fakeMessages struct {
	mu     sync.Mutex
	rows   map[int64]*models.Message
	nextID int64

	unseenCalls     int
	unseenBulkCalls int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{rows: make(map[int64]*models.Message), nextID: 1}
}

func (f *fakeMessages) Create(_ context.Context, m *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m.ID = f.nextID
	f.nextID++
	cp := *m
	f.rows[m.ID] = &cp
	return nil
}

func (f *fakeMessages) FindByID(_ context.Context, id int64) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.rows[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) visibleBetween(callerID, peerID int64) []*models.Message {
	var out []*models.Message
	for _, m := range f.rows {
		betweenPair := (m.FromID == callerID && m.ToID == peerID) ||
			(m.FromID == peerID && m.ToID == callerID)
		if betweenPair && m.VisibleTo(callerID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (f *fakeMessages) FindBetween(_ context.Context, callerID, peerID int64, cursor store.Cursor, limit uint64) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Message
	for _, m := range f.visibleBetween(callerID, peerID) {
		switch {
		case cursor.ExactID != 0 && m.ID != cursor.ExactID:
			continue
		case cursor.AfterID != 0 && m.ID <= cursor.AfterID:
			continue
		case cursor.BeforeID != 0 && m.ID >= cursor.BeforeID:
			continue
		}
		out = append(out, m)
		if uint64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeMessages) SearchPreview(_ context.Context, callerID, peerID int64, substr string, limit, offset uint64) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Message
	for _, m := range f.visibleBetween(callerID, peerID) {
		if strings.Contains(strings.ToLower(m.TextPreview), strings.ToLower(substr)) {
			out = append(out, m)
		}
	}
	if offset >= uint64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessages) MarkSeen(_ context.Context, callerID, peerID, seenAt int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []int64
	for _, m := range f.rows {
		if m.FromID == peerID && m.ToID == callerID && m.Seen == 0 {
			m.Seen = seenAt
			ids = append(ids, m.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeMessages) CountUnseen(_ context.Context, callerID, peerID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unseenCalls++
	return f.countUnseen(callerID, peerID), nil
}

func (f *fakeMessages) CountUnseenBulk(_ context.Context, callerID int64, peerIDs []int64) (map[int64]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.unseenBulkCalls++
	out := make(map[int64]int, len(peerIDs))
	for _, peerID := range peerIDs {
		if n := f.countUnseen(callerID, peerID); n > 0 {
			out[peerID] = n
		}
	}
	return out, nil
}

func (f *fakeMessages) countUnseen(callerID, peerID int64) int {
	n := 0
	for _, m := range f.rows {
		if m.FromID == peerID && m.ToID == callerID && m.Seen == 0 && !m.DeletedTwo {
			n++
		}
	}
	return n
}

func (f *fakeMessages) UpdateCiphertext(_ context.Context, id, senderID int64, text, iv, tag, textECB, preview string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.rows[id]
	if !ok || m.FromID != senderID {
		return apperrors.ErrMessageNotFound
	}
	m.Text, m.IV, m.Tag, m.TextECB, m.TextPreview = text, iv, tag, textECB, preview
	m.CipherVersion = models.CipherVersionGCM
	m.Edited = true
	return nil
}

func (f *fakeMessages) SetDeleted(_ context.Context, id int64, senderSide, recipientSide bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.rows[id]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	if senderSide {
		m.DeletedOne = true
	}
	if recipientSide {
		m.DeletedTwo = true
	}
	return nil
}

func (f *fakeMessages) IncrementForward(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	m, ok := f.rows[id]
	if !ok {
		return apperrors.ErrMessageNotFound
	}
	m.Forward++
	return nil
}

type pairKey struct{ owner, counterpart int64 }

type fakeDirectory struct {
	mu   sync.Mutex
	rows map[pairKey]*models.ConversationEntry

	// failTouchOwner makes Touch fail for one owner id, to exercise a
	// single recipient's transaction failing.
	failTouchOwner int64
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{rows: make(map[pairKey]*models.ConversationEntry)}
}

func (f *fakeDirectory) row(owner, counterpart int64) *models.ConversationEntry {
	key := pairKey{owner, counterpart}
	if e, ok := f.rows[key]; ok {
		return e
	}
	e := models.DefaultConversationEntry(owner, counterpart)
	f.rows[key] = e
	return e
}

func (f *fakeDirectory) Get(_ context.Context, owner, counterpart int64) (*models.ConversationEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.rows[pairKey{owner, counterpart}]; ok {
		cp := *e
		return &cp, nil
	}
	return models.DefaultConversationEntry(owner, counterpart), nil
}

func (f *fakeDirectory) Touch(_ context.Context, owner, counterpart, ts int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTouchOwner != 0 && owner == f.failTouchOwner {
		return apperrors.Internal("directory unavailable")
	}
	f.row(owner, counterpart).Time = ts
	return nil
}

func (f *fakeDirectory) SetFlag(_ context.Context, owner, counterpart int64, column string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.row(owner, counterpart)
	switch column {
	case "notify":
		e.Notify = value
	case "call_chat":
		e.CallChat = value
	case "archive":
		e.Archive = value
	case "pin":
		e.Pin = value
	}
	return nil
}

func (f *fakeDirectory) SetColor(_ context.Context, owner, counterpart int64, color string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.row(owner, counterpart).Color = color
	f.row(counterpart, owner).Color = color
	return nil
}

func (f *fakeDirectory) ListForOwner(_ context.Context, owner int64, archived bool, limit, offset uint64) ([]*models.ConversationEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.ConversationEntry
	for key, e := range f.rows {
		if key.owner == owner && e.Archive == archived {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time > out[j].Time })
	if offset >= uint64(len(out)) {
		return nil, nil
	}
	out = out[offset:]
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeReactions struct {
	mu   sync.Mutex
	rows map[pairKey]string // (user, message) -> token
}

func newFakeReactions() *fakeReactions {
	return &fakeReactions{rows: make(map[pairKey]string)}
}

func (f *fakeReactions) Get(_ context.Context, userID, messageID int64) (*models.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token, ok := f.rows[pairKey{userID, messageID}]; ok {
		return &models.Reaction{UserID: userID, MessageID: messageID, Reaction: token}, nil
	}
	return nil, nil
}

func (f *fakeReactions) Upsert(_ context.Context, userID, messageID int64, reaction string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[pairKey{userID, messageID}] = reaction
	return nil
}

func (f *fakeReactions) Delete(_ context.Context, userID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, pairKey{userID, messageID})
	return nil
}

func (f *fakeReactions) ListForMessages(_ context.Context, messageIDs []int64) (map[int64][]models.Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		want[id] = true
	}
	out := make(map[int64][]models.Reaction)
	for key, token := range f.rows {
		if want[key.counterpart] {
			out[key.counterpart] = append(out[key.counterpart], models.Reaction{
				UserID: key.owner, MessageID: key.counterpart, Reaction: token,
			})
		}
	}
	return out, nil
}

type fakeExtras struct {
	mu       sync.Mutex
	pins     map[pairKey]int64 // (user, message) -> chat
	favs     map[pairKey]bool  // (user, message)
	favOrder []pairKey
}

func newFakeExtras() *fakeExtras {
	return &fakeExtras{pins: make(map[pairKey]int64), favs: make(map[pairKey]bool)}
}

func (f *fakeExtras) SetPinned(_ context.Context, userID, chatID, messageID int64, pinned bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pinned {
		f.pins[pairKey{userID, messageID}] = chatID
	} else {
		delete(f.pins, pairKey{userID, messageID})
	}
	return nil
}

func (f *fakeExtras) ToggleFavorite(_ context.Context, userID, messageID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey{userID, messageID}
	if f.favs[key] {
		delete(f.favs, key)
		return false, nil
	}
	f.favs[key] = true
	f.favOrder = append([]pairKey{key}, f.favOrder...)
	return true, nil
}

func (f *fakeExtras) ListFavorites(_ context.Context, userID int64, limit, offset uint64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, key := range f.favOrder {
		if key.owner == userID && f.favs[key] {
			ids = append(ids, key.counterpart)
		}
	}
	return ids, nil
}

func (f *fakeExtras) ListPinned(_ context.Context, userID, chatID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for key, chat := range f.pins {
		if key.owner == userID && chat == chatID {
			ids = append(ids, key.counterpart)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids, nil
}

type fakeUsers struct {
	profiles map[int64]*models.UserProfile
}

func (f *fakeUsers) GetProfile(_ context.Context, id int64) (*models.UserProfile, error) {
	if p, ok := f.profiles[id]; ok {
		return p, nil
	}
	return nil, apperrors.ErrUserNotFound
}

func (f *fakeUsers) GetProfiles(_ context.Context, ids []int64) (map[int64]*models.UserProfile, error) {
	out := make(map[int64]*models.UserProfile)
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeTx struct {
	messages  MessageStore
	directory DirectoryStore
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(msgs MessageStore, dir DirectoryStore) error) error {
	return fn(f.messages, f.directory)
}

type published struct {
	UserID  int64
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(userID int64, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{UserID: userID, Event: event, Payload: payload})
}

func (r *recordingPublisher) forUser(userID int64) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingPublisher) named(event string) []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []published
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	pipeline  *Pipeline
	messages  *fakeMessages
	directory *fakeDirectory
	reactions *fakeReactions
	extras    *fakeExtras
	publisher *recordingPublisher
	codec     *crypto.Codec
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv() *testEnv {
	msgs := newFakeMessages()
	dir := newFakeDirectory()
	reacts := newFakeReactions()
	extras := newFakeExtras()
	pub := &recordingPublisher{}
	codec := crypto.NewCodec("pipeline-test-secret")
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	users := &fakeUsers{profiles: map[int64]*models.UserProfile{
		1: {ID: 1, Username: "alice", Avatar: "a.png", Status: "hey"},
		2: {ID: 2, Username: "bob", Avatar: "b.png"},
		3: {ID: 3, Username: "carol"},
	}}

	p := New(Deps{
		Messages:  msgs,
		Directory: dir,
		Reactions: reacts,
		Extras:    extras,
		Users:     users,
		Tx:        &fakeTx{messages: msgs, directory: dir},
		Codec:     codec,
		Publisher: pub,
		Logger:    logger.NewNop(),
		Now:       clock.Now,
	})

	return &testEnv{
		pipeline:  p,
		messages:  msgs,
		directory: dir,
		reactions: reacts,
		extras:    extras,
		publisher: pub,
		codec:     codec,
		clock:     clock,
	}
}
