package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PrivateLine/server/internal/crypto"
	"PrivateLine/server/internal/models"
	apperrors "PrivateLine/server/pkg/errors"
)

func decryptWire(t *testing.T, codec *crypto.Codec, w *models.WireMessage) string {
	t.Helper()
	plain, err := codec.Decrypt(&crypto.Envelope{Text: w.Text, IV: w.IV, Tag: w.Tag}, w.Time)
	require.NoError(t, err)
	return plain
}

func TestSendAndRead(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.PositionRight, sent.Position)
	assert.Equal(t, "hello", decryptWire(t, env.codec, sent))
	assert.Equal(t, "alice", sent.Sender.Username)

	got, err := env.pipeline.Get(ctx, GetRequest{CallerID: 2, PeerID: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.PositionLeft, got[0].Position)
	assert.Equal(t, "hello", decryptWire(t, env.codec, got[0]))

	mine, err := env.pipeline.Get(ctx, GetRequest{CallerID: 1, PeerID: 2})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.PositionRight, mine[0].Position)
}

func TestSendEmptyRejected(t *testing.T) {
	env := newTestEnv()

	_, err := env.pipeline.Send(context.Background(), SendRequest{FromID: 1, ToID: 2})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArg(err))
	assert.Empty(t, env.publisher.events)

	_, err = env.pipeline.Send(context.Background(), SendRequest{FromID: 1, Text: "hi"})
	assert.True(t, apperrors.IsInvalidArg(err))
}

func TestSendMediaOnlyAllowed(t *testing.T) {
	env := newTestEnv()

	sent, err := env.pipeline.Send(context.Background(), SendRequest{
		FromID: 1, ToID: 2, Media: "https://cdn.example/pic.jpg", MediaFileName: "pic.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TypeMedia, sent.Type)
	assert.Empty(t, sent.Text)
	assert.Zero(t, sent.CipherVersion)
}

func TestSendEmitsBothEventNamesAndSelfEcho(t *testing.T) {
	env := newTestEnv()

	_, err := env.pipeline.Send(context.Background(), SendRequest{FromID: 1, ToID: 2, Text: "hi"})
	require.NoError(t, err)

	assert.Len(t, env.publisher.named(EventNewMessage), 2)
	assert.Len(t, env.publisher.named(EventPrivateMessage), 2)

	for _, e := range env.publisher.forUser(2) {
		payload := e.Payload.(MessageEvent)
		assert.False(t, payload.Self)
		assert.Equal(t, models.PositionLeft, payload.Message.Position)
	}
	for _, e := range env.publisher.forUser(1) {
		payload := e.Payload.(MessageEvent)
		assert.True(t, payload.Self)
		assert.Equal(t, models.PositionRight, payload.Message.Position)
	}
}

func TestDirectorySymmetryOnSend(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "hi"})
	require.NoError(t, err)

	ab, err := env.directory.Get(ctx, 1, 2)
	require.NoError(t, err)
	ba, err := env.directory.Get(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, sent.Time, ab.Time)
	assert.Equal(t, sent.Time, ba.Time)

	// After a later message to someone else, the fresher conversation leads.
	env.clock.Advance(time.Minute)
	_, err = env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 3, Text: "yo"})
	require.NoError(t, err)

	list, err := env.pipeline.Conversations(ctx, 1, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.EqualValues(t, 3, list[0].CounterpartID)
	assert.EqualValues(t, 2, list[1].CounterpartID)
}

func TestSoftDeleteIndependence(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "secret"})
	require.NoError(t, err)

	require.NoError(t, env.pipeline.Delete(ctx, 1, sent.ID, DeleteJustMe))

	mine, err := env.pipeline.Get(ctx, GetRequest{CallerID: 1, PeerID: 2})
	require.NoError(t, err)
	assert.Empty(t, mine)

	theirs, err := env.pipeline.Get(ctx, GetRequest{CallerID: 2, PeerID: 1})
	require.NoError(t, err)
	assert.Len(t, theirs, 1)
}

func TestDeleteEveryone(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "oops"})
	require.NoError(t, err)

	// Recipient cannot delete for everyone.
	err = env.pipeline.Delete(ctx, 2, sent.ID, DeleteEveryone)
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	require.NoError(t, env.pipeline.Delete(ctx, 1, sent.ID, DeleteEveryone))

	for _, caller := range []int64{1, 2} {
		peer := int64(3) - caller
		msgs, err := env.pipeline.Get(ctx, GetRequest{CallerID: caller, PeerID: peer})
		require.NoError(t, err)
		assert.Empty(t, msgs)
	}

	// Row survives for references; only the flags changed.
	_, err = env.messages.FindByID(ctx, sent.ID)
	assert.NoError(t, err)

	deletes := env.publisher.named(EventMessageDeleted)
	assert.Len(t, deletes, 2)
}

func TestDeleteJustMeNotifiesOnlyCaller(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "x"})
	require.NoError(t, err)
	env.publisher.events = nil

	require.NoError(t, env.pipeline.Delete(ctx, 1, sent.ID, DeleteJustMe))

	assert.Empty(t, env.publisher.forUser(2))
	self := env.publisher.forUser(1)
	require.Len(t, self, 1)
	assert.True(t, self[0].Payload.(DeletedEvent).Self)
}

func TestEditForbiddenForNonSender(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "original"})
	require.NoError(t, err)

	_, err = env.pipeline.Edit(ctx, 2, sent.ID, "hacked")
	require.Error(t, err)
	assert.True(t, apperrors.IsForbidden(err))

	// Row unchanged.
	row, err := env.messages.FindByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.False(t, row.Edited)
	assert.Equal(t, "original", decryptWire(t, env.codec, env.pipeline.toWire(ctx, row, 1)))
}

func TestEditReencryptsUnderOriginalTime(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "v1"})
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	edited, err := env.pipeline.Edit(ctx, 1, sent.ID, "v2")
	require.NoError(t, err)

	assert.Equal(t, sent.Time, edited.Time)
	assert.True(t, edited.Edited)
	assert.Equal(t, "v2", decryptWire(t, env.codec, edited))

	// The edit-time key must not open it.
	_, err = env.codec.Decrypt(&crypto.Envelope{Text: edited.Text, IV: edited.IV, Tag: edited.Tag}, env.clock.Now().Unix())
	assert.Error(t, err)

	assert.Len(t, env.publisher.named(EventMessageEdited), 2)
}

func TestEditUpgradesLegacyRow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	legacy := &models.Message{
		FromID:        1,
		ToID:          2,
		CipherVersion: models.CipherVersionLegacy,
		TextECB:       "b2xkIGNpcGhlcnRleHQ=",
		Time:          env.clock.Now().Unix(),
	}
	require.NoError(t, env.messages.Create(ctx, legacy))

	edited, err := env.pipeline.Edit(ctx, 1, legacy.ID, "fresh text")
	require.NoError(t, err)
	assert.EqualValues(t, models.CipherVersionGCM, edited.CipherVersion)
	assert.Equal(t, "fresh text", decryptWire(t, env.codec, edited))

	// The stored version tag must describe the new authenticated material,
	// or readers would follow the legacy path into garbage.
	row, err := env.messages.FindByID(ctx, legacy.ID)
	require.NoError(t, err)
	assert.EqualValues(t, models.CipherVersionGCM, row.CipherVersion)
	assert.Equal(t, edited.Text, row.Text)
}

func TestEditDeletedRowRejected(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "gone"})
	require.NoError(t, err)
	require.NoError(t, env.pipeline.Delete(ctx, 1, sent.ID, DeleteEveryone))

	_, err = env.pipeline.Edit(ctx, 1, sent.ID, "resurrected")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	row, err := env.messages.FindByID(ctx, sent.ID)
	require.NoError(t, err)
	assert.False(t, row.Edited)
}

func TestEditEmptyTextRejected(t *testing.T) {
	env := newTestEnv()

	_, err := env.pipeline.Edit(context.Background(), 1, 1, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArg(err))
}

func TestEditNotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.pipeline.Edit(context.Background(), 1, 999, "text")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSearchScope(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "budget report"})
	require.NoError(t, err)

	found, err := env.pipeline.Search(ctx, SearchRequest{CallerID: 1, PeerID: 2, Query: "budget"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, sent.ID, found[0].ID)

	// A fragment of the ciphertext never matches: search sees previews only.
	cipherFragment := sent.Text[:8]
	none, err := env.pipeline.Search(ctx, SearchRequest{CallerID: 1, PeerID: 2, Query: cipherFragment})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchQueryTooShort(t *testing.T) {
	env := newTestEnv()

	_, err := env.pipeline.Search(context.Background(), SearchRequest{CallerID: 1, PeerID: 2, Query: "b"})
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidArg(err))
}

func TestSeenAndUnreadCount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := env.pipeline.Send(ctx, SendRequest{FromID: 2, ToID: 1, Text: text})
		require.NoError(t, err)
	}

	n, err := env.pipeline.UnreadCount(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, env.pipeline.Seen(ctx, 1, 2))

	n, err = env.pipeline.UnreadCount(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	receipts := env.publisher.named(EventLastSeen)
	require.Len(t, receipts, 1)
	assert.EqualValues(t, 2, receipts[0].UserID)
	assert.Len(t, receipts[0].Payload.(LastSeenEvent).MessageIDs, 3)

	// Idempotent: nothing left to mark, nothing emitted.
	require.NoError(t, env.pipeline.Seen(ctx, 1, 2))
	assert.Len(t, env.publisher.named(EventLastSeen), 1)
}

func TestConversationsUnreadCountsResolvedInBulk(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		_, err := env.pipeline.Send(ctx, SendRequest{FromID: 2, ToID: 1, Text: text})
		require.NoError(t, err)
	}
	_, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 3, Text: "read receipt pending"})
	require.NoError(t, err)

	list, err := env.pipeline.Conversations(ctx, 1, false, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	counts := map[int64]int{}
	for _, c := range list {
		counts[c.CounterpartID] = c.UnreadCount
	}
	assert.Equal(t, 2, counts[2])
	assert.Equal(t, 0, counts[3])

	// One grouped query resolves the whole page; no per-entry counting.
	assert.Equal(t, 1, env.messages.unseenBulkCalls)
	assert.Zero(t, env.messages.unseenCalls)
}

func TestReactionToggle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "react to me"})
	require.NoError(t, err)

	action, err := env.pipeline.React(ctx, 2, sent.ID, "heart")
	require.NoError(t, err)
	assert.Equal(t, models.ReactionAdded, action)

	action, err = env.pipeline.React(ctx, 2, sent.ID, "laugh")
	require.NoError(t, err)
	assert.Equal(t, models.ReactionUpdated, action)

	re, err := env.reactions.Get(ctx, 2, sent.ID)
	require.NoError(t, err)
	require.NotNil(t, re)
	assert.Equal(t, "laugh", re.Reaction)

	// Same token again removes it.
	action, err = env.pipeline.React(ctx, 2, sent.ID, "laugh")
	require.NoError(t, err)
	assert.Equal(t, models.ReactionRemoved, action)

	re, err = env.reactions.Get(ctx, 2, sent.ID)
	require.NoError(t, err)
	assert.Nil(t, re)
}

func TestReactMessageNotFound(t *testing.T) {
	env := newTestEnv()

	_, err := env.pipeline.React(context.Background(), 1, 404, "heart")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestForwardReKeying(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	src, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "pass it on"})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	out, err := env.pipeline.Forward(ctx, ForwardRequest{CallerID: 1, MessageID: src.ID, RecipientIDs: []int64{3}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].Delivered)

	fwd := out[0].Message
	assert.NotEqual(t, src.ID, fwd.ID)
	assert.NotEqual(t, src.Time, fwd.Time)
	assert.NotEqual(t, src.Text, fwd.Text)
	assert.Equal(t, "pass it on", decryptWire(t, env.codec, fwd))
	assert.Equal(t, 1, fwd.Forward)

	// Source row counts the forward; recipient's directory got touched.
	row, err := env.messages.FindByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, row.Forward)

	entry, err := env.directory.Get(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, fwd.Time, entry.Time)
}

func TestForwardToSeveralRecipients(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	src, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "broadcastish"})
	require.NoError(t, err)
	env.publisher.events = nil

	out, err := env.pipeline.Forward(ctx, ForwardRequest{CallerID: 1, MessageID: src.ID, RecipientIDs: []int64{2, 3}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, d := range out {
		assert.True(t, d.Delivered)
	}

	assert.Len(t, env.publisher.forUser(2), 2) // new_message + private_message
	assert.Len(t, env.publisher.forUser(3), 2)
}

func TestForwardPartialDelivery(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	src, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "fan out"})
	require.NoError(t, err)
	env.publisher.events = nil
	env.directory.failTouchOwner = 3

	out, err := env.pipeline.Forward(ctx, ForwardRequest{CallerID: 1, MessageID: src.ID, RecipientIDs: []int64{2, 3}})
	require.NoError(t, err)
	require.Len(t, out, 2)

	byRecipient := map[int64]ForwardDelivery{}
	for _, d := range out {
		byRecipient[d.RecipientID] = d
	}
	assert.True(t, byRecipient[2].Delivered)
	require.NotNil(t, byRecipient[2].Message)
	assert.False(t, byRecipient[3].Delivered)
	assert.Nil(t, byRecipient[3].Message)

	// The landed delivery stays landed; the failed recipient saw nothing.
	assert.Len(t, env.publisher.forUser(2), 2)
	assert.Empty(t, env.publisher.forUser(3))

	// The counter reflects that at least one copy went out.
	row, err := env.messages.FindByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, row.Forward)
}

func TestForwardValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.pipeline.Forward(ctx, ForwardRequest{CallerID: 1, MessageID: 1})
	assert.True(t, apperrors.IsInvalidArg(err))

	_, err = env.pipeline.Forward(ctx, ForwardRequest{CallerID: 1, MessageID: 404, RecipientIDs: []int64{2}})
	assert.True(t, apperrors.IsNotFound(err))

	// A stranger to the pair cannot forward the message.
	src, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "private"})
	require.NoError(t, err)
	_, err = env.pipeline.Forward(ctx, ForwardRequest{CallerID: 3, MessageID: src.ID, RecipientIDs: []int64{4}})
	assert.True(t, apperrors.IsNotFound(err))
}

func TestReplyPreviewResolved(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "question?"})
	require.NoError(t, err)

	reply, err := env.pipeline.Send(ctx, SendRequest{FromID: 2, ToID: 1, Text: "answer!", ReplyID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, "question?", reply.ReplyPreview)

	got, err := env.pipeline.Get(ctx, GetRequest{CallerID: 1, PeerID: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "question?", got[1].ReplyPreview)
}

func TestPinMessage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "pin me"})
	require.NoError(t, err)

	require.NoError(t, env.pipeline.PinMessage(ctx, 2, 1, sent.ID, true))

	pinned, err := env.pipeline.PinnedList(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, pinned, 1)
	assert.Equal(t, sent.ID, pinned[0].ID)

	// Pins are per-caller.
	other, err := env.pipeline.PinnedList(ctx, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, other)

	assert.Len(t, env.publisher.named(EventPinned), 2)

	err = env.pipeline.PinMessage(ctx, 2, 0, sent.ID, true)
	assert.True(t, apperrors.IsInvalidArg(err))
}

func TestFavoriteToggleAndList(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	sent, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "fav me"})
	require.NoError(t, err)

	fav, err := env.pipeline.Favorite(ctx, 2, sent.ID)
	require.NoError(t, err)
	assert.True(t, fav)

	list, err := env.pipeline.FavoriteList(ctx, 2, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, sent.ID, list[0].ID)

	fav, err = env.pipeline.Favorite(ctx, 2, sent.ID)
	require.NoError(t, err)
	assert.False(t, fav)

	list, err = env.pipeline.FavoriteList(ctx, 2, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestArchiveMuteColorDefaults(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Defaults synthesized with no row.
	entry, err := env.pipeline.ConversationSettings(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, entry.Notify)
	assert.True(t, entry.CallChat)
	assert.False(t, entry.Archive)
	assert.False(t, entry.Pin)

	require.NoError(t, env.pipeline.Archive(ctx, 1, 2, true))
	require.NoError(t, env.pipeline.Mute(ctx, 1, 2, "notify", false))
	require.NoError(t, env.pipeline.SetColor(ctx, 1, 2, "#7849ff"))

	mine, err := env.pipeline.ConversationSettings(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, mine.Archive)
	assert.False(t, mine.Notify)
	assert.Equal(t, "#7849ff", mine.Color)

	// Archive and mute are asymmetric; color is shared.
	theirs, err := env.pipeline.ConversationSettings(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, theirs.Archive)
	assert.True(t, theirs.Notify)
	assert.Equal(t, "#7849ff", theirs.Color)
}

func TestTypingRelay(t *testing.T) {
	env := newTestEnv()

	require.NoError(t, env.pipeline.Typing(context.Background(), 1, 2, false))
	require.NoError(t, env.pipeline.Typing(context.Background(), 1, 2, true))

	events := env.publisher.forUser(2)
	require.Len(t, events, 2)
	assert.Equal(t, EventTyping, events[0].Event)
	assert.Equal(t, EventTypingDone, events[1].Event)
	assert.Empty(t, env.publisher.forUser(1))
}

func TestLoadMorePaginates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		w, err := env.pipeline.Send(ctx, SendRequest{FromID: 1, ToID: 2, Text: "m"})
		require.NoError(t, err)
		ids = append(ids, w.ID)
	}

	page, err := env.pipeline.LoadMore(ctx, 2, 1, ids[3], 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	// Chronological order, strictly before the cursor.
	assert.Equal(t, ids[1], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)
}
