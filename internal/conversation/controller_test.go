// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/settings"
	"github.com/jeranaias/rigchat/internal/stream"
	"github.com/jeranaias/rigchat/internal/transport"
	"github.com/jeranaias/rigchat/internal/transport/transporttest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeDirectory struct {
	mu        sync.Mutex
	refreshed []string
	deleted   []string
	deleteErr error
	updated   map[string]model.ContextSettings
}

func (d *fakeDirectory) Refresh(ctx context.Context, ref string) (*model.ChatSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshed = append(d.refreshed, ref)
	return &model.ChatSession{ID: ref, URL: "url-" + ref, Title: "refreshed " + ref}, nil
}

func (d *fakeDirectory) DeleteChat(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deleteErr != nil {
		return d.deleteErr
	}
	d.deleted = append(d.deleted, id)
	return nil
}

func (d *fakeDirectory) UpdateContextSettings(ctx context.Context, id string, cs model.ContextSettings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.updated == nil {
		d.updated = map[string]model.ContextSettings{}
	}
	d.updated[id] = cs
	return nil
}

func (d *fakeDirectory) refreshCalls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.refreshed...)
}

func streamingModel() *model.ModelCapability {
	return &model.ModelCapability{ID: "1", Name: "test", EnableStreaming: true, EnableContext: true}
}

func unaryModel() *model.ModelCapability {
	return &model.ModelCapability{ID: "2", Name: "unary", EnableStreaming: false, EnableContext: true}
}

func newController(t *testing.T, fake *transporttest.Fake, capability *model.ModelCapability) (*Controller, *fakeDirectory) {
	t.Helper()
	dir := &fakeDirectory{}
	c := New(Config{Transport: fake, Directory: dir})
	if capability != nil {
		c.SelectModel(capability)
	}
	return c, dir
}

func wait(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func lastMessage(t *testing.T, c *Controller) model.Message {
	t.Helper()
	m, ok := c.Timeline().Snapshot().Last()
	require.True(t, ok)
	return m
}

func wellFormed(ref string, parts ...string) [][]byte {
	var events []stream.Event
	for _, p := range parts {
		events = append(events, stream.Content(p))
	}
	events = append(events, stream.Done(ref))
	return transporttest.Frames(events...)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestSend_WhitespaceRejected(t *testing.T) {
	fake := &transporttest.Fake{}
	c, _ := newController(t, fake, streamingModel())

	err := c.Send(context.Background(), "   \n\t")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 0, c.Timeline().Len())
	assert.Equal(t, 0, fake.Calls())
	assert.Equal(t, StateIdle, c.State())
}

func TestSend_NoModel(t *testing.T) {
	fake := &transporttest.Fake{}
	c, _ := newController(t, fake, nil)

	err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoModel)

	snap := c.Timeline().Snapshot()
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, model.RoleAssistant, snap.At(0).Role)
	assert.Equal(t, NoModelMessage, snap.At(0).Content)
	assert.Equal(t, 0, fake.Calls())
	assert.Equal(t, StateIdle, c.State())
}

// =============================================================================
// STREAMING
// =============================================================================

func TestSend_StreamingWithMalformedFrame(t *testing.T) {
	fake := &transporttest.Fake{Chunks: [][]byte{
		[]byte("data: {\"type\":\"content\",\"content\":\"Hi\"}\n\n"),
		[]byte("data: not-json\n\n"),
		[]byte("data: {\"type\":\"content\",\"content\":\" there\"}\n\n"),
		[]byte("data: {\"type\":\"done\",\"success\":true}\n\n"),
	}}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	snap := c.Timeline().Snapshot()
	require.Equal(t, 2, snap.Len())
	assert.Equal(t, "hello", snap.At(0).Content)
	assert.Equal(t, model.StatusComplete, snap.At(0).Status)
	assert.Equal(t, "Hi there", snap.At(1).Content)
	assert.Equal(t, model.StatusComplete, snap.At(1).Status)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 1, fake.StreamCalls())
}

func TestSend_ConcatenationLaw(t *testing.T) {
	parts := []string{"a", "bc", "", "d\n", "ünï", "çødé", " end"}
	fake := &transporttest.Fake{Chunks: wellFormed("", parts...)}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "go"))
	wait(t, c)

	assert.Equal(t, strings.Join(parts, ""), lastMessage(t, c).Content)
}

func TestSend_SplitChunks(t *testing.T) {
	whole := wellFormed("", "split ", "frames")
	var joined []byte
	for _, ch := range whole {
		joined = append(joined, ch...)
	}
	// re-cut at arbitrary points
	var chunks [][]byte
	for i := 0; i < len(joined); i += 7 {
		end := min(i+7, len(joined))
		chunks = append(chunks, joined[i:end])
	}

	fake := &transporttest.Fake{Chunks: chunks}
	c, _ := newController(t, fake, streamingModel())
	require.NoError(t, c.Send(context.Background(), "go"))
	wait(t, c)

	assert.Equal(t, "split frames", lastMessage(t, c).Content)
}

func TestSend_StreamErrorEvent(t *testing.T) {
	fake := &transporttest.Fake{Chunks: [][]byte{
		[]byte("data: {\"type\":\"content\",\"content\":\"partial\"}\n\n"),
		[]byte("data: {\"type\":\"error\",\"success\":false,\"error\":\"HTTP 500\"}\n\n"),
	}}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	msg := lastMessage(t, c)
	assert.Equal(t, StreamFailureMessage, msg.Content)
	assert.Equal(t, model.StatusErrored, msg.Status)
	assert.Equal(t, StateIdle, c.State())
}

func TestSend_StreamEndsWithoutDone(t *testing.T) {
	fake := &transporttest.Fake{Chunks: [][]byte{
		[]byte("data: {\"type\":\"content\",\"content\":\"partial\"}\n\n"),
	}}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	msg := lastMessage(t, c)
	assert.Equal(t, model.StatusErrored, msg.Status)
	assert.Equal(t, StreamFailureMessage, msg.Content)
}

func TestSend_StreamStartFails(t *testing.T) {
	fake := &transporttest.Fake{StartErr: &transport.TransportError{Type: transport.ErrTypeStatus, StatusCode: 502, Message: "bad gateway"}}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	assert.Equal(t, model.StatusErrored, lastMessage(t, c).Status)

	// session still usable
	fake.StartErr = nil
	fake.Chunks = wellFormed("", "ok")
	require.NoError(t, c.Send(context.Background(), "again"))
	wait(t, c)
	assert.Equal(t, "ok", lastMessage(t, c).Content)
	assert.Equal(t, 4, c.Timeline().Len())
}

func TestSend_DoneWithoutContentUsesFallback(t *testing.T) {
	fake := &transporttest.Fake{Chunks: wellFormed("")}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	msg := lastMessage(t, c)
	assert.Equal(t, transport.FallbackReply, msg.Content)
	assert.Equal(t, model.StatusComplete, msg.Status)
}

func TestSend_StatusIsMonotonic(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("", "a", "b", "c"), Gate: gate}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "hello"))
	placeholder := lastMessage(t, c)
	assert.Equal(t, model.StatusPending, placeholder.Status)

	var seen []model.Status
	for i := 0; i < 4; i++ {
		gate <- struct{}{}
		require.Eventually(t, func() bool {
			m, _ := c.Timeline().Get(placeholder.ID)
			return m.Status != model.StatusPending
		}, 2*time.Second, 5*time.Millisecond)
		m, _ := c.Timeline().Get(placeholder.ID)
		seen = append(seen, m.Status)
	}
	wait(t, c)

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, int(seen[i]), int(seen[i-1]), "status went backwards: %v", seen)
	}
	m, _ := c.Timeline().Get(placeholder.ID)
	assert.Equal(t, model.StatusComplete, m.Status)
	assert.Equal(t, "abc", m.Content)
}

// =============================================================================
// UNARY
// =============================================================================

func TestSend_Unary(t *testing.T) {
	fake := &transporttest.Fake{Unary: transport.UnaryResult{Reply: "pong"}}
	c, _ := newController(t, fake, unaryModel())

	require.NoError(t, c.Send(context.Background(), "ping"))
	wait(t, c)

	msg := lastMessage(t, c)
	assert.Equal(t, "pong", msg.Content)
	assert.Equal(t, model.StatusComplete, msg.Status)
	assert.Equal(t, 1, fake.UnaryCalls())
	assert.Equal(t, 0, fake.StreamCalls())
}

func TestSend_UnaryFailure(t *testing.T) {
	fake := &transporttest.Fake{UnaryErr: transporttest.ErrScripted}
	c, _ := newController(t, fake, unaryModel())

	require.NoError(t, c.Send(context.Background(), "ping"))
	wait(t, c)

	msg := lastMessage(t, c)
	assert.Equal(t, UnaryFailureMessage, msg.Content)
	assert.Equal(t, model.StatusErrored, msg.Status)
	assert.Equal(t, StateIdle, c.State())
}

func TestSend_StreamingPreferenceOff(t *testing.T) {
	fake := &transporttest.Fake{Unary: transport.UnaryResult{Reply: "unary"}}
	c, _ := newController(t, fake, streamingModel())
	require.True(t, c.Toggle(settings.FeatureStreaming, false))

	require.NoError(t, c.Send(context.Background(), "ping"))
	wait(t, c)
	assert.Equal(t, 1, fake.UnaryCalls())
	assert.Equal(t, "unary", lastMessage(t, c).Content)
}

// =============================================================================
// SESSION ADOPTION
// =============================================================================

func TestSend_AdoptsSessionFromDone(t *testing.T) {
	fake := &transporttest.Fake{Chunks: wellFormed("42", "hi")}
	c, dir := newController(t, fake, streamingModel())
	require.True(t, c.Session().IsDraft())

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	sess := c.Session()
	assert.Equal(t, "42", sess.ID)
	assert.Equal(t, "refreshed 42", sess.Title)
	assert.Equal(t, []string{"42"}, dir.refreshCalls())
	assert.Equal(t, 2, c.Timeline().Len(), "in-memory messages survive adoption")

	// next turn addresses the adopted chat
	fake.Chunks = wellFormed("", "again")
	require.NoError(t, c.Send(context.Background(), "more"))
	wait(t, c)
	reqs := fake.Requests()
	assert.Equal(t, "url-42", reqs[1].SessionRef)
}

func TestSend_AdoptsSessionFromUnary(t *testing.T) {
	fake := &transporttest.Fake{Unary: transport.UnaryResult{Reply: "pong", SessionRef: "abc"}}
	c, dir := newController(t, fake, unaryModel())

	require.NoError(t, c.Send(context.Background(), "ping"))
	wait(t, c)

	assert.Equal(t, "abc", c.Session().ID)
	assert.Equal(t, []string{"abc"}, dir.refreshCalls())
}

func TestSend_NoAdoptionForPersistedSession(t *testing.T) {
	fake := &transporttest.Fake{Chunks: wellFormed("99", "hi")}
	c, dir := newController(t, fake, streamingModel())
	c.SwitchSession(&model.ChatSession{ID: "7", Title: "existing"}, nil)

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	assert.Equal(t, "7", c.Session().ID)
	assert.Empty(t, dir.refreshCalls())
	assert.Equal(t, "7", fake.Requests()[0].SessionRef)
}

// =============================================================================
// HISTORY
// =============================================================================

func TestSend_HistoryOnlyWithPriorMessagesAndContext(t *testing.T) {
	fake := &transporttest.Fake{Chunks: wellFormed("", "first")}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "one"))
	wait(t, c)
	fake.Chunks = wellFormed("", "second")
	require.NoError(t, c.Send(context.Background(), "two"))
	wait(t, c)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].History)
	assert.Equal(t, []model.HistoryEntry{
		{Role: model.RoleUser, Content: "one"},
		{Role: model.RoleAssistant, Content: "first"},
	}, reqs[1].History)

	// context switched off by the user
	require.True(t, c.Toggle(settings.FeatureContext, false))
	fake.Chunks = wellFormed("", "third")
	require.NoError(t, c.Send(context.Background(), "three"))
	wait(t, c)
	assert.Empty(t, fake.Requests()[2].History)
}

func TestSend_NoHistoryWhenModelLacksContext(t *testing.T) {
	capability := streamingModel()
	capability.EnableContext = false
	fake := &transporttest.Fake{Chunks: wellFormed("", "x")}
	c, _ := newController(t, fake, capability)
	c.SwitchSession(&model.ChatSession{ID: "5"}, []model.Message{
		model.NewUserMessage("old q"),
		model.NewAssistantNotice("old a"),
	})

	require.NoError(t, c.Send(context.Background(), "new"))
	wait(t, c)
	assert.Empty(t, fake.Requests()[0].History)
	assert.False(t, fake.Requests()[0].Settings.ContextEnabled)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSend_SecondSendWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("", "slow"), Gate: gate}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "first"))
	assert.Equal(t, StateStreaming, c.State())

	err := c.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 2, c.Timeline().Len())
	assert.Equal(t, 1, fake.Calls())

	close(gate)
	wait(t, c)
	assert.Equal(t, 2, c.Timeline().Len())
	assert.Equal(t, "slow", lastMessage(t, c).Content)
}

func TestSend_StaleEventsDiscardedAfterSwitch(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("1", "A1", "A2", "A3"), Gate: gate}
	c, dir := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "to A"))
	oldTimeline := c.Timeline()
	placeholder := lastMessage(t, c)

	gate <- struct{}{}
	require.Eventually(t, func() bool {
		m, _ := oldTimeline.Get(placeholder.ID)
		return m.Content == "A1"
	}, 2*time.Second, 5*time.Millisecond)

	bMessages := []model.Message{model.NewUserMessage("b question"), model.NewAssistantNotice("b answer")}
	c.SwitchSession(&model.ChatSession{ID: "B"}, bMessages)
	before := c.Timeline().Snapshot().Messages()

	close(gate)
	wait(t, c)

	after := c.Timeline().Snapshot().Messages()
	assert.Equal(t, before, after, "B's timeline must not change")
	for _, m := range after {
		assert.NotEqual(t, placeholder.ID, m.ID)
	}

	m, _ := oldTimeline.Get(placeholder.ID)
	assert.Equal(t, "A1", m.Content)
	assert.Equal(t, "B", c.Session().ID)
	assert.Empty(t, dir.refreshCalls())
	assert.Equal(t, StateIdle, c.State())
}

// startGatedTurn sends one message on a gated stream and waits until the
// first chunk has landed in the placeholder.
func startGatedTurn(t *testing.T, c *Controller, gate chan struct{}) model.Message {
	t.Helper()
	require.NoError(t, c.Send(context.Background(), "to A"))
	placeholder := lastMessage(t, c)

	gate <- struct{}{}
	tl := c.Timeline()
	require.Eventually(t, func() bool {
		m, _ := tl.Get(placeholder.ID)
		return m.Content == "A1"
	}, 2*time.Second, 5*time.Millisecond)
	return placeholder
}

func TestSend_StaleEventsDiscardedAfterNewChat(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("1", "A1", "A2", "A3"), Gate: gate}
	c, dir := newController(t, fake, streamingModel())

	startGatedTurn(t, c, gate)
	before := c.StaleDiscarded()

	c.NewChat()
	draft := c.Timeline()
	close(gate)
	wait(t, c)

	assert.Same(t, draft, c.Timeline())
	assert.Equal(t, 0, draft.Len())
	assert.True(t, c.Session().IsDraft())
	assert.Empty(t, c.Session().ID, "the abandoned turn must not adopt its session")
	assert.Greater(t, c.StaleDiscarded(), before)
	assert.Empty(t, dir.refreshCalls())
	assert.Equal(t, StateIdle, c.State())
}

func TestSend_StaleEventsDiscardedAfterDeleteActive(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("", "A1", "A2", "A3"), Gate: gate}
	c, dir := newController(t, fake, streamingModel())
	c.SwitchSession(&model.ChatSession{ID: "5"}, nil)

	startGatedTurn(t, c, gate)
	before := c.StaleDiscarded()

	require.NoError(t, c.DeleteActive(context.Background()))
	draft := c.Timeline()
	close(gate)
	wait(t, c)

	assert.Equal(t, []string{"5"}, dir.deleted)
	assert.Same(t, draft, c.Timeline())
	assert.Equal(t, 0, draft.Len())
	assert.True(t, c.Session().IsDraft())
	assert.Greater(t, c.StaleDiscarded(), before)
	assert.Equal(t, StateIdle, c.State())
}

func TestApply_StaleEpochDiscarded(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("", "x"), Gate: gate}
	c, _ := newController(t, fake, streamingModel())
	defer func() {
		close(gate)
		wait(t, c)
	}()

	require.NoError(t, c.Send(context.Background(), "hello"))
	placeholder := lastMessage(t, c)
	before := c.StaleDiscarded()

	st := c.Apply(Event{Kind: EventContent, Epoch: 999, MessageID: placeholder.ID, Text: "bogus"})
	assert.Equal(t, StateStreaming, st)

	st = c.Apply(Event{Kind: EventContent, Epoch: 0, MessageID: placeholder.ID + 1000, Text: "bogus"})
	assert.Equal(t, StateStreaming, st)

	assert.Equal(t, before+2, c.StaleDiscarded())
	m, _ := c.Timeline().Get(placeholder.ID)
	assert.Empty(t, m.Content)
}

func TestCancel_KeepsPartialText(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("", "partial", " rest"), Gate: gate}
	c, _ := newController(t, fake, streamingModel())

	require.NoError(t, c.Send(context.Background(), "hello"))
	placeholder := lastMessage(t, c)
	gate <- struct{}{}
	require.Eventually(t, func() bool {
		m, _ := c.Timeline().Get(placeholder.ID)
		return m.Content == "partial"
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, c.Cancel())
	wait(t, c)

	m, _ := c.Timeline().Get(placeholder.ID)
	assert.Equal(t, "partial", m.Content)
	assert.Equal(t, model.StatusErrored, m.Status)
	assert.Equal(t, StateIdle, c.State())
	assert.False(t, c.Cancel())
}

func TestCancel_UnaryBeforeReply(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Unary: transport.UnaryResult{Reply: "late"}, UnaryGate: gate}
	c, _ := newController(t, fake, unaryModel())
	defer close(gate)

	require.NoError(t, c.Send(context.Background(), "hello"))
	assert.Equal(t, StateAwaitingUnary, c.State())
	require.True(t, c.Cancel())
	wait(t, c)

	m := lastMessage(t, c)
	assert.Equal(t, CancelledMessage, m.Content)
	assert.Equal(t, model.StatusErrored, m.Status)
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

func TestDeleteActive(t *testing.T) {
	fake := &transporttest.Fake{}
	c, dir := newController(t, fake, streamingModel())
	c.SwitchSession(&model.ChatSession{ID: "12"}, []model.Message{model.NewUserMessage("q")})

	require.NoError(t, c.DeleteActive(context.Background()))
	assert.Equal(t, []string{"12"}, dir.deleted)
	assert.True(t, c.Session().IsDraft())
	assert.Equal(t, "1", c.Session().ModelID)
	assert.Equal(t, 0, c.Timeline().Len())
}

func TestDeleteActive_FailureKeepsSession(t *testing.T) {
	gate := make(chan struct{})
	fake := &transporttest.Fake{Chunks: wellFormed("", "A1", "A2"), Gate: gate}
	c, dir := newController(t, fake, streamingModel())
	dir.deleteErr = errors.New("backend down")
	c.SwitchSession(&model.ChatSession{ID: "12"}, []model.Message{model.NewUserMessage("q")})
	kept := c.Timeline()

	placeholder := startGatedTurn(t, c, gate)

	err := c.DeleteActive(context.Background())
	require.ErrorIs(t, err, dir.deleteErr)
	close(gate)
	wait(t, c)

	assert.Equal(t, "12", c.Session().ID)
	assert.Same(t, kept, c.Timeline())
	assert.Equal(t, 3, kept.Len())
	m, _ := kept.Get(placeholder.ID)
	assert.Equal(t, "A1", m.Content, "late chunks are discarded")
	assert.Equal(t, model.StatusErrored, m.Status)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, dir.deleted)

	dir.deleteErr = nil
	require.NoError(t, c.DeleteActive(context.Background()))
	assert.Equal(t, []string{"12"}, dir.deleted)
	assert.True(t, c.Session().IsDraft())
}

func TestModelSnapshotIsIndependent(t *testing.T) {
	capability := streamingModel()
	capability.Temperature = model.Ptr(0.4)
	capability.MaxTokens = model.Ptr(100)
	c, _ := newController(t, &transporttest.Fake{}, capability)

	*capability.Temperature = 1.9
	*capability.MaxTokens = 7
	assert.Equal(t, 0.4, *c.Model().Temperature)
	assert.Equal(t, 0.4, c.Effective().Temperature)

	got := c.Model()
	*got.Temperature = 1.5
	*got.MaxTokens = 9
	assert.Equal(t, 0.4, *c.Model().Temperature)
	assert.Equal(t, 100, *c.Model().MaxTokens)
}

func TestSet_RejectsNonFiniteNumbers(t *testing.T) {
	fake := &transporttest.Fake{Chunks: wellFormed("", "ok")}
	c, _ := newController(t, fake, streamingModel())

	for _, v := range []string{"NaN", "Inf", "-Inf"} {
		applied, err := c.Set("temperature", v)
		assert.ErrorIs(t, err, settings.ErrNotFinite, v)
		assert.False(t, applied, v)
	}
	assert.Equal(t, settings.DefaultTemperature, c.Effective().Temperature)

	require.NoError(t, c.Send(context.Background(), "hi"))
	wait(t, c)
	last := lastMessage(t, c)
	assert.Equal(t, model.StatusComplete, last.Status)
	assert.Equal(t, "ok", last.Content)
}

func TestPersistContextSettings(t *testing.T) {
	fake := &transporttest.Fake{}
	c, dir := newController(t, fake, streamingModel())
	c.SwitchSession(&model.ChatSession{ID: "3"}, nil)

	applied, err := c.Set("window_size", "6")
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, c.PersistContextSettings(context.Background()))

	cs := dir.updated["3"]
	require.NotNil(t, cs.WindowSize)
	assert.Equal(t, 6, *cs.WindowSize)
	assert.Equal(t, 6, *c.Session().Persisted.WindowSize)
}

func TestToggle_RefusedWithoutCapability(t *testing.T) {
	capability := streamingModel()
	capability.EnableContext = false
	c, _ := newController(t, &transporttest.Fake{}, capability)

	assert.False(t, c.Toggle(settings.FeatureSummary, true))
	applied, err := c.Set("smart_selection", "on")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, c.Effective().SmartSelection)
}

func TestSubscribe_SignalsOnTurnEnd(t *testing.T) {
	fake := &transporttest.Fake{Chunks: wellFormed("", "x")}
	c, _ := newController(t, fake, streamingModel())
	ch, stop := c.Subscribe()
	defer stop()

	require.NoError(t, c.Send(context.Background(), "hello"))
	wait(t, c)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
}
