package reflection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/gita-reflect/internal/agent"
	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/shared"
	"github.com/ashureev/gita-reflect/internal/store"
)

// scriptedResponder returns queued replies in order, then a default reply.
type scriptedResponder struct {
	mu      sync.Mutex
	replies []*agent.Reply
	err     error
	calls   atomic.Int32
	delay   time.Duration
	seen    [][]domain.Message
}

func (r *scriptedResponder) Name() string { return "scripted" }

func (r *scriptedResponder) Respond(_ context.Context, history []domain.Message) (*agent.Reply, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, append([]domain.Message(nil), history...))
	if r.err != nil {
		return nil, r.err
	}
	if len(r.replies) == 0 {
		return &agent.Reply{Message: "Tell me more.", Options: []string{"Okay"}}, nil
	}
	next := r.replies[0]
	r.replies = r.replies[1:]
	return next, nil
}

func intPtr(v int) *int { return &v }

func verseReply(query string) *agent.Reply {
	return &agent.Reply{
		Message:         "Here is a verse to sit with.",
		Options:         []string{"Thank you"},
		ShouldShowVerse: true,
		VerseQuery:      query,
	}
}

type failingSearch struct {
	store.VerseRepository
}

func (failingSearch) SearchVerses(context.Context, string) ([]domain.Verse, error) {
	return nil, shared.StorageUnavailable(errors.New("disk gone"))
}

func newTestService(t *testing.T, responder agent.Responder, opts Options) (*Service, *store.MemoryStore) {
	t.Helper()
	mem, err := store.NewMemory()
	require.NoError(t, err)
	return NewService(mem, mem, responder, opts), mem
}

func TestStartAndGet(t *testing.T) {
	svc, _ := newTestService(t, &scriptedResponder{}, Options{})
	ctx := context.Background()

	conv, err := svc.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", conv.SessionID)

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Zero(t, got.CurrentStep)
	assert.Zero(t, got.ProgressPercentage)
	assert.Nil(t, got.SelectedVerseID)

	again, err := svc.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
}

func TestStartGeneratesSessionID(t *testing.T) {
	svc, _ := newTestService(t, &scriptedResponder{}, Options{})

	conv, err := svc.Start(context.Background(), "")
	require.NoError(t, err)
	_, err = uuid.Parse(conv.SessionID)
	assert.NoError(t, err)

	_, err = svc.Start(context.Background(), "bad id")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestGetUnknown(t *testing.T) {
	svc, _ := newTestService(t, &scriptedResponder{}, Options{})
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.Get(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubmitEmptyMessage(t *testing.T) {
	responder := &scriptedResponder{}
	svc, mem := newTestService(t, responder, Options{})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.SubmitMessage(ctx, "s1", text)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	}

	conv, err := mem.GetConversation(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.Zero(t, conv.CurrentStep)
	assert.Zero(t, responder.calls.Load())
}

func TestSubmitUnknownSession(t *testing.T) {
	svc, mem := newTestService(t, &scriptedResponder{}, Options{})
	ctx := context.Background()

	_, err := svc.SubmitMessage(ctx, "ghost", "hello")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = mem.GetConversation(ctx, "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubmitSuccessfulTurn(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	responder := &scriptedResponder{}
	svc, _ := newTestService(t, responder, Options{Clock: func() time.Time { return now }})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	res, err := svc.SubmitMessage(ctx, "s1", "  I feel anxious about my exam  ")
	require.NoError(t, err)

	conv := res.Conversation
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, domain.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "I feel anxious about my exam", conv.Messages[0].Content)
	assert.True(t, conv.Messages[0].Timestamp.Equal(now))
	assert.Equal(t, domain.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "Tell me more.", conv.Messages[1].Content)
	assert.Equal(t, 1, conv.CurrentStep)
	assert.Equal(t, 20, conv.ProgressPercentage)
	assert.Nil(t, res.Verse)

	require.Len(t, responder.seen, 1)
	require.Len(t, responder.seen[0], 1, "responder sees the history including the new user message")
	assert.Equal(t, "I feel anxious about my exam", responder.seen[0][0].Content)
}

func TestSubmitProgressClamped(t *testing.T) {
	responder := &scriptedResponder{replies: []*agent.Reply{
		{Message: "a", Options: []string{}, Progress: intPtr(150)},
		{Message: "b", Options: []string{}, Progress: intPtr(-5)},
		{Message: "c", Options: []string{}},
	}}
	svc, _ := newTestService(t, responder, Options{})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	res, err := svc.SubmitMessage(ctx, "s1", "one")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Conversation.ProgressPercentage)

	res, err = svc.SubmitMessage(ctx, "s1", "two")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Conversation.ProgressPercentage)

	res, err = svc.SubmitMessage(ctx, "s1", "three")
	require.NoError(t, err)
	assert.Equal(t, 20, res.Conversation.ProgressPercentage)
	assert.Equal(t, 3, res.Conversation.CurrentStep)
	assert.Len(t, res.Conversation.Messages, 6)
}

func TestSubmitResolvesVerse(t *testing.T) {
	responder := &scriptedResponder{replies: []*agent.Reply{verseReply("karma")}}
	svc, mem := newTestService(t, responder, Options{})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	res, err := svc.SubmitMessage(ctx, "s1", "I keep worrying about results")
	require.NoError(t, err)

	require.NotNil(t, res.Verse)
	assert.Contains(t, res.Verse.Translation, "fruits of action")
	require.NotNil(t, res.Conversation.SelectedVerseID)
	assert.Equal(t, res.Verse.ID, *res.Conversation.SelectedVerseID)

	stored, err := mem.GetConversation(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, stored.SelectedVerseID)
	assert.Equal(t, res.Verse.ID, *stored.SelectedVerseID)
}

func TestSubmitVerseIsSticky(t *testing.T) {
	for _, overwrite := range []bool{false, true} {
		t.Run(fmt.Sprintf("overwrite=%v", overwrite), func(t *testing.T) {
			responder := &scriptedResponder{replies: []*agent.Reply{verseReply("karma"), verseReply("soul")}}
			svc, _ := newTestService(t, responder, Options{VerseOverwrite: overwrite})
			ctx := context.Background()
			_, err := svc.Start(ctx, "s1")
			require.NoError(t, err)

			first, err := svc.SubmitMessage(ctx, "s1", "one")
			require.NoError(t, err)
			second, err := svc.SubmitMessage(ctx, "s1", "two")
			require.NoError(t, err)

			require.NotNil(t, second.Verse)
			assert.Equal(t, 20, second.Verse.VerseNumber)
			want := first.Verse.ID
			if overwrite {
				want = second.Verse.ID
			}
			assert.Equal(t, want, *second.Conversation.SelectedVerseID)
		})
	}
}

func TestSubmitVerseWithoutMatchOrQuery(t *testing.T) {
	responder := &scriptedResponder{replies: []*agent.Reply{
		verseReply("nonexistent-term-xyz"),
		verseReply(""),
		{Message: "m", Options: []string{}, VerseQuery: "karma"},
	}}
	svc, _ := newTestService(t, responder, Options{})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	for i := range 3 {
		res, err := svc.SubmitMessage(ctx, "s1", "msg")
		require.NoError(t, err)
		assert.Nil(t, res.Verse)
		assert.Nil(t, res.Conversation.SelectedVerseID)
		assert.Equal(t, i+1, res.Conversation.CurrentStep)
	}
}

func TestSubmitResponderFailurePersistsNothing(t *testing.T) {
	responder := &scriptedResponder{err: errors.New("model unavailable")}
	svc, mem := newTestService(t, responder, Options{})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	_, err = svc.SubmitMessage(ctx, "s1", "hello")
	assert.ErrorIs(t, err, shared.ErrProcessingFailed)

	conv, err := mem.GetConversation(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
	assert.Zero(t, conv.CurrentStep)
	assert.Zero(t, conv.ProgressPercentage)
}

func TestSubmitSearchFailurePersistsNothing(t *testing.T) {
	mem, err := store.NewMemory()
	require.NoError(t, err)
	responder := &scriptedResponder{replies: []*agent.Reply{verseReply("duty")}}
	svc := NewService(mem, failingSearch{mem}, responder, Options{})
	ctx := context.Background()
	_, err = svc.Start(ctx, "s1")
	require.NoError(t, err)

	_, err = svc.SubmitMessage(ctx, "s1", "hello")
	assert.ErrorIs(t, err, shared.ErrStorageUnavailable)

	conv, err := mem.GetConversation(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestEndToEndReflection(t *testing.T) {
	responder := &scriptedResponder{replies: []*agent.Reply{
		{Message: "Let's explore this together. What about the exam worries you most?", Options: []string{"Failing", "Disappointing others"}},
		{Message: "What would it mean to focus only on your effort?", Options: []string{"Less pressure", "I am not sure"}},
		{Message: "You have named something important.", Options: []string{"Show me"}, ShouldShowVerse: true, VerseQuery: "duty"},
	}}
	svc, _ := newTestService(t, responder, Options{})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	res, err := svc.SubmitMessage(ctx, "s1", "I feel anxious about my exam")
	require.NoError(t, err)
	assert.Equal(t, 20, res.Conversation.ProgressPercentage)

	res, err = svc.SubmitMessage(ctx, "s1", "I am afraid of failing")
	require.NoError(t, err)
	assert.Equal(t, 40, res.Conversation.ProgressPercentage)
	assert.Nil(t, res.Verse)

	res, err = svc.SubmitMessage(ctx, "s1", "I just want to do my part well")
	require.NoError(t, err)
	require.NotNil(t, res.Verse)
	assert.Equal(t, 47, res.Verse.VerseNumber)
	assert.Equal(t, 3, res.Conversation.CurrentStep)
	assert.Equal(t, 60, res.Conversation.ProgressPercentage)
	assert.Len(t, res.Conversation.Messages, 6)
}

func TestConcurrentTurnsOnOneSession(t *testing.T) {
	responder := &scriptedResponder{delay: 2 * time.Millisecond}
	svc, mem := newTestService(t, responder, Options{})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	const turns = 12
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SubmitMessage(ctx, "s1", fmt.Sprintf("message %d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	conv, err := mem.GetConversation(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, turns, conv.CurrentStep)
	assert.Len(t, conv.Messages, 2*turns)
	assert.Equal(t, 100, conv.ProgressPercentage)
	assert.Zero(t, svc.locks.size())
}

func TestSessionLockRespectsContext(t *testing.T) {
	locks := newSessionLocks()
	unlock, err := locks.lock(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.lock(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := locks.lock(context.Background(), "s2")
	require.NoError(t, err)
	other()

	unlock()
	unlock()
	assert.Zero(t, locks.size())
}

func TestMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	responder := &scriptedResponder{replies: []*agent.Reply{verseReply("karma")}}
	svc, _ := newTestService(t, responder, Options{Metrics: metrics})
	ctx := context.Background()
	_, err := svc.Start(ctx, "s1")
	require.NoError(t, err)

	_, err = svc.SubmitMessage(ctx, "s1", "hello")
	require.NoError(t, err)
	_, err = svc.SubmitMessage(ctx, "s1", " ")
	require.Error(t, err)
	_, err = svc.SubmitMessage(ctx, "nobody", "hello")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Turns.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Turns.WithLabelValues(OutcomeInvalidInput)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Turns.WithLabelValues(OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.VersesResolved))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.ResponderLatency))
}
