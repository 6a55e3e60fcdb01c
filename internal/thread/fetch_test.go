package thread

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"thread-sync/internal/mocks"
	"thread-sync/internal/models"
	"thread-sync/internal/repositories"
)

func newTestThread(tb testing.TB, log *mocks.MessageLogMock) *Thread {
	tb.Helper()
	s := NewStore(log, nil, DefaultPageSize)
	return s.Thread(ModelThread, 1, 10)
}

// seedLoaded puts a thread directly into the loaded state with the given
// persisted window, bypassing the transport.
func seedLoaded(th *Thread, hasOlder, hasNewer bool, ids ...int) {
	msgs := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, persisted(id))
	}
	th.mu.Lock()
	th.window.reset(msgs)
	th.window.hasOlder = hasOlder
	th.window.hasNewer = hasNewer
	th.isLoaded = true
	th.status = statusReady
	th.mu.Unlock()
}

// newestFirst builds a transport page: ids are listed newest to oldest, the
// way FetchMessages returns them.
func newestFirst(ids ...int) []models.Message {
	msgs := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, persisted(id))
	}
	return msgs
}

func messageIDs(msgs []models.Message) []int {
	ids := make([]int, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func beforeReq(anchor int) interface{} {
	return mock.MatchedBy(func(req repositories.FetchRequest) bool {
		return req.Before != nil && *req.Before == anchor && req.After == nil && req.Around == nil
	})
}

func afterReq(anchor int) interface{} {
	return mock.MatchedBy(func(req repositories.FetchRequest) bool {
		return req.After != nil && *req.After == anchor && req.Before == nil && req.Around == nil
	})
}

func aroundReq(target int) interface{} {
	return mock.MatchedBy(func(req repositories.FetchRequest) bool {
		return req.Around != nil && *req.Around == target
	})
}

func unanchoredReq(limit int) interface{} {
	return mock.MatchedBy(func(req repositories.FetchRequest) bool {
		return req.Before == nil && req.After == nil && req.Around == nil && req.Limit == limit
	})
}

func TestLoadAroundNewestOnEmptyThread(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, unanchoredReq(2*DefaultPageSize)).
		Return([]models.Message{}, nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	require.NoError(t, th.LoadAround(context.Background(), nil))

	assert.True(t, th.IsLoaded())
	assert.Empty(t, th.Messages())
	assert.True(t, th.HasOlder())
	assert.False(t, th.HasNewer())
	log.AssertExpectations(t)
}

func TestFetchOlderOnEmptyWindowLoadsNewestPage(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, unanchoredReq(2*DefaultPageSize)).
		Return([]models.Message{}, nil).Once()
	log.On("FetchMessages", mock.Anything, unanchoredReq(DefaultPageSize)).
		Return(newestFirst(110, 109, 108, 107, 106, 105, 104, 103, 102, 101), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	require.NoError(t, th.LoadAround(context.Background(), nil))
	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionOlder))

	assert.Equal(t, []int{101, 102, 103, 104, 105, 106, 107, 108, 109, 110}, messageIDs(th.Messages()))
	assert.False(t, th.HasOlder())
	assert.False(t, th.HasNewer())
	log.AssertExpectations(t)
}

func TestFetchOlderPrependsAndClosesBoundary(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, beforeReq(100)).
		Return(newestFirst(99, 98, 97, 96, 95, 94, 93, 92, 91, 90), nil).Once()

	th := newTestThread(t, log)
	seedLoaded(th, true, false, 100, 101, 102, 103, 104)

	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionOlder))

	assert.Equal(t, []int{90, 91, 92, 93, 94, 95, 96, 97, 98, 99, 100, 101, 102, 103, 104},
		messageIDs(th.Messages()))
	assert.False(t, th.HasOlder())
	log.AssertExpectations(t)
}

func TestFetchOlderFullPageKeepsBoundary(t *testing.T) {
	page := make([]int, DefaultPageSize)
	for i := range page {
		page[i] = 99 - i
	}
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, beforeReq(100)).
		Return(newestFirst(page...), nil).Once()

	th := newTestThread(t, log)
	seedLoaded(th, true, false, 100, 101)

	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionOlder))

	assert.True(t, th.HasOlder())
	assert.Len(t, th.Messages(), DefaultPageSize+2)
	log.AssertExpectations(t)
}

func TestFetchSkipsWhenEdgeKnown(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, false, false, 100, 101)

	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionOlder))
	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionNewer))

	log.AssertNotCalled(t, "FetchMessages", mock.Anything, mock.Anything)
}

func TestFetchNewerMergesOverlapIdempotently(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, afterReq(104)).
		Return(newestFirst(107, 106, 105, 104), nil).Once()

	th := newTestThread(t, log)
	seedLoaded(th, false, true, 100, 101, 102, 103, 104)

	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionNewer))

	assert.Equal(t, []int{100, 101, 102, 103, 104, 105, 106, 107}, messageIDs(th.Messages()))
	assert.False(t, th.HasNewer())
	log.AssertExpectations(t)
}

func TestFetchOlderAbortsWhenWindowReplaced(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, true, false, 100, 101, 102)

	log.On("FetchMessages", mock.Anything, beforeReq(100)).
		Run(func(mock.Arguments) {
			// A jump-to-message lands while the continuation fetch is
			// suspended and replaces the window.
			th.mu.Lock()
			th.window.reset([]models.Message{persisted(500)})
			th.mu.Unlock()
		}).
		Return(newestFirst(99, 98), nil).Once()

	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionOlder))

	assert.Equal(t, []int{500}, messageIDs(th.Messages()))
	log.AssertExpectations(t)
}

func TestPushBuffersUntilNewerEdgeConfirmed(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, false, true, 100, 101, 102)

	pushed := persisted(108)
	th.HandlePush(pushed)
	assert.Equal(t, []int{100, 101, 102}, messageIDs(th.Messages()))

	log.On("FetchMessages", mock.Anything, afterReq(102)).
		Return(newestFirst(105, 104, 103), nil).Once()
	require.NoError(t, th.FetchMoreMessages(context.Background(), DirectionNewer))

	assert.Equal(t, []int{100, 101, 102, 103, 104, 105, 108}, messageIDs(th.Messages()))
	assert.False(t, th.HasNewer())

	th.mu.Lock()
	buffered := th.pending.len()
	th.mu.Unlock()
	assert.Zero(t, buffered)
	log.AssertExpectations(t)
}

func TestPushBufferClearedOnFailedNewerFetch(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, false, true, 100, 101)

	th.HandlePush(persisted(108))

	log.On("FetchMessages", mock.Anything, afterReq(101)).
		Return(nil, errors.New("log unavailable")).Once()
	require.Error(t, th.FetchMoreMessages(context.Background(), DirectionNewer))

	assert.True(t, th.HasLoadingFailed())
	assert.Equal(t, []int{100, 101}, messageIDs(th.Messages()))

	th.mu.Lock()
	buffered := th.pending.len()
	th.mu.Unlock()
	assert.Zero(t, buffered)
	log.AssertExpectations(t)
}

func TestPushInsertsDirectlyAtNewestEdge(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, false, false, 100, 101, 102)

	th.HandlePush(persisted(103))

	assert.Equal(t, []int{100, 101, 102, 103}, messageIDs(th.Messages()))
}

func TestPushNeedactionCountsMentionedViewerOnce(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, false, false, 100)
	seedSelfMember(th, 100)

	mention := persisted(103)
	mention.Needaction = true
	mention.MentionIDs = []int{7, 10}
	th.HandlePush(mention)
	// Broker redelivery of a message already in the window.
	th.HandlePush(mention)

	other := persisted(104)
	other.Needaction = true
	other.MentionIDs = []int{7}
	th.HandlePush(other)

	th.mu.Lock()
	count := th.selfMemberLocked().NeedactionCount
	th.mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestPushNeedactionCountedOnceWhileBuffered(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, false, true, 100)
	seedSelfMember(th, 100)

	mention := persisted(108)
	mention.Needaction = true
	mention.MentionIDs = []int{10}
	th.HandlePush(mention)
	th.HandlePush(mention)

	th.mu.Lock()
	count := th.selfMemberLocked().NeedactionCount
	buffered := th.pending.len()
	th.mu.Unlock()
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, buffered)
}

func TestPushIgnoresOtherThreads(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, false, false, 100)

	other := persisted(200)
	other.ThreadID = 99
	th.HandlePush(other)

	assert.Equal(t, []int{100}, messageIDs(th.Messages()))
}

func TestLoadAroundNarrowsExhaustedSides(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, aroundReq(200)).
		Return(newestFirst(203, 202, 201, 200, 199, 198, 197, 196, 195), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	require.NoError(t, th.LoadAround(context.Background(), intPtr(200)))

	assert.Equal(t, []int{195, 196, 197, 198, 199, 200, 201, 202, 203}, messageIDs(th.Messages()))
	assert.False(t, th.HasOlder())
	assert.False(t, th.HasNewer())
	log.AssertExpectations(t)
}

func TestLoadAroundFullSidesKeepBoundaries(t *testing.T) {
	ids := make([]int, 0, 2*DefaultPageSize-1)
	for id := 229; id >= 171; id-- {
		ids = append(ids, id)
	}
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, aroundReq(200)).
		Return(newestFirst(ids...), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	require.NoError(t, th.LoadAround(context.Background(), intPtr(200)))

	assert.True(t, th.HasOlder())
	assert.True(t, th.HasNewer())
	log.AssertExpectations(t)
}

func TestLoadAroundSkipsWhenTargetCovered(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, true, true, 100, 101, 102, 103, 104, 105)

	require.NoError(t, th.LoadAround(context.Background(), intPtr(103)))

	log.AssertNotCalled(t, "FetchMessages", mock.Anything, mock.Anything)
}

func TestFetchNewUnanchoredFullPage(t *testing.T) {
	ids := make([]int, DefaultPageSize)
	for i := range ids {
		ids[i] = 130 - i
	}
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, unanchoredReq(DefaultPageSize)).
		Return(newestFirst(ids...), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	require.NoError(t, th.FetchNewMessages(context.Background()))

	assert.True(t, th.IsLoaded())
	assert.True(t, th.HasOlder())
	assert.False(t, th.HasNewer())
	log.AssertExpectations(t)
}

func TestFetchNewAnchoredCatchesUp(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, afterReq(102)).
		Return(newestFirst(104, 103), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	seedLoaded(th, false, true, 100, 101, 102)

	require.NoError(t, th.FetchNewMessages(context.Background()))

	assert.Equal(t, []int{100, 101, 102, 103, 104}, messageIDs(th.Messages()))
	assert.False(t, th.HasNewer())
	log.AssertExpectations(t)
}

func TestFetchNewSkipsCoveredRange(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, unanchoredReq(DefaultPageSize)).
		Return(newestFirst(205, 203, 202), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	// 201-203 were deleted from the log after this window materialized; a
	// lagging replica still returns two of them. Covered ids must not
	// resurrect.
	th.mu.Lock()
	th.window.reset([]models.Message{persisted(200), persisted(204)})
	th.mu.Unlock()

	require.NoError(t, th.FetchNewMessages(context.Background()))

	assert.Equal(t, []int{200, 204, 205}, messageIDs(th.Messages()))
	assert.False(t, th.HasOlder())
	log.AssertExpectations(t)
}

func TestWindowEventsReachNotifier(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, unanchoredReq(2*DefaultPageSize)).
		Return(newestFirst(101, 100), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	notifier := &mocks.NotifierMock{}
	notifier.On("PublishWindowEvent", mock.MatchedBy(func(ev models.WindowEvent) bool {
		return ev.Type == models.EventWindowReplaced && ev.ThreadID == 1
	})).Return().Once()
	notifier.On("PublishWindowEvent", mock.MatchedBy(func(ev models.WindowEvent) bool {
		return ev.Type == models.EventMessageAdded && ev.Message != nil && ev.Message.ID == 102
	})).Return().Once()

	s := NewStore(log, notifier, DefaultPageSize)
	th := s.Thread(ModelThread, 1, 10)

	require.NoError(t, th.LoadAround(context.Background(), nil))
	th.HandlePush(persisted(102))

	notifier.AssertExpectations(t)
}

func TestFetchNewChannelNoopOnceLoaded(t *testing.T) {
	log := &mocks.MessageLogMock{}
	s := NewStore(log, nil, DefaultPageSize)
	th := s.Thread(ModelChannel, 1, 10)
	seedLoaded(th, false, false, 100)

	require.NoError(t, th.FetchNewMessages(context.Background()))

	log.AssertNotCalled(t, "FetchMessages", mock.Anything, mock.Anything)
}

func TestTransientSurvivesWindowReplace(t *testing.T) {
	log := &mocks.MessageLogMock{}
	log.On("FetchMessages", mock.Anything, unanchoredReq(2*DefaultPageSize)).
		Return(newestFirst(102, 101, 100), nil).Once()
	log.On("ListMembers", mock.Anything, 1).Return([]models.ThreadMember{}, nil).Maybe()

	th := newTestThread(t, log)
	seedLoaded(th, false, true, 50)
	th.AddTransient(models.Message{ID: 51, AuthorID: 10, Body: "typing"})

	require.NoError(t, th.LoadAround(context.Background(), nil))

	assert.Equal(t, []int{51, 100, 101, 102}, messageIDs(th.Messages()))
	log.AssertExpectations(t)
}

func intPtr(v int) *int { return &v }
