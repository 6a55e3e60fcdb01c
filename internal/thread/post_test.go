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

func seedSelfMember(th *Thread, seenID int) {
	th.mu.Lock()
	th.members = []models.ThreadMember{{ThreadID: th.ID, UserID: th.UserID, SeenMessageID: seenID}}
	th.membersLoaded = true
	th.mu.Unlock()
}

func postReq(body string) interface{} {
	return mock.MatchedBy(func(req repositories.PostRequest) bool {
		return req.ThreadID == 1 && req.AuthorID == 10 && req.Body == body && req.ClientToken < 0
	})
}

func TestPostReplacesPlaceholderInPlace(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, true, false, 499, 500)
	seedSelfMember(th, 500)

	log.On("PostMessage", mock.Anything, postReq("hello")).
		Run(func(mock.Arguments) {
			msgs := th.Messages()
			require.NotEmpty(t, msgs)
			last := msgs[len(msgs)-1]
			assert.Negative(t, last.ID)
			assert.Equal(t, models.MessagePending, last.Status)
		}).
		Return(models.Message{
			ID: 501, ThreadID: 1, AuthorID: 10, Body: "hello",
			Status: models.MessagePersisted,
		}, nil).Once()

	confirmed, err := th.Post(context.Background(), "hello", PostOptions{})
	require.NoError(t, err)
	assert.Equal(t, 501, confirmed.ID)

	assert.Equal(t, []int{499, 500, 501}, messageIDs(th.Messages()))

	th.mu.Lock()
	seen := th.selfMemberLocked().SeenMessageID
	th.mu.Unlock()
	assert.Equal(t, 501, seen)
	assert.Zero(t, th.UnreadCount())
	log.AssertExpectations(t)
}

func TestPostFailureKeepsPlaceholder(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, true, false, 500)
	seedSelfMember(th, 500)

	log.On("PostMessage", mock.Anything, postReq("hello")).
		Return(models.Message{}, errors.New("log unavailable")).Once()

	temp, err := th.Post(context.Background(), "hello", PostOptions{})
	require.Error(t, err)
	assert.Negative(t, temp.ID)
	assert.Equal(t, models.MessagePending, temp.Status)

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, temp.ID, msgs[1].ID)
	assert.Equal(t, models.MessagePending, msgs[1].Status)
	// Placeholders are not persisted and never count as unread.
	assert.Zero(t, th.UnreadCount())
	log.AssertExpectations(t)
}

func TestPostConfirmAfterPushDelivery(t *testing.T) {
	log := &mocks.MessageLogMock{}
	th := newTestThread(t, log)
	seedLoaded(th, true, false, 500)
	seedSelfMember(th, 500)

	confirmed := models.Message{
		ID: 501, ThreadID: 1, AuthorID: 10, Body: "hello",
		Status: models.MessagePersisted,
	}
	log.On("PostMessage", mock.Anything, postReq("hello")).
		Run(func(mock.Arguments) {
			// The bus beats the confirmation back to us.
			th.HandlePush(confirmed)
		}).
		Return(confirmed, nil).Once()

	got, err := th.Post(context.Background(), "hello", PostOptions{})
	require.NoError(t, err)
	assert.Equal(t, 501, got.ID)

	assert.Equal(t, []int{500, 501}, messageIDs(th.Messages()))
	log.AssertExpectations(t)
}

func TestTempIDsAreUniqueAndDescending(t *testing.T) {
	s := NewStore(&mocks.MessageLogMock{}, nil, DefaultPageSize)

	first := s.nextTempID()
	second := s.nextTempID()

	assert.Negative(t, first)
	assert.Less(t, second, first)
}
