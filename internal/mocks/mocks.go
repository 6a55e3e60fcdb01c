package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"thread-sync/internal/models"
	"thread-sync/internal/repositories"
)

type MessageLogMock struct {
	mock.Mock
}

func (m *MessageLogMock) FetchMessages(ctx context.Context, req repositories.FetchRequest) ([]models.Message, error) {
	args := m.Called(ctx, req)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageLogMock) PostMessage(ctx context.Context, req repositories.PostRequest) (models.Message, error) {
	args := m.Called(ctx, req)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageLogMock) MarkRead(ctx context.Context, threadID int, userID int, lastMessageID int) error {
	args := m.Called(ctx, threadID, userID, lastMessageID)
	return args.Error(0)
}

func (m *MessageLogMock) MarkAllRead(ctx context.Context, threadID int, userID int) error {
	args := m.Called(ctx, threadID, userID)
	return args.Error(0)
}

func (m *MessageLogMock) ListMembers(ctx context.Context, threadID int) ([]models.ThreadMember, error) {
	args := m.Called(ctx, threadID)
	var members []models.ThreadMember
	if val := args.Get(0); val != nil {
		members = val.([]models.ThreadMember)
	}
	return members, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) PublishWindowEvent(event models.WindowEvent) {
	m.Called(event)
}

var _ repositories.MessageLog = (*MessageLogMock)(nil)
