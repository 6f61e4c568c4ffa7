package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-client/internal/wire"
)

type HistoryClientMock struct {
	mock.Mock
}

func (m *HistoryClientMock) Messages(ctx context.Context, roomID string) ([]wire.Raw, error) {
	args := m.Called(ctx, roomID)
	var raws []wire.Raw
	if val := args.Get(0); val != nil {
		raws = val.([]wire.Raw)
	}
	return raws, args.Error(1)
}

func (m *HistoryClientMock) SendMessage(ctx context.Context, roomID, userID, userFullName, text string) (wire.Raw, error) {
	args := m.Called(ctx, roomID, userID, userFullName, text)
	var raw wire.Raw
	if val := args.Get(0); val != nil {
		raw = val.(wire.Raw)
	}
	return raw, args.Error(1)
}

type ArchiverMock struct {
	mock.Mock
}

func (m *ArchiverMock) Store(ctx context.Context, roomID string, msg wire.Message) error {
	args := m.Called(ctx, roomID, msg)
	return args.Error(0)
}
