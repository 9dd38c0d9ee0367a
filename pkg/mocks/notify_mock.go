package mocks

import (
	"context"

	"github.com/dukex/reviewflow/pkg/notify"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notify.Notifier interface.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, notification notify.Notification) error {
	args := m.Called(ctx, notification)

	return args.Error(0)
}

// MockMailer is a mock implementation of notify.Mailer interface.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, message notify.Message) error {
	args := m.Called(ctx, message)

	return args.Error(0)
}
