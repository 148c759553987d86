package logger

import (
	"github.com/stretchr/testify/mock"
)

// MockLogger is a testify mock implementing Logger. Tests set expectations
// with On("Warn", msg, mock.Anything) and verify with AssertExpectations.
type MockLogger struct {
	mock.Mock
}

var _ Logger = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Quiet accepts any Debug and Info call and reports InfoLevel, so that a test
// only sets expectations for the warnings and errors it cares about.
func (m *MockLogger) Quiet() *MockLogger {
	m.On("Debug", mock.Anything, mock.Anything).Maybe()
	m.On("Info", mock.Anything, mock.Anything).Maybe()
	m.On("Level").Return(InfoLevel).Maybe()

	return m
}

func (m *MockLogger) Debug(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Info(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Warn(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Error(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) Fatal(msg string, keysAndValues ...any) {
	m.Called(msg, keysAndValues)
}

func (m *MockLogger) SetLevel(level Level) {
	m.Called(level)
}

func (m *MockLogger) Level() Level {
	args := m.Called()
	return args.Get(0).(Level) //nolint:forcetypeassert
}

// With returns the mock itself unless an expectation for With is registered.
func (m *MockLogger) With(keyValues ...any) Logger {
	for _, call := range m.ExpectedCalls {
		if call.Method == "With" {
			args := m.Called(keyValues...)
			return args.Get(0).(Logger) //nolint:forcetypeassert
		}
	}

	return m
}
