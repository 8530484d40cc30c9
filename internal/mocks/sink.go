// Package mocks holds a hand-authored gomock-style mock for the encoder's
// Sink collaborator interface, in the shape mockgen generates. There is no
// mock for the decoder's SourceCallback; decoder tests pass plain closures.
package mocks

import (
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockSink is a mock of the encoder.Sink interface.
type MockSink struct {
	ctrl     *gomock.Controller
	recorder *MockSinkMockRecorder
}

// MockSinkMockRecorder is the mock recorder for MockSink.
type MockSinkMockRecorder struct {
	mock *MockSink
}

// NewMockSink creates a new mock instance.
func NewMockSink(ctrl *gomock.Controller) *MockSink {
	mock := &MockSink{ctrl: ctrl}
	mock.recorder = &MockSinkMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockSink) EXPECT() *MockSinkMockRecorder {
	return m.recorder
}

// Write mocks base method.
func (m *MockSink) Write(p []byte) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "Write", p)
}

// Write indicates an expected call of Write.
func (mr *MockSinkMockRecorder) Write(p interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Write", reflect.TypeOf((*MockSink)(nil).Write), p)
}

// End mocks base method.
func (m *MockSink) End() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "End")
}

// End indicates an expected call of End.
func (mr *MockSinkMockRecorder) End() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "End", reflect.TypeOf((*MockSink)(nil).End))
}
