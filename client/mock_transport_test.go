// Hand-authored in the shape go.uber.org/mock/mockgen would generate from
// transport.Transport (the teacher's client.go carries the equivalent
// //go:generate mockgen directive over its own Client interface).
package client

import (
	"context"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/opchan/core/core"
	"github.com/opchan/core/transport"
)

type MockTransport struct {
	ctrl     *gomock.Controller
	recorder *MockTransportMockRecorder
}

type MockTransportMockRecorder struct {
	mock *MockTransport
}

func NewMockTransport(ctrl *gomock.Controller) *MockTransport {
	m := &MockTransport{ctrl: ctrl}
	m.recorder = &MockTransportMockRecorder{m}
	return m
}

func (m *MockTransport) EXPECT() *MockTransportMockRecorder {
	return m.recorder
}

func (m *MockTransport) Send(ctx context.Context, msg core.Message) error {
	ret := m.ctrl.Call(m, "Send", ctx, msg)
	err, _ := ret[0].(error)
	return err
}

func (mr *MockTransportMockRecorder) Send(ctx, msg interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Send", reflect.TypeOf((*MockTransport)(nil).Send), ctx, msg)
}

func (m *MockTransport) OnReceive(handler transport.ReceiveHandler) {
	m.ctrl.Call(m, "OnReceive", handler)
}

func (mr *MockTransportMockRecorder) OnReceive(handler interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OnReceive", reflect.TypeOf((*MockTransport)(nil).OnReceive), handler)
}

func (m *MockTransport) OnHealth(handler transport.HealthHandler) {
	m.ctrl.Call(m, "OnHealth", handler)
}

func (mr *MockTransportMockRecorder) OnHealth(handler interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OnHealth", reflect.TypeOf((*MockTransport)(nil).OnHealth), handler)
}

func (m *MockTransport) OnSync(handler transport.SyncHandler) {
	m.ctrl.Call(m, "OnSync", handler)
}

func (mr *MockTransportMockRecorder) OnSync(handler interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OnSync", reflect.TypeOf((*MockTransport)(nil).OnSync), handler)
}

func (m *MockTransport) IsReady() bool {
	ret := m.ctrl.Call(m, "IsReady")
	ready, _ := ret[0].(bool)
	return ready
}

func (mr *MockTransportMockRecorder) IsReady() *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "IsReady", reflect.TypeOf((*MockTransport)(nil).IsReady))
}

var _ transport.Transport = (*MockTransport)(nil)
