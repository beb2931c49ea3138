package ocpp16

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/serialization"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	calls      map[ocpp16.Action]*int32
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()
	v := validation.NewValidator()
	r := NewRegistry(v)
	f := &dispatcherFixture{calls: map[ocpp16.Action]*int32{}}

	count := func(a ocpp16.Action) *int32 {
		var n int32
		f.calls[a] = &n
		return &n
	}

	boot := count(ocpp16.ActionBootNotification)
	require.NoError(t, Register(r, ocpp16.ActionBootNotification, func(ctx context.Context, req *ocpp16.BootNotificationRequest, oc Context) (*ocpp16.BootNotificationResponse, error) {
		atomic.AddInt32(boot, 1)
		return &ocpp16.BootNotificationResponse{
			Status:      ocpp16.RegistrationStatusAccepted,
			CurrentTime: ocpp16.NewDateTime(fixedNow),
			Interval:    300,
		}, nil
	}))

	hb := count(ocpp16.ActionHeartbeat)
	require.NoError(t, Register(r, ocpp16.ActionHeartbeat, func(ctx context.Context, req *ocpp16.HeartbeatRequest, oc Context) (*ocpp16.HeartbeatResponse, error) {
		atomic.AddInt32(hb, 1)
		return &ocpp16.HeartbeatResponse{CurrentTime: ocpp16.NewDateTime(fixedNow)}, nil
	}))

	auth := count(ocpp16.ActionAuthorize)
	require.NoError(t, Register(r, ocpp16.ActionAuthorize, func(ctx context.Context, req *ocpp16.AuthorizeRequest, oc Context) (*ocpp16.AuthorizeResponse, error) {
		atomic.AddInt32(auth, 1)
		switch req.IdTag.String() {
		case "PANIC":
			panic("card reader exploded")
		case "FAIL":
			return nil, errors.New("redis: connection refused")
		case "BLOCKED":
			return nil, ocpp16.NewError(ocpp16.ErrorCodeSecurityError, "tag blocked")
		}
		return &ocpp16.AuthorizeResponse{IdTagInfo: ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusAccepted}}, nil
	}))

	r.Seal()
	f.dispatcher = NewDispatcher(r, v, logger.Nop())
	return f
}

func (f *dispatcherFixture) count(a ocpp16.Action) int32 {
	return atomic.LoadInt32(f.calls[a])
}

func dispatchFrame(t *testing.T, d *Dispatcher, frame string) ocpp16.Message {
	t.Helper()
	msg, err := serialization.NewSerializer().Decode([]byte(frame))
	require.NoError(t, err)
	call, ok := msg.(*ocpp16.CallMessage)
	require.True(t, ok)
	return d.Dispatch(context.Background(), call, NewContext("CP001", call))
}

func encode(t *testing.T, msg ocpp16.Message) string {
	t.Helper()
	data, err := serialization.NewSerializer().Encode(msg)
	require.NoError(t, err)
	return string(data)
}

func TestDispatcher_BootNotificationAccepted(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := dispatchFrame(t, f.dispatcher, `[2,"m1","BootNotification",{"chargePointVendor":"Acme","chargePointModel":"X1"}]`)

	result, ok := resp.(*ocpp16.CallResultMessage)
	require.True(t, ok)
	assert.Equal(t, "m1", result.MessageID)
	assert.JSONEq(t, `{"status":"Accepted","currentTime":"2024-01-01T00:00:00Z","interval":300}`, string(result.Payload))
	assert.Equal(t, int32(1), f.count(ocpp16.ActionBootNotification))
}

func TestDispatcher_MissingRequiredField(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := dispatchFrame(t, f.dispatcher, `[2,"m2","BootNotification",{"chargePointModel":"X1"}]`)

	cerr, ok := resp.(*ocpp16.CallErrorMessage)
	require.True(t, ok)
	assert.Equal(t, "m2", cerr.MessageID)
	assert.Equal(t, ocpp16.ErrorCodeGenericError, cerr.ErrorCode)
	assert.Equal(t, "chargePointVendor missing", cerr.ErrorDescription)
	assert.Equal(t, int32(0), f.count(ocpp16.ActionBootNotification))
}

func TestDispatcher_UnknownAction(t *testing.T) {
	f := newDispatcherFixture(t)

	resp := dispatchFrame(t, f.dispatcher, `[2,"m4","FooBar",{}]`)

	assert.Equal(t, `[4,"m4","NotImplemented","Action 'FooBar' is not implemented",{}]`, encode(t, resp))
	for action := range f.calls {
		assert.Equal(t, int32(0), f.count(action), action)
	}
}

func TestDispatcher_HeartbeatIsIdempotent(t *testing.T) {
	f := newDispatcherFixture(t)

	first := dispatchFrame(t, f.dispatcher, `[2,"m5","Heartbeat",{}]`)
	second := dispatchFrame(t, f.dispatcher, `[2,"m5","Heartbeat",{}]`)

	assert.Equal(t, `[3,"m5",{"currentTime":"2024-01-01T00:00:00Z"}]`, encode(t, first))
	assert.Equal(t, encode(t, first), encode(t, second))
	assert.Equal(t, int32(2), f.count(ocpp16.ActionHeartbeat))
}

func TestDispatcher_InvalidEnvelopeNeverReachesHandler(t *testing.T) {
	f := newDispatcherFixture(t)

	tests := []struct {
		name string
		call *ocpp16.CallMessage
		code ocpp16.ErrorCode
	}{
		{name: "empty message id", call: &ocpp16.CallMessage{Action: ocpp16.ActionHeartbeat, Payload: json.RawMessage(`{}`)}, code: ocpp16.ErrorCodeFormationViolation},
		{name: "message id too long", call: &ocpp16.CallMessage{MessageID: "0123456789012345678901234567890123456789", Action: ocpp16.ActionHeartbeat, Payload: json.RawMessage(`{}`)}, code: ocpp16.ErrorCodeFormationViolation},
		{name: "empty action", call: &ocpp16.CallMessage{MessageID: "m1", Payload: json.RawMessage(`{}`)}, code: ocpp16.ErrorCodeFormationViolation},
		{name: "payload violates schema", call: &ocpp16.CallMessage{MessageID: "m1", Action: ocpp16.ActionAuthorize, Payload: json.RawMessage(`{"idTag":17}`)}, code: ocpp16.ErrorCodeFormationViolation},
		{name: "payload has extra field", call: &ocpp16.CallMessage{MessageID: "m1", Action: ocpp16.ActionHeartbeat, Payload: json.RawMessage(`{"x":1}`)}, code: ocpp16.ErrorCodeFormationViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.dispatcher.Dispatch(context.Background(), tt.call, NewContext("CP001", tt.call))
			cerr, ok := resp.(*ocpp16.CallErrorMessage)
			require.True(t, ok)
			assert.Equal(t, tt.code, cerr.ErrorCode)
			assert.Equal(t, tt.call.MessageID, cerr.MessageID)
		})
	}

	assert.Equal(t, int32(0), f.count(ocpp16.ActionHeartbeat))
	assert.Equal(t, int32(0), f.count(ocpp16.ActionAuthorize))
}

func TestDispatcher_HandlerFailures(t *testing.T) {
	f := newDispatcherFixture(t)

	t.Run("panic becomes internal error", func(t *testing.T) {
		resp := dispatchFrame(t, f.dispatcher, `[2,"p1","Authorize",{"idTag":"PANIC"}]`)
		cerr := resp.(*ocpp16.CallErrorMessage)
		assert.Equal(t, ocpp16.ErrorCodeInternalError, cerr.ErrorCode)
		assert.NotContains(t, cerr.ErrorDescription, "exploded")
		assert.Nil(t, cerr.ErrorDetails)
	})

	t.Run("plain error becomes internal error", func(t *testing.T) {
		resp := dispatchFrame(t, f.dispatcher, `[2,"p2","Authorize",{"idTag":"FAIL"}]`)
		cerr := resp.(*ocpp16.CallErrorMessage)
		assert.Equal(t, ocpp16.ErrorCodeInternalError, cerr.ErrorCode)
		assert.NotContains(t, cerr.ErrorDescription, "redis")
	})

	t.Run("protocol error passes through", func(t *testing.T) {
		resp := dispatchFrame(t, f.dispatcher, `[2,"p3","Authorize",{"idTag":"BLOCKED"}]`)
		cerr := resp.(*ocpp16.CallErrorMessage)
		assert.Equal(t, ocpp16.ErrorCodeSecurityError, cerr.ErrorCode)
		assert.Equal(t, "tag blocked", cerr.ErrorDescription)
	})

	t.Run("dispatcher keeps serving", func(t *testing.T) {
		resp := dispatchFrame(t, f.dispatcher, `[2,"p4","Authorize",{"idTag":"OK"}]`)
		result := resp.(*ocpp16.CallResultMessage)
		assert.JSONEq(t, `{"idTagInfo":{"status":"Accepted"}}`, string(result.Payload))
	})
}

func TestDispatcher_Reject(t *testing.T) {
	f := newDispatcherFixture(t)
	s := serialization.NewSerializer()

	_, err := s.Decode([]byte(`[5,"m3","Reset",{}]`))
	resp, ok := f.dispatcher.Reject(err)
	require.True(t, ok)
	cerr := resp.(*ocpp16.CallErrorMessage)
	assert.Equal(t, "m3", cerr.MessageID)
	assert.Equal(t, ocpp16.ErrorCodeProtocolError, cerr.ErrorCode)

	_, err = s.Decode([]byte(`not json`))
	_, ok = f.dispatcher.Reject(err)
	assert.False(t, ok)

	_, err = s.Decode([]byte(`[3,"m9",{},{}]`))
	_, ok = f.dispatcher.Reject(err)
	assert.False(t, ok)

	_, ok = f.dispatcher.Reject(errors.New("other"))
	assert.False(t, ok)
}

func TestResponseBuilders(t *testing.T) {
	assert.Equal(t, `[3,"a",{}]`, encode(t, BuildEmptyResult("a")))
	assert.Equal(t, `[3,"b",{"status":"Accepted"}]`, encode(t, BuildStatusResult("b", ocpp16.UpdateStatusAccepted)))
	assert.Equal(t, `[4,"c","GenericError","bad",{"field":"idTag"}]`,
		encode(t, BuildError("c", ocpp16.ErrorCodeGenericError, "bad", map[string]interface{}{"field": "idTag"})))

	// 不可编码的详情被丢弃
	withBadDetails := BuildError("d", ocpp16.ErrorCodeGenericError, "bad", map[string]interface{}{"ch": make(chan int)})
	assert.Nil(t, withBadDetails.ErrorDetails)

	resp, err := RenderResult("e", map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
	assert.Equal(t, ocpp16.ErrorCodeInternalError, resp.(*ocpp16.CallErrorMessage).ErrorCode)
}
