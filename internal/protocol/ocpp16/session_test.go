package ocpp16

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestSession(t *testing.T, timeout time.Duration) (*Session, *fakeSender, *dispatcherFixture) {
	t.Helper()
	f := newDispatcherFixture(t)
	sender := newFakeSender()
	s := NewSession("CP001", f.dispatcher, sender, &SessionConfig{CallTimeout: timeout, MaxInflight: 8}, logger.Nop())
	t.Cleanup(s.Close)
	return s, sender, f
}

func TestSession_ScenarioFrames(t *testing.T) {
	s, sender, f := newTestSession(t, time.Minute)

	s.HandleFrame([]byte(`[2,"m1","BootNotification",{"chargePointVendor":"Acme","chargePointModel":"X1"}]`))
	frame := sender.next(t)
	assert.Equal(t, `[3,"m1",{"status":"Accepted","currentTime":"2024-01-01T00:00:00Z","interval":300}]`, frame)

	s.HandleFrame([]byte(`[2,"m2","BootNotification",{"chargePointModel":"X1"}]`))
	frame = sender.next(t)
	assert.Equal(t, "GenericError", gjson.Get(frame, "2").String())
	assert.Equal(t, "m2", gjson.Get(frame, "1").String())

	s.HandleFrame([]byte(`[5,"m3","Reset",{}]`))
	frame = sender.next(t)
	assert.Equal(t, "m3", gjson.Get(frame, "1").String())
	assert.Equal(t, "ProtocolError", gjson.Get(frame, "2").String())

	s.HandleFrame([]byte(`[2,"m4","FooBar",{}]`))
	assert.Equal(t, `[4,"m4","NotImplemented","Action 'FooBar' is not implemented",{}]`, sender.next(t))

	s.HandleFrame([]byte(`[2,"m5","Heartbeat",{}]`))
	assert.Equal(t, `[3,"m5",{"currentTime":"2024-01-01T00:00:00Z"}]`, sender.next(t))

	assert.Equal(t, int32(1), f.count(ocpp16.ActionBootNotification))
}

func TestSession_MalformedFramesAreDropped(t *testing.T) {
	s, sender, _ := newTestSession(t, time.Minute)

	s.HandleFrame([]byte(`{{{`))
	s.HandleFrame([]byte(`[3,"zz",{}]`))
	s.HandleFrame([]byte(`[4,"zz","Oops","x",{}]`))
	s.HandleFrame([]byte(`[3,"zz",{},1]`))

	sender.none(t, 50*time.Millisecond)
}

// 响应按请求到达顺序写出，即使后到的请求先处理完
func TestSession_ResponsesPreserveArrivalOrder(t *testing.T) {
	v := validation.NewValidator()
	r := NewRegistry(v)
	release := make(chan struct{})
	require.NoError(t, Register(r, ocpp16.ActionAuthorize, func(ctx context.Context, req *ocpp16.AuthorizeRequest, oc Context) (*ocpp16.AuthorizeResponse, error) {
		if req.IdTag.String() == "SLOW" {
			<-release
		}
		return &ocpp16.AuthorizeResponse{IdTagInfo: ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusAccepted}}, nil
	}))
	r.Seal()

	sender := newFakeSender()
	s := NewSession("CP001", NewDispatcher(r, v, nil), sender, &SessionConfig{CallTimeout: time.Minute, MaxInflight: 16}, nil)
	defer s.Close()

	s.HandleFrame([]byte(`[2,"a","Authorize",{"idTag":"SLOW"}]`))
	for i := 0; i < 5; i++ {
		s.HandleFrame([]byte(fmt.Sprintf(`[2,"b%d","Authorize",{"idTag":"FAST"}]`, i)))
	}

	// 慢请求未完成前不写出任何响应
	sender.none(t, 50*time.Millisecond)
	close(release)

	order := []string{"a", "b0", "b1", "b2", "b3", "b4"}
	for _, id := range order {
		frame := sender.next(t)
		assert.Equal(t, id, gjson.Get(frame, "1").String())
	}
}

func TestSession_MaxInflightBound(t *testing.T) {
	tests := []struct {
		name        string
		maxInflight int
		want        int32
	}{
		{name: "unset falls back to one", maxInflight: 0, want: 1},
		{name: "one", maxInflight: 1, want: 1},
		{name: "two", maxInflight: 2, want: 2},
		{name: "four", maxInflight: 4, want: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validation.NewValidator()
			r := NewRegistry(v)
			release := make(chan struct{})
			var started atomic.Int32
			require.NoError(t, Register(r, ocpp16.ActionHeartbeat, func(ctx context.Context, req *ocpp16.HeartbeatRequest, oc Context) (*ocpp16.HeartbeatResponse, error) {
				started.Add(1)
				<-release
				return &ocpp16.HeartbeatResponse{CurrentTime: ocpp16.DateTime{Time: time.Now()}}, nil
			}))
			r.Seal()

			sender := newFakeSender()
			s := NewSession("CP001", NewDispatcher(r, v, nil), sender, &SessionConfig{CallTimeout: time.Minute, MaxInflight: tt.maxInflight}, nil)
			defer s.Close()

			total := int(tt.want) + 3
			go func() {
				for i := 0; i < total; i++ {
					s.HandleFrame([]byte(fmt.Sprintf(`[2,"h%d","Heartbeat",{}]`, i)))
				}
			}()

			assert.Eventually(t, func() bool { return started.Load() == tt.want }, time.Second, 5*time.Millisecond)
			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, tt.want, started.Load())

			close(release)
			for i := 0; i < total; i++ {
				assert.Equal(t, fmt.Sprintf("h%d", i), gjson.Get(sender.next(t), "1").String())
			}
			assert.Equal(t, int32(total), started.Load())
		})
	}
}

func TestSession_OutboundCall(t *testing.T) {
	s, sender, _ := newTestSession(t, time.Minute)

	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	go func() {
		p, err := s.Call(context.Background(), ocpp16.ActionReset, map[string]string{"type": "Soft"})
		done <- result{p, err}
	}()

	frame := sender.next(t)
	assert.Equal(t, int64(2), gjson.Get(frame, "0").Int())
	assert.Equal(t, "Reset", gjson.Get(frame, "2").String())
	assert.Equal(t, "Soft", gjson.Get(frame, "3.type").String())
	messageID := gjson.Get(frame, "1").String()
	assert.Len(t, messageID, 36)

	// 等待期间的第二个出站Call立即失败
	_, err := s.Call(context.Background(), ocpp16.ActionClearCache, struct{}{})
	assert.ErrorIs(t, err, ErrBusy)

	s.HandleFrame([]byte(fmt.Sprintf(`[3,%q,{"status":"Accepted"}]`, messageID)))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.JSONEq(t, `{"status":"Accepted"}`, string(r.payload))
	case <-time.After(2 * time.Second):
		t.Fatal("outbound call did not complete")
	}
	assert.Equal(t, StateIdle, s.Tracker().State())
}

func TestSession_OutboundCallError(t *testing.T) {
	s, sender, _ := newTestSession(t, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), ocpp16.ActionReset, map[string]string{"type": "Hard"})
		errCh <- err
	}()

	messageID := gjson.Get(sender.next(t), "1").String()
	s.HandleFrame([]byte(fmt.Sprintf(`[4,%q,"NotSupported","nope",{}]`, messageID)))

	err := <-errCh
	var oerr *ocpp16.Error
	require.True(t, errors.As(err, &oerr))
	assert.Equal(t, ocpp16.ErrorCodeNotSupported, oerr.Code)
}

func TestSession_OutboundCallTimeout(t *testing.T) {
	s, sender, _ := newTestSession(t, 30*time.Millisecond)

	_, err := s.Call(context.Background(), ocpp16.ActionReset, map[string]string{"type": "Soft"})
	assert.ErrorIs(t, err, ErrCallTimeout)
	sender.next(t)
	assert.Equal(t, StateIdle, s.Tracker().State())
}

func TestSession_OutboundCallCancelled(t *testing.T) {
	s, _, _ := newTestSession(t, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Call(ctx, ocpp16.ActionReset, map[string]string{"type": "Soft"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateIdle, s.Tracker().State())
}

func TestSession_CloseFailsPendingCall(t *testing.T) {
	s, sender, _ := newTestSession(t, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Call(context.Background(), ocpp16.ActionReset, map[string]string{"type": "Soft"})
		errCh <- err
	}()
	sender.next(t)

	s.Close()
	assert.ErrorIs(t, <-errCh, ErrConnectionClosed)
	assert.Equal(t, StateClosed, s.Tracker().State())

	_, err := s.Call(context.Background(), ocpp16.ActionReset, struct{}{})
	assert.ErrorIs(t, err, ErrConnectionClosed)

	select {
	case <-s.Done():
	default:
		t.Fatal("session should be done")
	}
}

func TestSession_SendFailure(t *testing.T) {
	s, sender, _ := newTestSession(t, time.Minute)
	sender.fail = true

	_, err := s.Call(context.Background(), ocpp16.ActionReset, map[string]string{"type": "Soft"})
	assert.Error(t, err)
	assert.Equal(t, StateIdle, s.Tracker().State())
}

func TestSession_UnsolicitedResponseIgnored(t *testing.T) {
	s, sender, _ := newTestSession(t, time.Minute)

	s.HandleFrame([]byte(`[3,"nobody-asked",{}]`))
	sender.none(t, 30*time.Millisecond)
	assert.Equal(t, StateIdle, s.Tracker().State())

	// 会话继续处理请求
	s.HandleFrame([]byte(`[2,"h1","Heartbeat",{}]`))
	assert.Contains(t, sender.next(t), `"h1"`)
}
