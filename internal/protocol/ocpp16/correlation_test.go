package ocpp16

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitOutcome(t *testing.T, ch <-chan CallOutcome) CallOutcome {
	t.Helper()
	select {
	case out := <-ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return CallOutcome{}
	}
}

func TestTracker_ResultCompletesCall(t *testing.T) {
	tr := NewTracker(time.Minute)
	assert.Equal(t, StateIdle, tr.State())

	ch, err := tr.Begin("o1", ocpp16.ActionReset)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingResponse, tr.State())

	id, action, _, ok := tr.Pending()
	assert.True(t, ok)
	assert.Equal(t, "o1", id)
	assert.Equal(t, ocpp16.ActionReset, action)

	require.NoError(t, tr.Resolve(&ocpp16.CallResultMessage{MessageID: "o1", Payload: json.RawMessage(`{"status":"Accepted"}`)}))

	out := waitOutcome(t, ch)
	require.NoError(t, out.Err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(out.Result.Payload))
	assert.Equal(t, StateIdle, tr.State())
}

func TestTracker_BusyWhileAwaiting(t *testing.T) {
	tr := NewTracker(time.Minute)

	_, err := tr.Begin("o1", ocpp16.ActionReset)
	require.NoError(t, err)

	_, err = tr.Begin("o2", ocpp16.ActionUnlockConnector)
	assert.ErrorIs(t, err, ErrBusy)

	// 第一个Call不受影响
	id, _, _, ok := tr.Pending()
	assert.True(t, ok)
	assert.Equal(t, "o1", id)
	assert.Equal(t, StateAwaitingResponse, tr.State())
}

func TestTracker_CallErrorOutcome(t *testing.T) {
	tr := NewTracker(time.Minute)
	ch, err := tr.Begin("o1", ocpp16.ActionReset)
	require.NoError(t, err)

	require.NoError(t, tr.Resolve(&ocpp16.CallErrorMessage{MessageID: "o1", ErrorCode: ocpp16.ErrorCodeNotSupported, ErrorDescription: "no"}))

	out := waitOutcome(t, ch)
	var oerr *ocpp16.Error
	require.True(t, errors.As(out.Err, &oerr))
	assert.Equal(t, ocpp16.ErrorCodeNotSupported, oerr.Code)
	assert.Equal(t, StateIdle, tr.State())
}

func TestTracker_UnsolicitedResponse(t *testing.T) {
	tr := NewTracker(time.Minute)

	assert.ErrorIs(t, tr.Resolve(&ocpp16.CallResultMessage{MessageID: "x"}), ErrUnsolicitedResponse)

	ch, err := tr.Begin("o1", ocpp16.ActionReset)
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Resolve(&ocpp16.CallResultMessage{MessageID: "other"}), ErrUnsolicitedResponse)
	assert.Equal(t, StateAwaitingResponse, tr.State())

	require.NoError(t, tr.Resolve(&ocpp16.CallResultMessage{MessageID: "o1"}))
	waitOutcome(t, ch)

	// 同一响应重复到达
	assert.ErrorIs(t, tr.Resolve(&ocpp16.CallResultMessage{MessageID: "o1"}), ErrUnsolicitedResponse)
}

func TestTracker_Timeout(t *testing.T) {
	tr := NewTracker(20 * time.Millisecond)

	ch, err := tr.Begin("o1", ocpp16.ActionReset)
	require.NoError(t, err)

	out := waitOutcome(t, ch)
	assert.ErrorIs(t, out.Err, ErrCallTimeout)
	assert.Equal(t, StateIdle, tr.State())

	// 超时后迟到的响应被视为不匹配
	assert.ErrorIs(t, tr.Resolve(&ocpp16.CallResultMessage{MessageID: "o1"}), ErrUnsolicitedResponse)

	// 超时后可以发起新的Call
	_, err = tr.Begin("o2", ocpp16.ActionReset)
	assert.NoError(t, err)
}

func TestTracker_Close(t *testing.T) {
	tr := NewTracker(time.Minute)

	ch, err := tr.Begin("o1", ocpp16.ActionReset)
	require.NoError(t, err)

	tr.Close()
	out := waitOutcome(t, ch)
	assert.ErrorIs(t, out.Err, ErrConnectionClosed)
	assert.Equal(t, StateClosed, tr.State())

	_, err = tr.Begin("o2", ocpp16.ActionReset)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, tr.Resolve(&ocpp16.CallResultMessage{MessageID: "o1"}), ErrConnectionClosed)

	// 重复关闭无副作用
	tr.Close()
	assert.Equal(t, StateClosed, tr.State())
}

func TestTracker_Abort(t *testing.T) {
	tr := NewTracker(time.Minute)
	ch, err := tr.Begin("o1", ocpp16.ActionReset)
	require.NoError(t, err)

	tr.Abort("other", errors.New("ignored"))
	assert.Equal(t, StateAwaitingResponse, tr.State())

	sendErr := errors.New("write failed")
	tr.Abort("o1", sendErr)
	assert.ErrorIs(t, waitOutcome(t, ch).Err, sendErr)
	assert.Equal(t, StateIdle, tr.State())
}

func TestCorrelationState_String(t *testing.T) {
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "AwaitingResponse", StateAwaitingResponse.String())
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "Unknown", CorrelationState(9).String())
}
