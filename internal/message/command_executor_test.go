package message

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/charging-platform/central-system/internal/domain/events"
	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/charging-platform/central-system/internal/logger"
	protocol16 "github.com/charging-platform/central-system/internal/protocol/ocpp16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCaller struct {
	mock.Mock
}

func (m *mockCaller) Call(ctx context.Context, action ocpp16.Action, request interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, action, request)
	raw, _ := args.Get(0).(json.RawMessage)
	return raw, args.Error(1)
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) PublishEvent(event events.Event) error {
	p.events = append(p.events, event)
	return nil
}

func newTestExecutor(callers map[string]protocol16.Caller) (*CommandExecutor, *recordingPublisher) {
	publisher := &recordingPublisher{}
	lookup := func(id string) (protocol16.Caller, bool) {
		c, ok := callers[id]
		return c, ok
	}
	e := NewCommandExecutor(lookup, validation.NewValidator(), publisher, events.NewEventFactory("test", "pod-1"), time.Second, logger.Nop())
	return e, publisher
}

func resultOf(t *testing.T, event events.Event) events.CommandResult {
	t.Helper()
	payload, ok := event.GetPayload().(events.CommandResult)
	require.True(t, ok)
	return payload
}

func TestCommandExecutor_Executed(t *testing.T) {
	caller := new(mockCaller)
	caller.On("Call", mock.Anything, ocpp16.ActionReset, &ocpp16.ResetRequest{Type: ocpp16.ResetTypeSoft}).
		Return(json.RawMessage(`{"status":"Accepted"}`), nil)

	e, publisher := newTestExecutor(map[string]protocol16.Caller{"CP001": caller})
	e.Handle(context.Background(), &Command{
		CommandID:     "cmd-1",
		ChargePointID: "CP001",
		Action:        "Reset",
		Payload:       json.RawMessage(`{"type":"Soft"}`),
	})

	caller.AssertExpectations(t)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.EventTypeRemoteCommandExecuted, publisher.events[0].GetType())
	assert.Equal(t, "cmd-1", publisher.events[0].GetMetadata().CorrelationID)
	result := resultOf(t, publisher.events[0])
	assert.JSONEq(t, `{"status":"Accepted"}`, string(result.Response))
	assert.Empty(t, result.Error)
}

func TestCommandExecutor_CallError(t *testing.T) {
	caller := new(mockCaller)
	caller.On("Call", mock.Anything, ocpp16.ActionChangeAvailability, mock.Anything).
		Return(nil, ocpp16.NewError(ocpp16.ErrorCodeNotSupported, "not today"))

	e, publisher := newTestExecutor(map[string]protocol16.Caller{"CP001": caller})
	e.Handle(context.Background(), &Command{
		CommandID:     "cmd-2",
		ChargePointID: "CP001",
		Action:        "ChangeAvailability",
		Payload:       json.RawMessage(`{"connectorId":0,"type":"Inoperative"}`),
	})

	require.Len(t, publisher.events, 1)
	assert.Equal(t, events.EventTypeRemoteCommandFailed, publisher.events[0].GetType())
	result := resultOf(t, publisher.events[0])
	assert.Equal(t, "NotSupported", result.ErrorCode)
	assert.Equal(t, "not today", result.Error)
}

func TestCommandExecutor_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{
			name:    "unsupported action",
			cmd:     Command{ChargePointID: "CP001", Action: "FormatDisk"},
			wantErr: ErrUnsupportedCommand,
		},
		{
			name: "charge point not connected here",
			cmd:  Command{ChargePointID: "CP404", Action: "Reset", Payload: json.RawMessage(`{"type":"Hard"}`)},
			wantErr: ErrChargePointOffline,
		},
		{
			name: "invalid enum",
			cmd:  Command{ChargePointID: "CP001", Action: "Reset", Payload: json.RawMessage(`{"type":"Medium"}`)},
		},
		{
			name: "unknown property",
			cmd:  Command{ChargePointID: "CP001", Action: "Reset", Payload: json.RawMessage(`{"type":"Hard","force":true}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := new(mockCaller)
			e, publisher := newTestExecutor(map[string]protocol16.Caller{"CP001": caller})

			_, err := e.Execute(context.Background(), &tt.cmd)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
			caller.AssertNotCalled(t, "Call", mock.Anything, mock.Anything, mock.Anything)

			e.Handle(context.Background(), &tt.cmd)
			require.Len(t, publisher.events, 1)
			assert.Equal(t, events.EventTypeRemoteCommandFailed, publisher.events[0].GetType())
		})
	}
}

func TestCommandExecutor_EmptyPayload(t *testing.T) {
	caller := new(mockCaller)
	caller.On("Call", mock.Anything, ocpp16.ActionGetLocalListVersion, &ocpp16.GetLocalListVersionRequest{}).
		Return(json.RawMessage(`{"listVersion":4}`), nil)

	e, _ := newTestExecutor(map[string]protocol16.Caller{"CP001": caller})
	resp, err := e.Execute(context.Background(), &Command{ChargePointID: "CP001", Action: "GetLocalListVersion"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"listVersion":4}`, string(resp))
}
