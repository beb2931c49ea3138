package ocpp16

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateTime_MarshalJSON(t *testing.T) {
	dt := DateTime{Time: time.Date(2023, 12, 25, 10, 30, 45, 0, time.UTC)}

	data, err := json.Marshal(dt)
	require.NoError(t, err)

	assert.Equal(t, `"2023-12-25T10:30:45Z"`, string(data))
}

func TestDateTime_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Time
		wantErr  bool
	}{
		{
			name:     "valid RFC3339 time",
			input:    `"2023-12-25T10:30:45Z"`,
			expected: time.Date(2023, 12, 25, 10, 30, 45, 0, time.UTC),
		},
		{
			name:     "valid RFC3339 time with timezone",
			input:    `"2023-12-25T10:30:45+08:00"`,
			expected: time.Date(2023, 12, 25, 2, 30, 45, 0, time.UTC),
		},
		{
			name:     "fractional seconds",
			input:    `"2023-12-25T10:30:45.123Z"`,
			expected: time.Date(2023, 12, 25, 10, 30, 45, 123000000, time.UTC),
		},
		{
			name:  "null value",
			input: `null`,
		},
		{
			name:    "invalid format",
			input:   `"invalid-time"`,
			wantErr: true,
		},
		{
			name:    "not a string",
			input:   `12345`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dt DateTime
			err := json.Unmarshal([]byte(tt.input), &dt)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if !tt.expected.IsZero() {
				assert.True(t, tt.expected.Equal(dt.Time), "got %s", dt.Time)
			}
		})
	}
}

func TestCiString(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		s, err := NewCiString[Len20]("RFID-0001")
		require.NoError(t, err)
		assert.Equal(t, "RFID-0001", s.String())
		assert.False(t, s.IsZero())
	})

	t.Run("exactly at limit", func(t *testing.T) {
		_, err := NewCiString[Len20](strings.Repeat("a", 20))
		assert.NoError(t, err)
	})

	t.Run("too long", func(t *testing.T) {
		_, err := NewCiString[Len20](strings.Repeat("a", 21))
		assert.ErrorIs(t, err, ErrStringTooLong)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := NewCiString[Len50]("")
		assert.ErrorIs(t, err, ErrEmptyString)
	})

	t.Run("case insensitive comparison", func(t *testing.T) {
		a := MustCiString[Len20]("abc123")
		b := MustCiString[Len20]("ABC123")
		assert.True(t, a.EqualFold(b))
		assert.NotEqual(t, a, b)
		assert.Equal(t, a.Key(), b.Key())
	})

	t.Run("json", func(t *testing.T) {
		var req AuthorizeRequest
		require.NoError(t, json.Unmarshal([]byte(`{"idTag":"TAG1"}`), &req))
		assert.Equal(t, "TAG1", req.IdTag.String())

		data, err := json.Marshal(req)
		require.NoError(t, err)
		assert.JSONEq(t, `{"idTag":"TAG1"}`, string(data))

		err = json.Unmarshal([]byte(`{"idTag":"`+strings.Repeat("x", 21)+`"}`), &req)
		assert.ErrorIs(t, err, ErrStringTooLong)
	})
}

func TestParseEnum(t *testing.T) {
	status, err := ParseEnum[ChargePointStatus]("Charging")
	require.NoError(t, err)
	assert.Equal(t, ChargePointStatusCharging, status)

	_, err = ParseEnum[ChargePointStatus]("charging")
	assert.ErrorIs(t, err, ErrInvalidEnum)

	_, err = ParseEnum[UpdateType]("Partial")
	assert.ErrorIs(t, err, ErrInvalidEnum)

	reason, err := ParseEnum[Reason]("DeAuthorized")
	require.NoError(t, err)
	assert.Equal(t, ReasonDeAuthorized, reason)

	_, err = ParseEnum[ResetType]("hard")
	assert.ErrorIs(t, err, ErrInvalidEnum)
	availability, err := ParseEnum[AvailabilityType]("Inoperative")
	require.NoError(t, err)
	assert.Equal(t, AvailabilityTypeInoperative, availability)
}

func TestErrorCode_Valid(t *testing.T) {
	for _, code := range []ErrorCode{
		ErrorCodeNotImplemented, ErrorCodeNotSupported, ErrorCodeInternalError, ErrorCodeProtocolError,
		ErrorCodeSecurityError, ErrorCodeFormationViolation, ErrorCodeGenericError,
	} {
		assert.True(t, code.Valid(), code)
	}
	assert.False(t, ErrorCode("OccurenceConstraintViolation").Valid())
	assert.False(t, ErrorCode("").Valid())
}

func TestError(t *testing.T) {
	err := NewError(ErrorCodeGenericError, "%s missing", "idTag").WithDetail("field", "idTag")
	assert.Equal(t, "ocpp error [GenericError]: idTag missing", err.Error())
	assert.Equal(t, map[string]interface{}{"field": "idTag"}, err.Details)
}

func TestCallErrorMessage_AsError(t *testing.T) {
	msg := &CallErrorMessage{
		MessageID:        "m1",
		ErrorCode:        ErrorCodeNotSupported,
		ErrorDescription: "no",
		ErrorDetails:     json.RawMessage(`{"reason":"x"}`),
	}
	e := msg.AsError()
	assert.Equal(t, ErrorCodeNotSupported, e.Code)
	assert.Equal(t, "no", e.Description)
	assert.Equal(t, "x", e.Details["reason"])

	msg.ErrorDetails = json.RawMessage(`{}`)
	assert.Nil(t, msg.AsError().Details)
}

func TestMessageVariants(t *testing.T) {
	var msgs = []Message{
		&CallMessage{MessageID: "a"},
		&CallResultMessage{MessageID: "b"},
		&CallErrorMessage{MessageID: "c"},
	}
	assert.Equal(t, MessageTypeCall, msgs[0].MessageTypeID())
	assert.Equal(t, MessageTypeCallResult, msgs[1].MessageTypeID())
	assert.Equal(t, MessageTypeCallError, msgs[2].MessageTypeID())
	assert.Equal(t, "c", msgs[2].UniqueID())
	assert.False(t, MessageType(5).Valid())
	assert.Equal(t, "MessageType(5)", MessageType(5).String())
}
