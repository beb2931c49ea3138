package serialization

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/tidwall/gjson"
)

// Serializer OCPP-J帧编解码器，无状态，可并发使用
type Serializer struct{}

// DecodeError 帧解码错误。
// Code 为回复对端时使用的错误码，MessageID 为能从原始帧中恢复出的消息ID（可能为空）。
type DecodeError struct {
	Operation string
	Message   string
	Code      ocpp16.ErrorCode
	MessageID string
	TypeID    int
	Cause     error
}

// Error 实现error接口
func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// Replyable 是否应以CallError回复。
// 无法恢复消息ID的帧以及响应帧（类型3/4）本身都不回复。
func (e *DecodeError) Replyable() bool {
	if e.MessageID == "" {
		return false
	}
	return e.TypeID != int(ocpp16.MessageTypeCallResult) && e.TypeID != int(ocpp16.MessageTypeCallError)
}

// NewSerializer 创建新的序列化器
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Decode 将一帧原始文本解析为三种消息变体之一，失败时返回 *DecodeError
func (s *Serializer) Decode(data []byte) (ocpp16.Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, &DecodeError{Operation: "Decode", Message: "frame is not valid JSON", Code: ocpp16.ErrorCodeFormationViolation}
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, &DecodeError{Operation: "Decode", Message: "frame is not a JSON array", Code: ocpp16.ErrorCodeFormationViolation}
	}

	derr := &DecodeError{Operation: "Decode", Code: ocpp16.ErrorCodeFormationViolation}
	if id := root.Get("1"); id.Type == gjson.String {
		derr.MessageID = id.String()
	}

	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		derr.Message, derr.Cause = "failed to unmarshal JSON array", err
		return nil, derr
	}
	if len(fields) < 3 {
		derr.Message = fmt.Sprintf("frame has %d elements, expected at least 3", len(fields))
		return nil, derr
	}

	var typeID int
	if err := json.Unmarshal(fields[0], &typeID); err != nil {
		derr.Message, derr.Cause = "messageTypeId must be an integer", err
		return nil, derr
	}
	derr.TypeID = typeID

	if !ocpp16.MessageType(typeID).Valid() {
		derr.Code = ocpp16.ErrorCodeProtocolError
		derr.Message = fmt.Sprintf("unknown messageTypeId %d", typeID)
		return nil, derr
	}

	var messageID string
	if err := json.Unmarshal(fields[1], &messageID); err != nil {
		derr.Message, derr.Cause = "messageId must be a string", err
		return nil, derr
	}

	switch ocpp16.MessageType(typeID) {
	case ocpp16.MessageTypeCall:
		return s.decodeCall(fields, messageID, derr)
	case ocpp16.MessageTypeCallResult:
		return s.decodeCallResult(fields, messageID, derr)
	default:
		return s.decodeCallError(fields, messageID, derr)
	}
}

func (s *Serializer) decodeCall(fields []json.RawMessage, messageID string, derr *DecodeError) (ocpp16.Message, error) {
	if len(fields) != 4 {
		derr.Message = fmt.Sprintf("Call frame has %d elements, expected 4", len(fields))
		return nil, derr
	}
	var action string
	if err := json.Unmarshal(fields[2], &action); err != nil {
		derr.Message, derr.Cause = "action must be a string", err
		return nil, derr
	}
	if !isObject(fields[3]) {
		derr.Message = "payload must be a JSON object"
		return nil, derr
	}
	return &ocpp16.CallMessage{
		MessageID: messageID,
		Action:    ocpp16.Action(action),
		Payload:   fields[3],
	}, nil
}

func (s *Serializer) decodeCallResult(fields []json.RawMessage, messageID string, derr *DecodeError) (ocpp16.Message, error) {
	if len(fields) != 3 {
		derr.Message = fmt.Sprintf("CallResult frame has %d elements, expected 3", len(fields))
		return nil, derr
	}
	if !isObject(fields[2]) {
		derr.Message = "payload must be a JSON object"
		return nil, derr
	}
	return &ocpp16.CallResultMessage{MessageID: messageID, Payload: fields[2]}, nil
}

func (s *Serializer) decodeCallError(fields []json.RawMessage, messageID string, derr *DecodeError) (ocpp16.Message, error) {
	if len(fields) != 4 && len(fields) != 5 {
		derr.Message = fmt.Sprintf("CallError frame has %d elements, expected 5", len(fields))
		return nil, derr
	}

	var code, description string
	if err := json.Unmarshal(fields[2], &code); err != nil {
		derr.Message, derr.Cause = "errorCode must be a string", err
		return nil, derr
	}
	if !ocpp16.ErrorCode(code).Valid() {
		derr.Message = fmt.Sprintf("unknown errorCode %q", code)
		return nil, derr
	}
	if err := json.Unmarshal(fields[3], &description); err != nil {
		derr.Message, derr.Cause = "errorDescription must be a string", err
		return nil, derr
	}

	msg := &ocpp16.CallErrorMessage{
		MessageID:        messageID,
		ErrorCode:        ocpp16.ErrorCode(code),
		ErrorDescription: description,
	}
	if len(fields) == 5 {
		details := gjson.ParseBytes(fields[4])
		if !details.IsObject() {
			derr.Message = "errorDetails must be a JSON object"
			return nil, derr
		}
		// {} 与缺省等价
		if len(details.Map()) > 0 {
			msg.ErrorDetails = fields[4]
		}
	}
	return msg, nil
}

// Encode 将消息编码为一帧文本。缺省的payload与errorDetails编码为 {}
func (s *Serializer) Encode(msg ocpp16.Message) ([]byte, error) {
	var frame []interface{}

	switch m := msg.(type) {
	case *ocpp16.CallMessage:
		frame = []interface{}{ocpp16.MessageTypeCall, m.MessageID, m.Action, objectOrEmpty(m.Payload)}
	case *ocpp16.CallResultMessage:
		frame = []interface{}{ocpp16.MessageTypeCallResult, m.MessageID, objectOrEmpty(m.Payload)}
	case *ocpp16.CallErrorMessage:
		frame = []interface{}{ocpp16.MessageTypeCallError, m.MessageID, m.ErrorCode, m.ErrorDescription, objectOrEmpty(m.ErrorDetails)}
	default:
		return nil, &DecodeError{Operation: "Encode", Message: fmt.Sprintf("unsupported message %T", msg), Code: ocpp16.ErrorCodeInternalError}
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, &DecodeError{Operation: "Encode", Message: "failed to marshal JSON", Code: ocpp16.ErrorCodeInternalError, MessageID: msg.UniqueID(), Cause: err}
	}
	return data, nil
}

func objectOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func isObject(raw json.RawMessage) bool {
	return gjson.ParseBytes(raw).IsObject()
}
