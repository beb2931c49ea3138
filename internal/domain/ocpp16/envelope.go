package ocpp16

import "encoding/json"

// Message OCPP-J帧，只有本包中的三种变体
type Message interface {
	MessageTypeID() MessageType
	UniqueID() string
	isMessage()
}

// CallMessage 请求帧 [2, messageId, action, payload]
type CallMessage struct {
	MessageID string
	Action    Action
	Payload   json.RawMessage
}

// CallResultMessage 成功响应帧 [3, messageId, payload]
type CallResultMessage struct {
	MessageID string
	Payload   json.RawMessage
}

// CallErrorMessage 错误响应帧 [4, messageId, errorCode, errorDescription, errorDetails]
type CallErrorMessage struct {
	MessageID        string
	ErrorCode        ErrorCode
	ErrorDescription string
	ErrorDetails     json.RawMessage
}

func (*CallMessage) MessageTypeID() MessageType       { return MessageTypeCall }
func (*CallResultMessage) MessageTypeID() MessageType { return MessageTypeCallResult }
func (*CallErrorMessage) MessageTypeID() MessageType  { return MessageTypeCallError }

func (m *CallMessage) UniqueID() string       { return m.MessageID }
func (m *CallResultMessage) UniqueID() string { return m.MessageID }
func (m *CallErrorMessage) UniqueID() string  { return m.MessageID }

func (*CallMessage) isMessage()       {}
func (*CallResultMessage) isMessage() {}
func (*CallErrorMessage) isMessage()  {}

// AsError 将对端返回的CallError转换为 *Error
func (m *CallErrorMessage) AsError() *Error {
	e := &Error{Code: m.ErrorCode, Description: m.ErrorDescription}
	if len(m.ErrorDetails) > 0 {
		var details map[string]interface{}
		if err := json.Unmarshal(m.ErrorDetails, &details); err == nil && len(details) > 0 {
			e.Details = details
		}
	}
	return e
}
