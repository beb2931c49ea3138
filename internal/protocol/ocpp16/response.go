package ocpp16

import (
	"encoding/json"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

// internalErrorDescription 回复给对端的内部错误描述，不携带任何诊断信息
const internalErrorDescription = "An internal error occurred while processing the request"

// BuildResult 以已编码的载荷构造CallResult，空载荷编码为 {}
func BuildResult(messageID string, payload json.RawMessage) *ocpp16.CallResultMessage {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return &ocpp16.CallResultMessage{MessageID: messageID, Payload: payload}
}

// BuildEmptyResult 构造空载荷的CallResult
func BuildEmptyResult(messageID string) *ocpp16.CallResultMessage {
	return BuildResult(messageID, nil)
}

// BuildStatusResult 构造仅含 status 字段的CallResult
func BuildStatusResult[S ~string](messageID string, status S) *ocpp16.CallResultMessage {
	data, _ := json.Marshal(struct {
		Status string `json:"status"`
	}{Status: string(status)})
	return BuildResult(messageID, data)
}

// BuildError 构造CallError。详情无法编码时丢弃详情，构造本身不会失败
func BuildError(messageID string, code ocpp16.ErrorCode, description string, details map[string]interface{}) *ocpp16.CallErrorMessage {
	msg := &ocpp16.CallErrorMessage{
		MessageID:        messageID,
		ErrorCode:        code,
		ErrorDescription: description,
	}
	if len(details) > 0 {
		if data, err := json.Marshal(details); err == nil {
			msg.ErrorDetails = data
		}
	}
	return msg
}

// BuildInternalError 构造不泄露细节的InternalError
func BuildInternalError(messageID string) *ocpp16.CallErrorMessage {
	return BuildError(messageID, ocpp16.ErrorCodeInternalError, internalErrorDescription, nil)
}

// RenderResult 编码处理器返回的载荷，编码失败时返回InternalError
func RenderResult(messageID string, result interface{}) (ocpp16.Message, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return BuildInternalError(messageID), err
	}
	return BuildResult(messageID, data), nil
}
