package ocpp16

import "fmt"

// ErrorCode CallError的错误码，封闭集合
type ErrorCode string

const (
	ErrorCodeNotImplemented     ErrorCode = "NotImplemented"
	ErrorCodeNotSupported       ErrorCode = "NotSupported"
	ErrorCodeInternalError      ErrorCode = "InternalError"
	ErrorCodeProtocolError      ErrorCode = "ProtocolError"
	ErrorCodeSecurityError      ErrorCode = "SecurityError"
	ErrorCodeFormationViolation ErrorCode = "FormationViolation"
	ErrorCodeGenericError       ErrorCode = "GenericError"
)

// Valid 是否为协议定义的错误码
func (c ErrorCode) Valid() bool {
	switch c {
	case ErrorCodeNotImplemented, ErrorCodeNotSupported, ErrorCodeInternalError, ErrorCodeProtocolError,
		ErrorCodeSecurityError, ErrorCodeFormationViolation, ErrorCodeGenericError:
		return true
	}
	return false
}

// Error 可直接映射为CallError的协议错误。
// 处理器返回 *Error 时原样回复给对端，其余错误一律视为内部错误。
type Error struct {
	Code        ErrorCode
	Description string
	Details     map[string]interface{}
}

// NewError 构造协议错误
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Description: fmt.Sprintf(format, args...)}
}

// WithDetail 附加错误详情
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("ocpp error [%s]: %s", e.Code, e.Description)
}
