package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxMessageIDLength OCPP-J规定的消息ID最大长度
	MaxMessageIDLength = 36
	// MaxChargePointIDLength 充电桩标识最大长度
	MaxChargePointIDLength = 48
)

var chargePointIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

// Validator OCPP消息验证器
type Validator struct {
	validate *validator.Validate
}

// ValidationError 验证错误，Code 为回复对端时使用的错误码
type ValidationError struct {
	Field   string           `json:"field"`
	Tag     string           `json:"tag"`
	Value   string           `json:"value"`
	Message string           `json:"message"`
	Code    ocpp16.ErrorCode `json:"code"`
}

// Error 实现error接口
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors 验证错误集合
type ValidationErrors []ValidationError

// Error 实现error接口
func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// NewValidator 创建新的验证器
func NewValidator() *Validator {
	validate := validator.New()

	// 错误信息中使用JSON字段名
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	registerCustomValidations(validate)

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct 验证结构体，失败时返回 ValidationErrors，错误码统一为 GenericError
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors ValidationErrors

	if validatorErrors, ok := err.(validator.ValidationErrors); ok {
		for _, validatorError := range validatorErrors {
			validationErrors = append(validationErrors, ValidationError{
				Field:   fieldPath(validatorError),
				Tag:     validatorError.Tag(),
				Value:   fmt.Sprintf("%v", validatorError.Value()),
				Message: getErrorMessage(validatorError),
				Code:    ocpp16.ErrorCodeGenericError,
			})
		}
		return validationErrors
	}

	return ValidationErrors{{Field: "payload", Tag: "invalid", Message: err.Error(), Code: ocpp16.ErrorCodeFormationViolation}}
}

// ValidateEnvelope 验证帧头：类型、消息ID、动作名
func (v *Validator) ValidateEnvelope(messageType int, messageID string, action string) error {
	if !ocpp16.MessageType(messageType).Valid() {
		return ValidationError{
			Field:   "messageTypeId",
			Tag:     "range",
			Value:   strconv.Itoa(messageType),
			Message: "Message type must be 2 (Call), 3 (CallResult), or 4 (CallError)",
			Code:    ocpp16.ErrorCodeProtocolError,
		}
	}

	if messageID == "" {
		return ValidationError{
			Field:   "messageId",
			Tag:     "required",
			Message: "Message ID is required",
			Code:    ocpp16.ErrorCodeFormationViolation,
		}
	}

	if len(messageID) > MaxMessageIDLength {
		return ValidationError{
			Field:   "messageId",
			Tag:     "max",
			Value:   messageID,
			Message: fmt.Sprintf("Message ID must not exceed %d characters", MaxMessageIDLength),
			Code:    ocpp16.ErrorCodeFormationViolation,
		}
	}

	if ocpp16.MessageType(messageType) == ocpp16.MessageTypeCall && strings.TrimSpace(action) == "" {
		return ValidationError{
			Field:   "action",
			Tag:     "required",
			Message: "Action is required for Call messages",
			Code:    ocpp16.ErrorCodeFormationViolation,
		}
	}

	return nil
}

// ValidateCall 验证请求帧。未知动作不在此处拒绝，由注册表回复 NotImplemented
func (v *Validator) ValidateCall(call *ocpp16.CallMessage) error {
	return v.ValidateEnvelope(int(call.MessageTypeID()), call.MessageID, string(call.Action))
}

// registerCustomValidations 注册自定义验证规则
func registerCustomValidations(validate *validator.Validate) {
	validate.RegisterValidation("enum", validateEnum)
}

// validateEnum 验证封闭枚举取值
func validateEnum(fl validator.FieldLevel) bool {
	field := fl.Field()
	if !field.CanInterface() {
		return false
	}
	if e, ok := field.Interface().(interface{ Valid() bool }); ok {
		return e.Valid()
	}
	return false
}

// fieldPath 去掉根结构体名后的字段路径
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

// getErrorMessage 获取友好的错误消息
func getErrorMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Field '%s' is required", field)
	case "min":
		return fmt.Sprintf("Field '%s' must contain at least %s element(s)", field, fe.Param())
	case "gt":
		return fmt.Sprintf("Field '%s' must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("Field '%s' must be greater than or equal to %s", field, fe.Param())
	case "enum":
		return fmt.Sprintf("Field '%s' has unsupported value '%v'", field, fe.Value())
	default:
		return fmt.Sprintf("Field '%s' failed validation for tag '%s'", field, fe.Tag())
	}
}

// ValidateChargePointID 验证充电桩ID
func (v *Validator) ValidateChargePointID(chargePointID string) error {
	if chargePointID == "" {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "required",
			Message: "Charge point ID is required",
			Code:    ocpp16.ErrorCodeSecurityError,
		}
	}

	if len(chargePointID) > MaxChargePointIDLength {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "max",
			Value:   chargePointID,
			Message: fmt.Sprintf("Charge point ID must not exceed %d characters", MaxChargePointIDLength),
			Code:    ocpp16.ErrorCodeSecurityError,
		}
	}

	if !chargePointIDPattern.MatchString(chargePointID) {
		return ValidationError{
			Field:   "chargePointId",
			Tag:     "format",
			Value:   chargePointID,
			Message: "Charge point ID can only contain alphanumeric characters, dots, underscores and hyphens",
			Code:    ocpp16.ErrorCodeSecurityError,
		}
	}

	return nil
}
