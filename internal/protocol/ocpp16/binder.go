package ocpp16

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
	"github.com/charging-platform/central-system/internal/domain/validation"
	"github.com/tidwall/gjson"
)

// payloadBinder 将原始payload绑定到请求结构体。
// 错误码映射：非对象、未知字段、类型错误、CiString长度违规为 FormationViolation；
// 缺少必填字段与约束失败为 GenericError。嵌套字段以点分路径报告，如 localAuthorizationList.0.idTag。
type payloadBinder[T any] struct {
	validator *validation.Validator
	rules     []fieldRule
}

func newPayloadBinder[T any](v *validation.Validator) *payloadBinder[T] {
	return &payloadBinder[T]{
		validator: v,
		rules:     fieldRules(reflect.TypeOf((*T)(nil)).Elem()),
	}
}

func (b *payloadBinder[T]) bind(payload json.RawMessage) (*T, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return nil, ocpp16.NewError(ocpp16.ErrorCodeFormationViolation, "payload must be a JSON object")
	}

	if err := checkObject(root, b.rules, ""); err != nil {
		return nil, err
	}

	var req T
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, decodeFailure(err)
	}

	if err := b.validator.ValidateStruct(&req); err != nil {
		return nil, constraintFailure(err)
	}
	return &req, nil
}

// fieldRule 解码前对单个json字段的检查
type fieldRule struct {
	name     string
	required bool
	maxLen   int // 大于0表示CiString字段
	list     bool
	children []fieldRule
}

type boundedString interface {
	MaxLen() int
}

var (
	boundedStringType = reflect.TypeOf((*boundedString)(nil)).Elem()
	unmarshalerType   = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()
)

// fieldRules 不带 omitempty 的json字段视为必填，递归进入结构体、结构体指针与切片元素
func fieldRules(t reflect.Type) []fieldRule {
	return buildRules(t, map[reflect.Type]bool{})
}

func buildRules(t reflect.Type, visiting map[reflect.Type]bool) []fieldRule {
	if t.Kind() != reflect.Struct || visiting[t] {
		return nil
	}
	visiting[t] = true
	defer delete(visiting, t)

	var rules []fieldRule
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		parts := strings.Split(tag, ",")
		optional := false
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				optional = true
			}
		}

		rule := fieldRule{name: parts[0], required: !optional}
		ft := derefType(f.Type)
		if ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8 {
			rule.list = true
			ft = derefType(ft.Elem())
		}
		switch {
		case ft.Implements(boundedStringType):
			rule.maxLen = reflect.Zero(ft).Interface().(boundedString).MaxLen()
		case reflect.PointerTo(ft).Implements(unmarshalerType):
			// DateTime 等自定义解码类型按叶子处理
		case ft.Kind() == reflect.Struct:
			rule.children = buildRules(ft, visiting)
		}

		if rule.required || rule.maxLen > 0 || len(rule.children) > 0 {
			rules = append(rules, rule)
		}
	}
	return rules
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// checkObject 只检查缺失与字符串长度，类型错误交给解码器
func checkObject(obj gjson.Result, rules []fieldRule, prefix string) *ocpp16.Error {
	for _, rule := range rules {
		path := prefix + rule.name
		value := obj.Get(gjson.Escape(rule.name))
		if !value.Exists() || value.Type == gjson.Null {
			if rule.required {
				return ocpp16.NewError(ocpp16.ErrorCodeGenericError, "%s missing", path).WithDetail("field", path)
			}
			continue
		}
		if !rule.list {
			if err := checkValue(value, rule, path); err != nil {
				return err
			}
			continue
		}
		if !value.IsArray() {
			continue
		}
		for i, elem := range value.Array() {
			if err := checkValue(elem, rule, path+"."+strconv.Itoa(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkValue(value gjson.Result, rule fieldRule, path string) *ocpp16.Error {
	if rule.maxLen > 0 && value.Type == gjson.String {
		s := value.String()
		if s == "" {
			return ocpp16.NewError(ocpp16.ErrorCodeFormationViolation, "%s must not be empty", path).WithDetail("field", path)
		}
		if utf8.RuneCountInString(s) > rule.maxLen {
			return ocpp16.NewError(ocpp16.ErrorCodeFormationViolation, "%s exceeds maximum length %d", path, rule.maxLen).WithDetail("field", path)
		}
		return nil
	}
	if len(rule.children) > 0 && value.IsObject() {
		return checkObject(value, rule.children, path+".")
	}
	return nil
}

func decodeFailure(err error) *ocpp16.Error {
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "payload"
		}
		return ocpp16.NewError(ocpp16.ErrorCodeFormationViolation, "%s has invalid type %s", field, typeErr.Value).WithDetail("field", field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return ocpp16.NewError(ocpp16.ErrorCodeFormationViolation, "unexpected property %s", field).WithDetail("field", field)
	case errors.Is(err, ocpp16.ErrStringTooLong), errors.Is(err, ocpp16.ErrEmptyString):
		return ocpp16.NewError(ocpp16.ErrorCodeFormationViolation, "%s", err.Error())
	case errors.Is(err, ocpp16.ErrInvalidEnum):
		return ocpp16.NewError(ocpp16.ErrorCodeGenericError, "%s", err.Error())
	default:
		return ocpp16.NewError(ocpp16.ErrorCodeFormationViolation, "malformed payload: %s", err.Error())
	}
}

func constraintFailure(err error) *ocpp16.Error {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		code := first.Code
		if !code.Valid() {
			code = ocpp16.ErrorCodeGenericError
		}
		return ocpp16.NewError(code, "%s", first.Message).WithDetail("field", first.Field)
	}
	return ocpp16.NewError(ocpp16.ErrorCodeGenericError, "%s", err.Error())
}
