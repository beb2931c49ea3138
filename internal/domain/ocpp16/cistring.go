package ocpp16

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmptyString 必填的CiString为空
	ErrEmptyString = errors.New("ocpp16: string must not be empty")
	// ErrStringTooLong CiString超过长度上限
	ErrStringTooLong = errors.New("ocpp16: string exceeds maximum length")
)

// Limit CiString的长度上限
type Limit interface {
	MaxLen() int
}

type (
	Len20  struct{}
	Len25  struct{}
	Len50  struct{}
	Len255 struct{}
	Len500 struct{}
)

func (Len20) MaxLen() int  { return 20 }
func (Len25) MaxLen() int  { return 25 }
func (Len50) MaxLen() int  { return 50 }
func (Len255) MaxLen() int { return 255 }
func (Len500) MaxLen() int { return 500 }

// CiString 大小写不敏感、带长度上限的字符串。
// 零值表示缺省，非零值只能通过 NewCiString 或JSON反序列化获得。
type CiString[L Limit] struct {
	value string
}

type (
	CiString20  = CiString[Len20]
	CiString25  = CiString[Len25]
	CiString50  = CiString[Len50]
	CiString255 = CiString[Len255]
	CiString500 = CiString[Len500]
)

// NewCiString 校验长度后构造CiString
func NewCiString[L Limit](s string) (CiString[L], error) {
	var limit L
	if s == "" {
		return CiString[L]{}, ErrEmptyString
	}
	if n := utf8.RuneCountInString(s); n > limit.MaxLen() {
		return CiString[L]{}, fmt.Errorf("%w: %d characters, limit %d", ErrStringTooLong, n, limit.MaxLen())
	}
	return CiString[L]{value: s}, nil
}

// MustCiString 用于常量与测试数据
func MustCiString[L Limit](s string) CiString[L] {
	c, err := NewCiString[L](s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c CiString[L]) String() string { return c.value }

func (c CiString[L]) IsZero() bool { return c.value == "" }

// MaxLen 长度上限
func (CiString[L]) MaxLen() int {
	var limit L
	return limit.MaxLen()
}

// EqualFold 按OCPP规则不区分大小写比较
func (c CiString[L]) EqualFold(other CiString[L]) bool {
	return strings.EqualFold(c.value, other.value)
}

// Key 规范化后的比较键
func (c CiString[L]) Key() string {
	return strings.ToLower(c.value)
}

func (c CiString[L]) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.value)
}

func (c *CiString[L]) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := NewCiString[L](s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// CiPtr 构造可选CiString字段
func CiPtr[L Limit](s string) *CiString[L] {
	c := MustCiString[L](s)
	return &c
}
