package errcode

import (
	"errors"
	"fmt"
)

// 错误码约定：
// - VALIDATION：输入缺失或格式错误，可携带字段名
// - FORBIDDEN：角色或归属不满足（区别于未登录）
// - NOT_FOUND：引用的职位/申请/用户不存在
// - DUPLICATE：重复投递、重复收藏、重复评分
// - INVALID_STATE：非法的状态迁移
const (
	Validation    = "VALIDATION"
	Authorization = "FORBIDDEN"
	NotFound      = "NOT_FOUND"
	Duplicate     = "DUPLICATE"
	InvalidState  = "INVALID_STATE"
)

// Error 是业务层统一返回的类型化错误。
type Error struct {
	Code    string
	Message string
	Field   string
}

func (e *Error) Error() string { return e.Message }

// New 构造指定错误码的错误。
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Validationf(field, format string, args ...any) *Error {
	return &Error{Code: Validation, Message: fmt.Sprintf(format, args...), Field: field}
}

func Forbidden(message string) *Error {
	return New(Authorization, message)
}

func NotFoundf(format string, args ...any) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Duplicatef(format string, args ...any) *Error {
	return New(Duplicate, fmt.Sprintf(format, args...))
}

func InvalidStatef(format string, args ...any) *Error {
	return New(InvalidState, fmt.Sprintf(format, args...))
}

// Is 判断 err 链上是否存在指定错误码。
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
