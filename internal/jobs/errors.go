package jobs

import (
	"errors"
	"fmt"
)

// ストア操作の結果を表す番兵エラー。
var (
	ErrNotFound    = errors.New("job not found")
	ErrDuplicateID = errors.New("duplicate job id")
)

// Error はHTTP応答へ対応付け可能なエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
