package gateway

import (
	"errors"
	"fmt"
)

// ErrNoQuote tickertape 尚未收到任何行情。
var ErrNoQuote = errors.New("no quote received yet")

// APIError 交易所应用层失败：HTTP 状态码异常或响应体 ok=false。
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// IsAPIError 判断 err 链中是否为应用层失败（区别于网络错误）。
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
