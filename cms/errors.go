package cms

import "fmt"

// ErrorCode CMS 错误类别
type ErrorCode int

// 错误码常量
const (
	CodeParse                ErrorCode = iota + 1 // 结构无法解析
	CodeUnsupportedAlgorithm                      // 算法不在允许列表中
	CodeInvalidSignature                          // 签名值校验失败
	CodeMissingCertificate                        // 未找到签名者证书
	CodeAttributeInvalid                          // 签名属性缺失或不匹配
	CodeCertificateChain                          // 签名者证书链校验失败
	CodeNotDetached                               // 签名内嵌了内容
)

// Error CMS 校验错误
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配，供 errors.Is 与哨兵错误比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// 哨兵错误，仅用于类别匹配
var (
	ErrParse                = &Error{Code: CodeParse, Message: "malformed CMS structure"}
	ErrUnsupportedAlgorithm = &Error{Code: CodeUnsupportedAlgorithm, Message: "unsupported algorithm"}
	ErrInvalidSignature     = &Error{Code: CodeInvalidSignature, Message: "signature verification failed"}
	ErrMissingCertificate   = &Error{Code: CodeMissingCertificate, Message: "signer certificate not found"}
	ErrAttributeInvalid     = &Error{Code: CodeAttributeInvalid, Message: "invalid signed attributes"}
	ErrCertificateChain     = &Error{Code: CodeCertificateChain, Message: "signer certificate chain invalid"}
	ErrNotDetached          = &Error{Code: CodeNotDetached, Message: "signature is not detached"}
)

func newError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func wrapError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}
