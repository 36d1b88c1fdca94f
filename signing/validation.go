// Package signing 校验分离式 CMS 签名是否来自固定的签名者
package signing

import (
	"fmt"

	"github.com/houzhh15/httpsecurity/cert"
)

// SignatureValidator 签名校验能力
type SignatureValidator interface {
	Validate(signature, content []byte) bool
}

// Mode 校验器类型，由配置显式选择
type Mode string

const (
	ModeCMS         Mode = "cms"          // 固定签名者的 CMS 校验
	ModeAlwaysAllow Mode = "always_allow" // 仅用于引导与测试
)

// AlwaysAllow 总是通过的校验器
type AlwaysAllow struct{}

// Validate 总是返回 true
func (AlwaysAllow) Validate(signature, content []byte) bool {
	return true
}

// New 按模式创建校验器
func New(mode Mode, signers []cert.SigningCertificate, config *Config) (SignatureValidator, error) {
	switch mode {
	case ModeCMS, "":
		return NewCMSValidator(signers, config), nil
	case ModeAlwaysAllow:
		if config != nil && config.Logger != nil {
			config.Logger.Warn("Signature validation disabled", "mode", string(mode))
		}
		return AlwaysAllow{}, nil
	default:
		return nil, fmt.Errorf("unknown signature validation mode: %s", mode)
	}
}

// ParseMode 解析配置中的模式字符串
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCMS, "":
		return ModeCMS, nil
	case ModeAlwaysAllow:
		return ModeAlwaysAllow, nil
	default:
		return "", fmt.Errorf("unknown signature validation mode: %s", s)
	}
}
