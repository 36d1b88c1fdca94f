package signing

import "strings"

// MatchesCommonNameSuffix 判断签名者 CN 是否满足后缀约束
// 以 "." 开头的约束必须是 CN 的后缀；否则 CN 等于约束或以 "."+约束 结尾。
// 空约束总是通过。按字节比较，区分大小写。
func MatchesCommonNameSuffix(commonName, constraint string) bool {
	if constraint == "" {
		return true
	}

	if strings.HasPrefix(constraint, ".") {
		return len(commonName) > len(constraint) && strings.HasSuffix(commonName, constraint)
	}
	return commonName == constraint || strings.HasSuffix(commonName, "."+constraint)
}
