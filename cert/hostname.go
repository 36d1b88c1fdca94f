package cert

import "strings"

// MatchesHostname 判断主机名是否出现在证书 SAN 的 dNSName 中
// 不参考 CN，不展开通配符
func MatchesHostname(hostname string, c *Certificate) bool {
	if c == nil {
		return false
	}
	want := normalizeHost(hostname)
	if want == "" {
		return false
	}
	for _, name := range c.SubjectAlternativeDNSNames() {
		if normalizeHost(name) == want {
			return true
		}
	}
	return false
}

// MatchesHostnameDER 对原始证书执行 MatchesHostname
func MatchesHostnameDER(hostname string, der []byte) bool {
	return MatchesHostname(hostname, Parse(der))
}

func normalizeHost(s string) string {
	return strings.ToLower(strings.TrimSuffix(s, "."))
}
