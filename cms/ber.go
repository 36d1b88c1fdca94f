package cms

import (
	"errors"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const (
	berClassMask   byte = 0xc0
	berConstructed byte = 0x20
	berTagNumMask  byte = 0x1f

	berIndefinite byte = 0x80

	// maxBERDepth 嵌套层数上限，CMS 实际不超过二十层
	maxBERDepth = 64
)

var (
	errBERTruncated = errors.New("ber: truncated element")
	errBERDepth     = errors.New("ber: nesting too deep")
)

// normalizeBER 将 BER 编码转换为 DER。
// 不定长改为最短定长，构造型字符串展平为基本型，BOOLEAN 与 INTEGER 取规范值。
// 输入已是 DER 时输出与输入逐字节相同。
func normalizeBER(input []byte) ([]byte, error) {
	b := cryptobyte.NewBuilder(nil)
	n, err := berElement(b, input, 0)
	if err != nil {
		return nil, err
	}
	if n != len(input) {
		return nil, errors.New("ber: trailing data")
	}
	return b.Bytes()
}

// berElement 规范化 in 开头的一个元素写入 b，返回消耗的字节数
func berElement(b *cryptobyte.Builder, in []byte, depth int) (int, error) {
	if depth > maxBERDepth {
		return 0, errBERDepth
	}

	tag, length, hdr, indefinite, err := readBERHeader(in)
	if err != nil {
		return 0, err
	}

	if tag&berConstructed == 0 {
		if indefinite {
			return 0, errors.New("ber: indefinite length on primitive element")
		}
		value := canonicalPrimitive(tag, in[hdr:hdr+length])
		b.AddASN1(cryptobyte_asn1.Tag(tag), func(c *cryptobyte.Builder) {
			c.AddBytes(value)
		})
		return hdr + length, nil
	}

	inner := cryptobyte.NewBuilder(nil)
	var end int
	if indefinite {
		pos := hdr
		for {
			if len(in)-pos < 2 {
				return 0, errors.New("ber: missing end-of-contents")
			}
			if in[pos] == 0 && in[pos+1] == 0 {
				end = pos + 2
				break
			}
			n, err := berElement(inner, in[pos:], depth+1)
			if err != nil {
				return 0, err
			}
			pos += n
		}
	} else {
		content := in[hdr : hdr+length]
		for pos := 0; pos < len(content); {
			n, err := berElement(inner, content[pos:], depth+1)
			if err != nil {
				return 0, err
			}
			pos += n
		}
		end = hdr + length
	}

	children, err := inner.Bytes()
	if err != nil {
		return 0, err
	}

	if tag&berClassMask == 0 && isStringTag(tag&berTagNumMask) {
		flat, err := flattenSegments(children, tag&berTagNumMask)
		if err != nil {
			return 0, err
		}
		b.AddASN1(cryptobyte_asn1.Tag(tag&^berConstructed), func(c *cryptobyte.Builder) {
			c.AddBytes(flat)
		})
		return end, nil
	}

	b.AddASN1(cryptobyte_asn1.Tag(tag), func(c *cryptobyte.Builder) {
		c.AddBytes(children)
	})
	return end, nil
}

// readBERHeader 解析标签与长度。高位标签号在 CMS 中不会出现，直接拒绝
func readBERHeader(in []byte) (tag byte, length, hdr int, indefinite bool, err error) {
	if len(in) < 2 {
		return 0, 0, 0, false, errBERTruncated
	}
	tag = in[0]
	if tag == 0 {
		return 0, 0, 0, false, errors.New("ber: unexpected end-of-contents")
	}
	if tag&berTagNumMask == berTagNumMask {
		return 0, 0, 0, false, errors.New("ber: high tag numbers are not supported")
	}

	hdr = 2
	switch l := in[1]; {
	case l == berIndefinite:
		return tag, 0, hdr, true, nil
	case l < berIndefinite:
		length = int(l)
	default:
		n := int(l &^ berIndefinite)
		if n > 4 || len(in) < hdr+n {
			return 0, 0, 0, false, errors.New("ber: unsupported length encoding")
		}
		for _, c := range in[hdr : hdr+n] {
			length = length<<8 | int(c)
		}
		hdr += n
	}

	if length > len(in)-hdr {
		return 0, 0, 0, false, errBERTruncated
	}
	return tag, length, hdr, false, nil
}

// isStringTag DER 要求以基本型编码的通用类字符串与时间类型
func isStringTag(num byte) bool {
	switch cryptobyte_asn1.Tag(num) {
	case cryptobyte_asn1.BIT_STRING, cryptobyte_asn1.OCTET_STRING, cryptobyte_asn1.UTF8String,
		cryptobyte_asn1.PrintableString, cryptobyte_asn1.T61String, cryptobyte_asn1.IA5String,
		cryptobyte_asn1.UTCTime, cryptobyte_asn1.GeneralizedTime, cryptobyte_asn1.GeneralString,
		0x12, 0x1a: // NumericString, VisibleString
		return true
	}
	return false
}

// flattenSegments 拼接已规范化的分段。BIT STRING 只有最后一段允许未用位
func flattenSegments(children []byte, num byte) ([]byte, error) {
	s := cryptobyte.String(children)
	bitString := cryptobyte_asn1.Tag(num) == cryptobyte_asn1.BIT_STRING

	var out []byte
	var unused byte
	for !s.Empty() {
		var (
			seg cryptobyte.String
			tag cryptobyte_asn1.Tag
		)
		if !s.ReadAnyASN1(&seg, &tag) || tag != cryptobyte_asn1.Tag(num) {
			return nil, errors.New("ber: invalid constructed string segment")
		}
		if !bitString {
			out = append(out, seg...)
			continue
		}
		if len(seg) == 0 || unused != 0 {
			return nil, errors.New("ber: invalid BIT STRING segment")
		}
		unused = seg[0]
		out = append(out, seg[1:]...)
	}

	if bitString {
		return append([]byte{unused}, out...), nil
	}
	return out, nil
}

// canonicalPrimitive BOOLEAN 真值统一为 0xff，INTEGER 去掉多余的前导零
func canonicalPrimitive(tag byte, value []byte) []byte {
	switch cryptobyte_asn1.Tag(tag) {
	case cryptobyte_asn1.BOOLEAN:
		if len(value) == 1 && value[0] != 0 {
			return []byte{0xff}
		}
	case cryptobyte_asn1.INTEGER:
		i := 0
		for i < len(value)-1 && value[i] == 0 && value[i+1]&0x80 == 0 {
			i++
		}
		return value[i:]
	}
	return value
}
