package vnode

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/agentic-research/facetfs/internal/facet"
)

var errEmptyName = errors.New("empty name")

// DisplayName decodes a raw facet term by its type tag. Longs and doubles
// are re-rendered as decimals, dates go through render (identity when nil)
// and every other tag passes the raw value through.
func DisplayName(raw string, tag byte, render DateRenderer) (string, error) {
	switch tag {
	case facet.TagLong:
		n, err := facet.DecodeLong(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case facet.TagDouble:
		f, err := facet.DecodeDouble(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case facet.TagDate:
		if render == nil {
			return raw, nil
		}
		return render(raw)
	default:
		return raw, nil
	}
}

// EncodeName escapes characters that are illegal in a node name as _xHHHH_.
// A literal "_x" is escaped too so DecodeName can reverse it, and the names
// "." and ".." are escaped whole.
func EncodeName(s string) (string, error) {
	if s == "" {
		return "", errEmptyName
	}
	if s == "." || s == ".." {
		var b strings.Builder
		for _, r := range s {
			writeEscape(&b, r)
		}
		return b.String(), nil
	}
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' && strings.HasPrefix(s[i+1:], "x"):
			writeEscape(&b, r)
		case needsEscape(r):
			writeEscape(&b, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func needsEscape(r rune) bool {
	switch r {
	case '/', ':', '[', ']', '*', '|', '\'', '"':
		return true
	}
	return r < 0x20 || r == 0x7f
}

func writeEscape(b *strings.Builder, r rune) {
	if r > 0xffff {
		fmt.Fprintf(b, "_x%08X_", r)
		return
	}
	fmt.Fprintf(b, "_x%04X_", r)
}

// DecodeName reverses EncodeName. Malformed escapes are kept literally.
func DecodeName(s string) string {
	if !strings.Contains(s, "_x") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if r, n, ok := escapeAt(s[i:]); ok {
			b.WriteRune(r)
			i += n
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func escapeAt(s string) (rune, int, bool) {
	if !strings.HasPrefix(s, "_x") {
		return 0, 0, false
	}
	for _, width := range []int{4, 8} {
		end := 2 + width
		if len(s) <= end || s[end] != '_' {
			continue
		}
		v, err := strconv.ParseUint(s[2:end], 16, 32)
		if err != nil {
			continue
		}
		return rune(v), end + 1, true
	}
	return 0, 0, false
}
