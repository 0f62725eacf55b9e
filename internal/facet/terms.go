// Package facet is the faceted-navigation query engine: it indexes stored
// content into per-facet term bitmaps and answers count and hit queries
// scoped to a docbase subtree.
package facet

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/agentic-research/facetfs/internal/schema"
)

// Type tags terminate every breakout key so callers can pick a decoder.
const (
	TagString  byte = 's'
	TagBoolean byte = 'b'
	TagLong    byte = 'l'
	TagDouble  byte = 'd'
	TagDate    byte = 't'
)

var tags = []byte{TagString, TagBoolean, TagLong, TagDouble, TagDate}

// TagFor maps a property type to its tag. References index as strings.
func TagFor(t schema.PropertyType) byte {
	switch t {
	case schema.Boolean:
		return TagBoolean
	case schema.Long:
		return TagLong
	case schema.Double:
		return TagDouble
	case schema.Date:
		return TagDate
	default:
		return TagString
	}
}

// SplitKey separates a breakout key into its raw term and tag. Keys of
// length <= 1 carry no term.
func SplitKey(key string) (string, byte, bool) {
	if len(key) <= 1 {
		return "", 0, false
	}
	return key[:len(key)-1], key[len(key)-1], true
}

const sortableLen = 16

// EncodeLong renders v so that lexicographic order matches numeric order.
func EncodeLong(v int64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v)^(1<<63))
	return hex.EncodeToString(b[:])
}

// DecodeLong accepts the sortable form or a plain decimal literal.
func DecodeLong(s string) (int64, error) {
	if u, ok := decodeSortable(s); ok {
		return int64(u ^ (1 << 63)), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode long %q: %w", s, err)
	}
	return v, nil
}

// EncodeDouble renders v so that lexicographic order matches numeric order.
func EncodeDouble(v float64) string {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], bits)
	return hex.EncodeToString(b[:])
}

// DecodeDouble accepts the sortable form or a plain decimal literal.
func DecodeDouble(s string) (float64, error) {
	if bits, ok := decodeSortable(s); ok {
		if bits&(1<<63) != 0 {
			bits &^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("decode double %q: %w", s, err)
	}
	return v, nil
}

func decodeSortable(s string) (uint64, bool) {
	if len(s) != sortableLen {
		return 0, false
	}
	var b [8]byte
	if _, err := hex.Decode(b[:], []byte(s)); err != nil {
		return 0, false
	}
	return binary.BigEndian.Uint64(b[:]), true
}

// Date resolutions selected by a "#modifier" on a facet.
var dateLayouts = map[string]string{
	"year":  "2006",
	"month": "2006-01",
	"day":   "2006-01-02",
}

// Resolutions lists the supported date modifiers.
func Resolutions() []string { return []string{"year", "month", "day"} }

// terms returns the index terms of one stored value. The first term is the
// full-resolution one; date values add one term per resolution keyed by
// modifier.
func terms(t schema.PropertyType, v string) (string, map[string]string, error) {
	switch t {
	case schema.Long:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", nil, err
		}
		return EncodeLong(n), nil, nil
	case schema.Double:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return "", nil, err
		}
		return EncodeDouble(f), nil, nil
	case schema.Boolean:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return "", nil, err
		}
		return strconv.FormatBool(b), nil, nil
	case schema.Date:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return "", nil, err
		}
		ts = ts.UTC()
		byRes := make(map[string]string, len(dateLayouts))
		for mod, layout := range dateLayouts {
			byRes[mod] = ts.Format(layout)
		}
		return ts.Format(time.RFC3339), byRes, nil
	default:
		return v, nil, nil
	}
}
