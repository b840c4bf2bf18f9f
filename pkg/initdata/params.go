package initdata

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Field is a single key/value pair of launch data.
type Field struct {
	Key   string
	Value string
}

// Params is an ordered, immutable set of launch data fields. Every method that
// changes the set returns a new Params and leaves the receiver untouched.
type Params struct {
	fields []Field
}

func NewParams(fields ...Field) Params {
	out := make([]Field, len(fields))
	copy(out, fields)
	return Params{fields: out}
}

// ParseParams decodes a URL-encoded query string. It is lenient in the same way
// browsers are: an invalid percent escape is kept verbatim instead of failing.
func ParseParams(raw string) Params {
	raw = strings.TrimPrefix(raw, "?")
	var fields []Field
	for _, segment := range strings.Split(raw, "&") {
		if segment == "" {
			continue
		}
		key, value, _ := strings.Cut(segment, "=")
		fields = append(fields, Field{Key: formUnescape(key), Value: formUnescape(value)})
	}
	return Params{fields: fields}
}

// formUnescape decodes '+' and every well-formed %XX escape, copying a
// malformed '%' through unchanged. Bytes that are not valid UTF-8 become
// U+FFFD, one per maximal invalid subsequence, as browsers do.
func formUnescape(s string) string {
	if !strings.ContainsAny(s, "%+") && utf8.ValidString(s) {
		return s
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '+':
			b = append(b, ' ')
		case c == '%' && i+2 < len(s):
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				b = append(b, c)
				continue
			}
			b = append(b, byte(v))
			i += 2
		default:
			b = append(b, c)
		}
	}
	return decodeUTF8(b)
}

func decodeUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var out strings.Builder
	var (
		cp     rune
		needed int
		seen   int
		lower  byte = 0x80
		upper  byte = 0xBF
	)
	for i := 0; i < len(b); i++ {
		c := b[i]
		if needed == 0 {
			switch {
			case c <= 0x7F:
				out.WriteByte(c)
			case c >= 0xC2 && c <= 0xDF:
				needed, cp = 1, rune(c&0x1F)
			case c >= 0xE0 && c <= 0xEF:
				if c == 0xE0 {
					lower = 0xA0
				} else if c == 0xED {
					upper = 0x9F
				}
				needed, cp = 2, rune(c&0x0F)
			case c >= 0xF0 && c <= 0xF4:
				if c == 0xF0 {
					lower = 0x90
				} else if c == 0xF4 {
					upper = 0x8F
				}
				needed, cp = 3, rune(c&0x07)
			default:
				out.WriteRune(utf8.RuneError)
			}
			continue
		}
		if c < lower || c > upper {
			cp, needed, seen, lower, upper = 0, 0, 0, 0x80, 0xBF
			out.WriteRune(utf8.RuneError)
			i--
			continue
		}
		lower, upper = 0x80, 0xBF
		cp = cp<<6 | rune(c&0x3F)
		seen++
		if seen == needed {
			out.WriteRune(cp)
			cp, needed, seen = 0, 0, 0
		}
	}
	if needed != 0 {
		out.WriteRune(utf8.RuneError)
	}
	return out.String()
}

// Get returns the value of the first field named key.
func (p Params) Get(key string) (string, bool) {
	for _, f := range p.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// With appends a field after the existing ones.
func (p Params) With(key, value string) Params {
	out := make([]Field, len(p.fields), len(p.fields)+1)
	copy(out, p.fields)
	return Params{fields: append(out, Field{Key: key, Value: value})}
}

// Without drops every field named key.
func (p Params) Without(key string) Params {
	out := make([]Field, 0, len(p.fields))
	for _, f := range p.fields {
		if f.Key != key {
			out = append(out, f)
		}
	}
	return Params{fields: out}
}

func (p Params) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

func (p Params) Len() int {
	return len(p.fields)
}

// DataCheckString renders the fields sorted by key as "key=value" lines. The
// sort is stable, so repeated keys keep their relative order.
func (p Params) DataCheckString() string {
	sorted := p.Fields()
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	for i, f := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

// Encode serializes the fields in their current order.
func (p Params) Encode() string {
	var b strings.Builder
	for i, f := range p.fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.Value))
	}
	return b.String()
}

func (p Params) String() string {
	return p.Encode()
}
