// Package deobfuscate recovers URLs hidden in embed page scripts.
//
// Two encodings are handled: Dean Edwards' P.A.C.K.E.R. eval wrapper, and
// plain base64 blobs carrying a playlist address.
package deobfuscate

import (
	"errors"
	"strconv"
	"strings"

	"github.com/grafana/regexp"
)

// ErrNotPacked is returned when a script carries no packer signature.
var ErrNotPacked = errors.New("no packed script found")

const digits = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// MaxRadix is the largest radix the packer uses with an alphanumeric alphabet.
const MaxRadix = len(digits)

var (
	signatureRe = regexp.MustCompile(`eval\(\s*function\s*\(\s*p\s*,\s*a\s*,\s*c\s*,\s*k\s*,\s*e\s*,\s*[dr]\s*\)`)
	argsSingle  = regexp.MustCompile(`(?s)\}\s*\(\s*'((?:[^'\\]|\\.)*)'\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*'((?:[^'\\]|\\.)*)'\s*\.split\(\s*['"]\|['"]\s*\)`)
	argsDouble  = regexp.MustCompile(`(?s)\}\s*\(\s*"((?:[^"\\]|\\.)*)"\s*,\s*(\d+)\s*,\s*(\d+)\s*,\s*"((?:[^"\\]|\\.)*)"\s*\.split\(\s*['"]\|['"]\s*\)`)

	jsUnescaper = strings.NewReplacer(`\\`, `\`, `\'`, `'`, `\"`, `"`)
)

// Packed holds the four arguments of a packer call.
type Packed struct {
	Payload string
	Radix   int
	Count   int
	Dict    []string
}

// Unpack reverses the substitution for this call.
func (p Packed) Unpack() string {
	return Unpack(p.Payload, p.Radix, p.Count, p.Dict)
}

// Detect finds every packer call in text and parses its arguments.
// Calls whose arguments cannot be parsed are skipped.
func Detect(text string) []Packed {
	locs := signatureRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	out := make([]Packed, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if p, ok := parseArgs(text[loc[1]:end]); ok {
			out = append(out, p)
		}
	}
	return out
}

func parseArgs(s string) (Packed, bool) {
	m := argsSingle.FindStringSubmatch(s)
	if m == nil {
		m = argsDouble.FindStringSubmatch(s)
	}
	if m == nil {
		return Packed{}, false
	}

	radix, err := strconv.Atoi(m[2])
	if err != nil || radix < 2 || radix > MaxRadix {
		return Packed{}, false
	}
	count, err := strconv.Atoi(m[3])
	if err != nil {
		return Packed{}, false
	}

	return Packed{
		Payload: jsUnescaper.Replace(m[1]),
		Radix:   radix,
		Count:   count,
		Dict:    strings.Split(jsUnescaper.Replace(m[4]), "|"),
	}, true
}

// Unpack replaces, for every index from count-1 down to 0 with a non-empty
// dictionary entry, each whole-word occurrence of the index's base-radix
// numeral with that entry.
func Unpack(payload string, radix, count int, dict []string) string {
	if radix < 2 || radix > MaxRadix {
		return payload
	}
	if count > len(dict) {
		count = len(dict)
	}

	out := payload
	for c := count - 1; c >= 0; c-- {
		word := dict[c]
		if word == "" {
			continue
		}
		re := regexp.MustCompile(`\b` + EncodeRadix(c, radix) + `\b`)
		out = re.ReplaceAllLiteralString(out, word)
	}
	return out
}

// UnpackScript unpacks the first packer call in text.
func UnpackScript(text string) (string, error) {
	calls := Detect(text)
	if len(calls) == 0 {
		return "", ErrNotPacked
	}
	return calls[0].Unpack(), nil
}

// EncodeRadix renders n in the given radix using the digits 0-9a-zA-Z.
// Radices above 36 continue with upper-case letters.
func EncodeRadix(n, radix int) string {
	if radix < 2 || radix > MaxRadix {
		radix = 36
	}
	if n < 0 {
		return "-" + EncodeRadix(-n, radix)
	}
	if n < radix {
		return digits[n : n+1]
	}

	var buf [64]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = digits[n%radix]
		n /= radix
	}
	return string(buf[i:])
}

// Expand appends the unpacked form of every packer call to text.
// Text without a packer call is returned unchanged.
func Expand(text string) string {
	calls := Detect(text)
	if len(calls) == 0 {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	for _, p := range calls {
		b.WriteByte('\n')
		b.WriteString(p.Unpack())
	}
	return b.String()
}
