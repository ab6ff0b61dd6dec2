package extract

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/spigell/resume-batch/internal/document"
	"golang.org/x/text/encoding/charmap"
)

type textReader struct{}

func (textReader) Read(_ context.Context, _ document.Ref, data []byte) (string, error) {
	return decodeText(data), nil
}

// decodeText treats input as UTF-8 and falls back to Windows-1252, a superset of Latin-1
// for printable characters.
func decodeText(data []byte) string {
	data = trimBOM(data)
	if utf8.Valid(data) {
		return string(data)
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		decoded, _ = charmap.ISO8859_1.NewDecoder().Bytes(data)
	}
	return string(decoded)
}

func trimBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

type rtfReader struct{}

func (rtfReader) Read(_ context.Context, _ document.Ref, data []byte) (string, error) {
	return stripRTF(decodeText(data)), nil
}

// destinations whose content is never body text.
var rtfSkipGroups = map[string]bool{
	"fonttbl": true, "colortbl": true, "stylesheet": true, "info": true,
	"pict": true, "header": true, "footer": true, "themedata": true,
	"datastore": true, "latentstyles": true, "listtable": true, "listoverridetable": true,
	"rsidtbl": true, "generator": true, "xmlnstbl": true,
}

// stripRTF removes control words and non-text groups, keeping paragraph breaks.
func stripRTF(src string) string {
	var out strings.Builder
	type frame struct{ skip bool }
	stack := []frame{{}}
	skipping := func() bool { return stack[len(stack)-1].skip }

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '{':
			stack = append(stack, frame{skip: skipping()})
		case '}':
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case '\\':
			if i+1 >= len(src) {
				continue
			}
			next := src[i+1]
			switch {
			case next == '\\' || next == '{' || next == '}':
				if !skipping() {
					out.WriteByte(next)
				}
				i++
			case next == '*':
				stack[len(stack)-1].skip = true
				i++
			case next == '\'':
				if i+3 < len(src) && !skipping() {
					if b, ok := parseHex(src[i+2 : i+4]); ok {
						out.WriteString(string(charmap.Windows1252.DecodeByte(b)))
					}
				}
				i += 3
			case isLetter(next):
				j := i + 1
				for j < len(src) && isLetter(src[j]) {
					j++
				}
				word := src[i+1 : j]
				k := j
				if k < len(src) && (src[k] == '-' || isDigit(src[k])) {
					k++
					for k < len(src) && isDigit(src[k]) {
						k++
					}
				}
				param := src[j:k]
				if k < len(src) && src[k] == ' ' {
					k++
				}
				i = k - 1

				if rtfSkipGroups[word] {
					stack[len(stack)-1].skip = true
					continue
				}
				if skipping() {
					continue
				}
				switch word {
				case "par", "line", "row", "sect", "page":
					out.WriteByte('\n')
				case "tab", "cell":
					out.WriteByte('\t')
				case "u":
					if r, ok := parseUnicode(param); ok {
						out.WriteRune(r)
					}
					// skip the fallback character that follows \uN
					if i+1 < len(src) && src[i+1] != '\\' && src[i+1] != '{' && src[i+1] != '}' {
						i++
					}
				}
			default:
				i++
			}
		case '\r', '\n':
		default:
			if !skipping() {
				out.WriteByte(c)
			}
		}
	}

	return out.String()
}

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func parseHex(s string) (byte, bool) {
	var v byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		v <<= 4
		switch {
		case c >= '0' && c <= '9':
			v |= c - '0'
		case c >= 'a' && c <= 'f':
			v |= c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v |= c - 'A' + 10
		default:
			return 0, false
		}
	}
	return v, true
}

func parseUnicode(param string) (rune, bool) {
	if param == "" {
		return 0, false
	}
	n, neg := 0, false
	for i := 0; i < len(param); i++ {
		if param[i] == '-' {
			neg = true
			continue
		}
		n = n*10 + int(param[i]-'0')
	}
	if neg {
		n = 65536 - n
	}
	return rune(n), true
}
