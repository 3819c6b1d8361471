package merge

import (
	"bytes"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// text is a decoded file: its lines plus what is needed to write it back.
type text struct {
	lines    []string
	eol      string // empty when the content has no line break
	trailing bool   // ends with a line break
	enc      encoding.Encoding
	encName  string
}

// detectEOL returns the most frequent line break of content.
func detectEOL(content []byte) string {
	crlf := bytes.Count(content, []byte("\r\n"))
	lf := bytes.Count(content, []byte("\n")) - crlf
	cr := bytes.Count(content, []byte("\r")) - crlf

	switch {
	case crlf == 0 && lf == 0 && cr == 0:
		return ""
	case crlf >= lf && crlf >= cr:
		return "\r\n"
	case lf >= cr:
		return "\n"
	default:
		return "\r"
	}
}

// detectEncoding sniffs the character encoding of content. Plain ASCII is
// reported as UTF-8.
func detectEncoding(content []byte) (encoding.Encoding, string) {
	enc, name, _ := charset.DetermineEncoding(content, "text/plain")
	if name == "utf-8" || isASCII(content) {
		return unicode.UTF8, "utf-8"
	}
	return enc, name
}

func isASCII(content []byte) bool {
	for _, c := range content {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

func decode(content []byte) (text, error) {
	enc, name := detectEncoding(content)
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return text{}, err
	}

	t := text{eol: detectEOL(decoded), enc: enc, encName: name}
	s := string(decoded)
	if s == "" {
		return t, nil
	}

	sep := t.eol
	if sep == "" {
		sep = "\n"
	}
	t.trailing = strings.HasSuffix(s, sep)
	t.lines = strings.Split(strings.TrimSuffix(s, sep), sep)
	return t, nil
}

func encode(lines []string, eol string, trailing bool, enc encoding.Encoding) ([]byte, bool, error) {
	if len(lines) == 0 {
		return nil, false, nil
	}
	s := strings.Join(lines, eol)
	if trailing {
		s += eol
	}

	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err == nil {
		return out, false, nil
	}
	out, err = encoding.ReplaceUnsupported(enc.NewEncoder()).Bytes([]byte(s))
	return out, true, err
}
