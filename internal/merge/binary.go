package merge

import (
	"bytes"
	"mime"
	"net/http"
	"path"
	"strings"
)

// Classifier tells text files, which are merged line by line, from binary
// files, which are taken whole from one side.
type Classifier struct {
	TextGlobs   []string
	BinaryGlobs []string
}

// IsBinary decides by name first: configured globs, then the MIME type
// of the extension. Unknown names fall back to sniffing content.
func (c Classifier) IsBinary(name string, content []byte) bool {
	base := path.Base(name)
	if matchAny(c.TextGlobs, base) {
		return false
	}
	if matchAny(c.BinaryGlobs, base) {
		return true
	}

	if ext := path.Ext(base); ext != "" {
		if typ := mime.TypeByExtension(ext); typ != "" {
			return !textual(typ)
		}
	}

	if bytes.IndexByte(content, 0) >= 0 {
		return true
	}
	return !textual(http.DetectContentType(content))
}

func textual(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.HasSuffix(mediaType, "+xml"), strings.HasSuffix(mediaType, "+json"):
		return true
	}
	switch mediaType {
	case "application/json", "application/xml", "application/javascript", "application/x-sh":
		return true
	}
	return false
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
