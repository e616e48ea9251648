package appdata

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

const sniffLen = 512

// detectMimeType prefers the file extension and falls back to content sniffing,
// since cached icon names carry no extension.
func detectMimeType(name string, head []byte) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	if len(head) == 0 {
		return "application/octet-stream"
	}
	if isSVG(head) {
		return "image/svg+xml"
	}
	return http.DetectContentType(head)
}

func sniffPrefix(data []byte) []byte {
	if len(data) > sniffLen {
		data = data[:sniffLen]
	}
	return append([]byte{}, data...)
}

func isSVG(head []byte) bool {
	s := strings.TrimSpace(strings.ToLower(string(head)))
	return strings.HasPrefix(s, "<svg") || (strings.HasPrefix(s, "<?xml") && strings.Contains(s, "<svg"))
}
