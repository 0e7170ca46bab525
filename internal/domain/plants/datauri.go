package plants

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// EncodeDataURI embeds image bytes as data:<type>;base64,<payload>. The
// content type is sniffed when not supplied.
func EncodeDataURI(contentType string, data []byte) string {
	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
