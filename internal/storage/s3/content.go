package s3

import (
	"fmt"
	"path"
	"strings"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

// CacheControl is sent with every upload: cacheable for 30 days.
const CacheControl = "public, max-age=2592000"

// ContentType derives the MIME type from name's extension, ignoring case. Text types
// carry a UTF-8 charset. Names without a supported extension are rejected.
func ContentType(name string) (string, error) {
	ext := strings.ToLower(path.Ext(name))

	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8", nil
	case ".css":
		return "text/css; charset=utf-8", nil
	case ".js":
		return "application/javascript; charset=utf-8", nil
	case ".json":
		return "application/json; charset=utf-8", nil
	case ".map", ".txt":
		return "text/plain; charset=utf-8", nil
	case ".pdf":
		return "application/pdf", nil
	case ".svg":
		return "image/svg+xml", nil
	case ".ico":
		return "image/x-icon", nil
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".gif":
		return "image/gif", nil
	case "":
		return "", ckerrors.InvalidArgument("file_name", "has no extension").
			WithComponent(component).
			WithContext("file", name)
	default:
		return "", ckerrors.InvalidArgument("file_name", fmt.Sprintf("has unsupported extension %q", ext)).
			WithComponent(component).
			WithContext("file", name)
	}
}
