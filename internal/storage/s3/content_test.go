package s3

import (
	"errors"
	"mime"
	"strings"
	"testing"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
)

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"index.html", "text/html; charset=utf-8"},
		{"legacy.htm", "text/html; charset=utf-8"},
		{"site.css", "text/css; charset=utf-8"},
		{"app.js", "application/javascript; charset=utf-8"},
		{"data.json", "application/json; charset=utf-8"},
		{"app.js.map", "text/plain; charset=utf-8"},
		{"notes.txt", "text/plain; charset=utf-8"},
		{"report.pdf", "application/pdf"},
		{"logo.svg", "image/svg+xml"},
		{"favicon.ico", "image/x-icon"},
		{"photo.png", "image/png"},
		{"photo.jpg", "image/jpeg"},
		{"photo.jpeg", "image/jpeg"},
		{"anim.gif", "image/gif"},
		{"PHOTO.JPG", "image/jpeg"},
		{"nested/dir/page.HTML", "text/html; charset=utf-8"},
	}

	for _, tt := range tests {
		got, err := ContentType(tt.name)
		if err != nil {
			t.Errorf("ContentType(%q) error = %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ContentType(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestContentTypeRejectsUnknownExtensions(t *testing.T) {
	for _, name := range []string{"a.unknownext", "README", "archive.tar.gz", "trailing."} {
		_, err := ContentType(name)
		if !errors.Is(err, ckerrors.ErrInvalidArgument) {
			t.Errorf("ContentType(%q) error = %v, want INVALID_ARGUMENT", name, err)
		}
	}
}

func TestContentTypeIsParseable(t *testing.T) {
	for _, name := range []string{"a.html", "a.css", "a.js", "a.json", "a.map", "a.txt", "a.pdf", "a.png"} {
		ct, err := ContentType(name)
		if err != nil {
			t.Fatalf("ContentType(%q) error = %v", name, err)
		}
		media, params, err := mime.ParseMediaType(ct)
		if err != nil {
			t.Errorf("ContentType(%q) = %q is not a valid media type: %v", name, ct, err)
			continue
		}
		isText := strings.HasPrefix(media, "text/") || media == "application/javascript" || media == "application/json"
		if isText && params["charset"] != "utf-8" {
			t.Errorf("ContentType(%q) = %q, want a utf-8 charset", name, ct)
		}
		if !isText && len(params) != 0 {
			t.Errorf("ContentType(%q) = %q, want no parameters", name, ct)
		}
	}
}
