package invoiceupload

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

var allowedMimeTypes = []string{"application/pdf", "image/png", "image/jpeg"}

const allowedMimeDescription = "PDF, PNG, or JPEG"

// detectMimeType checks the declared content type and the sniffed bytes
// against the allow-list. Both must agree.
func detectMimeType(declared string, body []byte) (string, error) {
	declaredType, err := parseMediaType(declared)
	if err != nil {
		return "", err
	}
	if !isAllowedMime(declaredType) {
		return "", fmt.Errorf("content type %s not allowed; upload a %s file", declaredType, allowedMimeDescription)
	}

	sniffed := mimetype.Detect(body)
	if !sniffed.Is(declaredType) {
		return "", fmt.Errorf("file content does not match declared type %s", declaredType)
	}
	return declaredType, nil
}

func parseMediaType(value string) (string, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return "", fmt.Errorf("content type required")
	}
	mediaType, _, err := mime.ParseMediaType(clean)
	if err != nil {
		return "", fmt.Errorf("content type invalid: %w", err)
	}
	return strings.ToLower(mediaType), nil
}

func isAllowedMime(mimeType string) bool {
	for _, candidate := range allowedMimeTypes {
		if strings.EqualFold(candidate, mimeType) {
			return true
		}
	}
	return false
}

func sanitizeFileName(name string) string {
	clean := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "-_.")
}

func defaultFileName(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "invoice.png"
	case "image/jpeg":
		return "invoice.jpg"
	default:
		return "invoice.pdf"
	}
}
