package utils

import (
	"bytes"
	"net/http"
	"strings"
)

// Contains checks if a value exists in a slice.
func Contains[T comparable](slice []T, value T) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}

// DetectContentType detects the content type by sniffing the first bytes of the data.
// Markup content is reported as text, in which case it is inspected further
// for an svg root element, since the standard sniffer has no svg signature.
func DetectContentType(data []byte) string {
	// Only the first 512 bytes are used to sniff the content type.
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	// Always returns a valid content-type and "application/octet-stream" if no others seemed to match.
	ctype := http.DetectContentType(head)

	if strings.HasPrefix(ctype, "text/") && LooksLikeSVG(data) {
		return "image/svg+xml"
	}
	return ctype
}

// LooksLikeSVG reports whether the markup contains an svg element opening tag.
func LooksLikeSVG(data []byte) bool {
	return bytes.Contains(bytes.ToLower(data), []byte("<svg"))
}
