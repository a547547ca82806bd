package service

import "strings"

// ResolveImageURL makes a stored image reference absolute. References that
// already start with "http" are returned unchanged; anything else is treated
// as a path under baseURL.
func ResolveImageURL(baseURL string, ref *string) string {
	if ref == nil {
		return ""
	}
	u := strings.TrimSpace(*ref)
	if u == "" || strings.HasPrefix(u, "http") {
		return u
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(u, "/")
}
