package quota

import (
	"net"
	"net/http"
	"strings"
)

// KeyFunc deriva o identificador do cliente a partir do request.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc usa o primeiro IP do X-Forwarded-For quando trustXFF está
// ligado e o header existe; senão o host de RemoteAddr.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}
