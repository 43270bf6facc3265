package forwarder

import "net/http"

// hopByHop is the exact set of headers spec.md §4.3/§6 forbids forwarding in
// either direction. Comparison against http.Header keys is case-insensitive
// because http.Header canonicalizes on Set/Add/Del.
var hopByHop = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Transfer-Encoding",
	"Upgrade",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Trailer",
	"Host",
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHop {
		h.Del(name)
	}
}
