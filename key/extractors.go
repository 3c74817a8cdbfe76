package key

import "strings"

// Request is the minimal capability surface built-in extractors read
// from. Implementers (typically a thin adapter over *http.Request)
// expose only what they have; a method that has nothing to report
// should return the zero value.
type Request interface {
	// ClientIP returns the connecting peer's address.
	ClientIP() string
	// Path returns the request path.
	Path() string
	// Method returns the HTTP method.
	Method() string
	// HeaderValue returns a header's value and whether it was present.
	HeaderValue(name string) (string, bool)
	// RoutePattern returns the matched route pattern (e.g. "/users/*"),
	// if the caller has already resolved one; used by the Route
	// extractor to group by pattern rather than by concrete path.
	RoutePattern() (string, bool)
}

// ForwardedHeader is the conventional header consulted by IP for a
// client's real address behind a proxy.
const ForwardedHeader = "X-Forwarded-For"

// ip implements the IP extractor.
type ip struct{ forwardedHeader string }

// IP extracts "ip:"+client address, consulting forwardedHeader first
// (taking the first comma-separated token) and falling back to the
// connection peer. Pass "" to skip the forwarded-header lookup.
func IP(forwardedHeader string) Key[Request] { return ip{forwardedHeader: forwardedHeader} }

func (e ip) Extract(r Request) (string, bool) {
	if e.forwardedHeader != "" {
		if v, ok := r.HeaderValue(e.forwardedHeader); ok && v != "" {
			first := strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
			if first != "" {
				return "ip:" + first, true
			}
		}
	}
	addr := r.ClientIP()
	if addr == "" {
		return "", false
	}
	return "ip:" + addr, true
}

func (e ip) Name() string { return "ip" }

// path implements the Path extractor.
type path struct{}

// Path extracts "path:"+full request path.
func Path() Key[Request] { return path{} }

func (path) Extract(r Request) (string, bool) {
	p := r.Path()
	if p == "" {
		return "", false
	}
	return "path:" + p, true
}

func (path) Name() string { return "path" }

// pathPrefix implements the PathPrefix(n) extractor.
type pathPrefix struct{ n int }

// PathPrefix extracts "path:"+the first n non-empty path segments.
func PathPrefix(n int) Key[Request] { return pathPrefix{n: n} }

func (e pathPrefix) Extract(r Request) (string, bool) {
	segments := splitSegments(r.Path())
	if len(segments) == 0 {
		return "", false
	}
	if e.n < len(segments) {
		segments = segments[:e.n]
	}
	return "path:/" + strings.Join(segments, "/"), true
}

func (e pathPrefix) Name() string { return "path_prefix" }

func splitSegments(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// header implements the Header(name) extractor.
type header struct{ name string }

// Header extracts "header:"+name+":"+value, absent when the header is
// missing.
func Header(name string) Key[Request] { return header{name: name} }

func (e header) Extract(r Request) (string, bool) {
	v, ok := r.HeaderValue(e.name)
	if !ok {
		return "", false
	}
	return "header:" + e.name + ":" + v, true
}

func (e header) Name() string { return "header" }

// method implements the Method extractor.
type method struct{}

// Method extracts "method:"+verb.
func Method() Key[Request] { return method{} }

func (method) Extract(r Request) (string, bool) {
	m := r.Method()
	if m == "" {
		return "", false
	}
	return "method:" + m, true
}

func (method) Name() string { return "method" }

// route implements the Route extractor.
type route struct{}

// Route extracts "route:"+the matched route pattern (not the concrete
// path), for grouping e.g. "/users/{id}" traffic under one key.
func Route() Key[Request] { return route{} }

func (route) Extract(r Request) (string, bool) {
	p, ok := r.RoutePattern()
	if !ok || p == "" {
		return "", false
	}
	return "route:" + p, true
}

func (route) Name() string { return "route" }
