package key

import "testing"

type fakeRequest struct {
	ip      string
	path    string
	method  string
	headers map[string]string
	route   string
	hasRoute bool
}

func (f fakeRequest) ClientIP() string { return f.ip }
func (f fakeRequest) Path() string     { return f.path }
func (f fakeRequest) Method() string   { return f.method }
func (f fakeRequest) HeaderValue(name string) (string, bool) {
	v, ok := f.headers[name]
	return v, ok
}
func (f fakeRequest) RoutePattern() (string, bool) { return f.route, f.hasRoute }

func TestIP_PrefersForwardedHeader(t *testing.T) {
	k := IP("X-Forwarded-For")
	req := fakeRequest{ip: "10.0.0.1", headers: map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.1"}}
	v, ok := k.Extract(req)
	if !ok || v != "ip:1.2.3.4" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestIP_FallsBackToClientIP(t *testing.T) {
	k := IP("X-Forwarded-For")
	req := fakeRequest{ip: "10.0.0.1"}
	v, ok := k.Extract(req)
	if !ok || v != "ip:10.0.0.1" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestPath_Extracts(t *testing.T) {
	k := Path()
	v, ok := k.Extract(fakeRequest{path: "/api/users"})
	if !ok || v != "path:/api/users" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestPathPrefix_TruncatesToN(t *testing.T) {
	k := PathPrefix(2)
	v, ok := k.Extract(fakeRequest{path: "/api/users/123/posts"})
	if !ok || v != "path:/api/users" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestHeader_MissingFails(t *testing.T) {
	k := Header("X-Api-Key")
	if _, ok := k.Extract(fakeRequest{}); ok {
		t.Fatalf("expected failure for missing header")
	}
}

func TestMethod_Extracts(t *testing.T) {
	k := Method()
	v, ok := k.Extract(fakeRequest{method: "POST"})
	if !ok || v != "method:POST" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestRoute_Extracts(t *testing.T) {
	k := Route()
	v, ok := k.Extract(fakeRequest{route: "/users/{id}", hasRoute: true})
	if !ok || v != "route:/users/{id}" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
	if _, ok := k.Extract(fakeRequest{}); ok {
		t.Fatalf("expected failure when no route pattern resolved")
	}
}
