package key

import "testing"

type stubReq struct {
	a, b string
	has  bool
}

type stubKey struct{ field func(stubReq) (string, bool) }

func (k stubKey) Extract(r stubReq) (string, bool) { return k.field(r) }
func (k stubKey) Name() string                     { return "stub" }

func aKey() Key[stubReq] { return stubKey{func(r stubReq) (string, bool) { return r.a, r.a != "" }} }
func bKey() Key[stubReq] { return stubKey{func(r stubReq) (string, bool) { return r.b, r.has }} }

func TestComposite_ConcatenatesWithSeparator(t *testing.T) {
	c := Composite[stubReq]{A: aKey(), B: bKey(), Sep: "/"}
	v, ok := c.Extract(stubReq{a: "x", b: "y", has: true})
	if !ok || v != "x/y" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestComposite_FailsIfEitherChildFails(t *testing.T) {
	c := Composite[stubReq]{A: aKey(), B: bKey()}
	if _, ok := c.Extract(stubReq{a: "x", has: false}); ok {
		t.Fatalf("expected failure when B is absent")
	}
}

func TestEither_FallsBackToB(t *testing.T) {
	e := Either[stubReq]{A: aKey(), B: Static[stubReq]{Value: "fallback"}}
	v, ok := e.Extract(stubReq{})
	if !ok || v != "fallback" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestOptional_NeverFails(t *testing.T) {
	o := Optional[stubReq]{Inner: aKey(), Default: "none"}
	v, ok := o.Extract(stubReq{})
	if !ok || v != "none" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
	v, ok = o.Extract(stubReq{a: "present"})
	if !ok || v != "present" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}

func TestComposite3_JoinsThreeParts(t *testing.T) {
	cKey := stubKey{func(r stubReq) (string, bool) { return "z", true }}
	c := Composite3[stubReq]{A: aKey(), B: bKey(), C: cKey}
	v, ok := c.Extract(stubReq{a: "x", b: "y", has: true})
	if !ok || v != "x:y:z" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
}
