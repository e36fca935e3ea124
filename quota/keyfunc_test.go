package quota

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultKeyFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultKeyFunc(true)

	r := httptest.NewRequest(http.MethodPost, "http://example/log", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := fn(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestDefaultKeyFunc_IgnoresXForwardedForWhenNotTrusted(t *testing.T) {
	fn := DefaultKeyFunc(false)

	r := httptest.NewRequest(http.MethodPost, "http://example/log", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestDefaultKeyFunc_EmptyXForwardedForFallsBack(t *testing.T) {
	fn := DefaultKeyFunc(true)

	r := httptest.NewRequest(http.MethodPost, "http://example/log", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", " , 5.6.7.8")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestDefaultKeyFunc_FallbacksToRemoteAddrHost(t *testing.T) {
	fn := DefaultKeyFunc(false)

	r := httptest.NewRequest(http.MethodPost, "http://example/log", nil)
	r.RemoteAddr = "[2001:db8::1]:5555"

	if got := fn(r); got != "2001:db8::1" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestDefaultKeyFunc_RemoteAddrWithoutPort(t *testing.T) {
	fn := DefaultKeyFunc(false)

	r := httptest.NewRequest(http.MethodPost, "http://example/log", nil)
	r.RemoteAddr = "unix-socket"

	if got := fn(r); got != "unix-socket" {
		t.Fatalf("expected raw RemoteAddr, got %q", got)
	}
}
