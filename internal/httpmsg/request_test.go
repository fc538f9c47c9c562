package httpmsg_test

import (
	"testing"

	"github.com/hallvik/gatekeeper/internal/httpmsg"
)

func TestParseOriginFormUsesHostHeader(t *testing.T) {
	raw := "GET /path?x=1 HTTP/1.1\r\nHost: example.test:8080\r\nUser-Agent: test\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Host != "example.test" || req.Port != 8080 {
		t.Errorf("got host=%q port=%d", req.Host, req.Port)
	}
	if req.Path != "/path?x=1" {
		t.Errorf("got path=%q", req.Path)
	}
	if req.Headers["user-agent"] != "test" {
		t.Errorf("expected lower-cased header key, got %+v", req.Headers)
	}
}

func TestParseOriginFormDefaultPort(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.test\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Port != 80 {
		t.Errorf("expected default port 80, got %d", req.Port)
	}
}

func TestParseAbsoluteURI(t *testing.T) {
	raw := "GET http://example.test:8888/a/b HTTP/1.1\r\nHost: ignored.test\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Host != "example.test" || req.Port != 8888 || req.Path != "/a/b" {
		t.Errorf("got host=%q port=%d path=%q", req.Host, req.Port, req.Path)
	}
}

func TestParseAbsoluteHTTPSDefaultPort(t *testing.T) {
	raw := "GET https://example.test/secure HTTP/1.1\r\nHost: ignored.test\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Port != 443 {
		t.Errorf("expected default port 443 for https absolute URI, got %d", req.Port)
	}
}

func TestParseConnectAuthorityForm(t *testing.T) {
	raw := "CONNECT example.test:443 HTTP/1.1\r\nHost: example.test:443\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Method != httpmsg.MethodConnect || req.Host != "example.test" || req.Port != 443 {
		t.Errorf("got method=%q host=%q port=%d", req.Method, req.Host, req.Port)
	}
}

func TestParseConnectIPv6Bracketed(t *testing.T) {
	raw := "CONNECT [::1]:8443 HTTP/1.1\r\nHost: [::1]:8443\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Host != "::1" || req.Port != 8443 {
		t.Errorf("got host=%q port=%d", req.Host, req.Port)
	}
}

func TestParseIPv6HostHeaderWithoutPort(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: [::1]\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Host != "::1" || req.Port != 80 {
		t.Errorf("got host=%q port=%d", req.Host, req.Port)
	}
}

func TestParseDuplicateHeaderLastValueWins(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.test\r\nX-Flag: one\r\nX-Flag: two\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Headers["x-flag"] != "two" {
		t.Errorf("expected last duplicate header value to win, got %q", req.Headers["x-flag"])
	}
}

func TestParseMalformedRequestLineFails(t *testing.T) {
	raw := "NOTAREQUESTLINE\r\nHost: example.test\r\n"
	if _, err := httpmsg.Parse([]byte(raw)); err == nil {
		t.Fatalf("expected an error for a malformed request line")
	}
}

func TestParseHostHeaderNonNumericPortFallsBackToDefault(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.test:abc\r\n"
	req, err := httpmsg.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if req.Host != "example.test" || req.Port != 80 {
		t.Errorf("got host=%q port=%d", req.Host, req.Port)
	}
}

func TestParseHostHeaderPortOutOfRangeFails(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.test:99999\r\n"
	if _, err := httpmsg.Parse([]byte(raw)); err == nil {
		t.Fatalf("expected an error for an out-of-range port")
	}
}

func TestParseAbsoluteURIPortOutOfRangeFails(t *testing.T) {
	raw := "GET http://example.test:99999/a HTTP/1.1\r\nHost: example.test\r\n"
	if _, err := httpmsg.Parse([]byte(raw)); err == nil {
		t.Fatalf("expected an error for an out-of-range absolute URI port")
	}
}

func TestParseNoHostFails(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n"
	if _, err := httpmsg.Parse([]byte(raw)); err == nil {
		t.Fatalf("expected an error when no Host header and no absolute URI")
	}
}
