package tee

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResultCarriesStatusHeadersBody(t *testing.T) {
	rs := NewResponseSaver(nil)
	rs.Header().Set("Content-Type", "text/html")
	rs.WriteHeader(http.StatusTeapot)
	rs.Write([]byte("<h1>short and stout</h1>"))

	req := httptest.NewRequest("GET", "/index.html", nil)
	res := rs.Result(req)
	if res.StatusCode != http.StatusTeapot {
		t.Fatalf("Status is %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/html" {
		t.Fatalf("Content-Type is %s", ct)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "<h1>short and stout</h1>" {
		t.Fatalf("Body is %s", body)
	}
	if res.Request != req {
		t.Fatal("Request not set on result")
	}
}

func TestImplicitOK(t *testing.T) {
	rs := NewResponseSaver(nil)
	if rs.StatusCode() != http.StatusOK {
		t.Fatalf("Status is %d", rs.StatusCode())
	}
}

func TestTeeWritesThrough(t *testing.T) {
	rr := httptest.NewRecorder()
	rs := NewResponseSaver(rr)
	rs.Header().Set("X-Test", "yes")
	rs.Write([]byte("Hello world"))

	if rr.Body.String() != "Hello world" || string(rs.Body()) != "Hello world" {
		t.Fatalf("Bodies are %q and %q", rr.Body.String(), rs.Body())
	}
	if rr.Header().Get("X-Test") != "yes" {
		t.Fatal("Header not copied to underlying writer")
	}
}
