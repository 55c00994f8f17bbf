package cachekey

import (
	"net/http"
	"testing"
)

func TestRequestFromKey(t *testing.T) {
	r, _ := http.NewRequest("GET", "http://dev.localhost/page?q=1", nil)
	key := FromRequest(r)
	req, err := key.Request()
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if url := req.URL.String(); url != "http://dev.localhost/page?q=1" {
		t.Fatalf("Created request url for key %s is %s", key, url)
	}
}

func TestKeyIgnoresFragment(t *testing.T) {
	a, _ := http.NewRequest("GET", "https://dev.localhost/movies/42#cast", nil)
	b, _ := http.NewRequest("GET", "https://dev.localhost/movies/42", nil)
	if FromRequest(a) != FromRequest(b) {
		t.Fatalf("Keys differ: %s vs %s", FromRequest(a), FromRequest(b))
	}
}

func TestKeyIncludesMethod(t *testing.T) {
	get, _ := http.NewRequest("GET", "https://dev.localhost/api/movies", nil)
	head, _ := http.NewRequest("HEAD", "https://dev.localhost/api/movies", nil)
	if FromRequest(get) == FromRequest(head) {
		t.Fatal("GET and HEAD share a key")
	}
}

func TestParseKey(t *testing.T) {
	key := Key{Method: "GET", URL: "https://dev.localhost/api/movies/top"}
	parsed, err := ParseKey(key.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != key {
		t.Fatalf("Parsed key is %+v", parsed)
	}
	if _, err := ParseKey("no-separator"); err == nil {
		t.Fatal("Expected error for malformed key")
	}
}
