package serializer

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestSnapshotBodyIntact(t *testing.T) {
	response := "HTTP/1.1 200 OK\r\nServer: Test\r\nContent-Length: 16\r\n\r\nThis is the body"

	res, err := http.ReadResponse(bufio.NewReader(strings.NewReader(response)), nil)
	if err != nil {
		panic(err)
	}

	_, err = Snapshot(res)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("Error: %v", err)
	}
	if fmt.Sprintf("%s", body) != "This is the body" {
		t.Fatalf("Body: %s", body)
	}
}

func TestRestoreIsByteForByte(t *testing.T) {
	payload := []byte("{\"movies\":[{\"id\":42,\"title\":\"Blade Runner\"}]}\n\x00\xff")
	res := &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(payload))),
	}
	bts, err := Snapshot(res)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		restored, err := Restore(bts, nil)
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(restored.Body)
		if string(body) != string(payload) {
			t.Fatalf("Restored body is %q", body)
		}
		if ct := restored.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type is %s", ct)
		}
	}
}

func TestSnapshotKeepsStatus(t *testing.T) {
	res := &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("nope")),
	}
	bts, err := Snapshot(res)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := Restore(bts, nil)
	if err != nil {
		t.Fatal(err)
	}
	if restored.StatusCode != http.StatusNotFound {
		t.Fatalf("Status is %d", restored.StatusCode)
	}
}
