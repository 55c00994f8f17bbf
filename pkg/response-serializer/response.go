package serializer

import (
	"bufio"
	"bytes"
	"io"
	"net/http"

	"go.trai.ch/zerr"
)

var ErrUnreadableBody = zerr.New("could not read response body")

// Snapshot captures status, headers and body of the response in HTTP/1.1 wire format.
// The response body is consumed; it is replaced with an identical in-memory body
// so the response can still be handed to the client afterwards.
func Snapshot(res *http.Response) ([]byte, error) {
	var body []byte
	if res.Body != nil {
		var err error
		body, err = io.ReadAll(res.Body)
		res.Body.Close()
		if err != nil {
			return nil, zerr.Wrap(err, ErrUnreadableBody.Error())
		}
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	res.TransferEncoding = nil

	// always write HTTP/1.1, regardless of the protocol the response arrived with
	snapshot := &http.Response{
		StatusCode:    res.StatusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        res.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	if snapshot.Header == nil {
		snapshot.Header = http.Header{}
	}
	buf := &bytes.Buffer{}
	if err := snapshot.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore creates a new response from a snapshot.
// Every call returns an independent response with its own body reader.
func Restore(b []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), req)
}
