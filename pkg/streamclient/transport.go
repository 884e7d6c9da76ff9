package streamclient

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// TransportResponse is what a transport knows once the body has ended.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends req and reports progress with the cumulative body read so
// far. The buffer passed to onProgress must not be retained after it returns.
type Transport interface {
	Do(ctx context.Context, req *http.Request, onProgress func(buffer []byte)) (*TransportResponse, error)
}

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	Client    *http.Client
	ChunkSize int
}

func (t *HTTPTransport) Do(ctx context.Context, req *http.Request, onProgress func(buffer []byte)) (*TransportResponse, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	chunk := t.ChunkSize
	if chunk <= 0 {
		chunk = 4 << 10
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buf []byte
	p := make([]byte, chunk)
	for {
		n, err := resp.Body.Read(p)
		if n > 0 {
			buf = append(buf, p[:n]...)
			if onProgress != nil {
				onProgress(buf)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return &TransportResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: buf}, nil
}
