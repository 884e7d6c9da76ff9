package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"shopping-agent/internal/usecase"
)

// lambdaHeaders gives case-insensitive lookups over function URL headers,
// which arrive lowercased.
type lambdaHeaders map[string]string

func (h lambdaHeaders) Get(key string) string {
	if v, ok := h[strings.ToLower(key)]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// HandleLambda serves POST /search through a Lambda function URL configured
// for response streaming. Rejections are plain JSON; admitted searches stream
// frames through a pipe that the runtime drains.
func (h *Handler) HandleLambda(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	headers := lambdaHeaders(req.Headers)
	cid := correlationID(headers)

	if m := req.RequestContext.HTTP.Method; m != "" && m != http.MethodPost {
		return jsonLambdaResponse(cid, &rejection{
			status: http.StatusMethodNotAllowed,
			body:   errorResponse{Error: "METHOD_NOT_ALLOWED", Message: "Use POST."},
		}), nil
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return jsonLambdaResponse(cid, reject(&usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "invalid_base64_body", Err: err})), nil
		}
		body = decoded
	}
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}

	in, rej := h.admit(ctx, headers, body)
	if rej != nil {
		return jsonLambdaResponse(cid, rej), nil
	}

	pr, pw := io.Pipe()
	go func() {
		h.serve(ctx, cid, in, pw)
		_ = pw.Close()
	}()

	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: http.StatusOK,
		Headers:    streamHeaders(cid),
		Body:       pr,
	}, nil
}

func jsonLambdaResponse(cid string, rej *rejection) *events.LambdaFunctionURLStreamingResponse {
	b, err := json.Marshal(rej.body)
	if err != nil {
		b = []byte(`{"error":"INTERNAL_ERROR","message":"Something went wrong. Please try again."}`)
	}
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: rej.status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerCorrelationID: cid,
		},
		Body: strings.NewReader(string(b)),
	}
}

func streamHeaders(cid string) map[string]string {
	return map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"X-Accel-Buffering": "no",
		headerCorrelationID: cid,
	}
}
