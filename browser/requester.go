package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPRequester issues direct requests on behalf of a page.
type HTTPRequester struct {
	client *resty.Client
}

// NewHTTPRequester builds a requester with the given timeout and user agent.
func NewHTTPRequester(timeout time.Duration, userAgent string) *HTTPRequester {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json, text/plain, */*")
	if userAgent != "" {
		client.SetHeader("User-Agent", userAgent)
	}
	return &HTTPRequester{client: client}
}

// Client exposes the underlying resty client.
func (r *HTTPRequester) Client() *resty.Client {
	return r.client
}

// Do sends req with cookies attached. Non-2xx statuses are not errors; the
// caller inspects Response.Status.
func (r *HTTPRequester) Do(ctx context.Context, req DirectRequest, cookies []*http.Cookie) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	request := r.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers)
	if len(cookies) > 0 {
		request.SetCookies(cookies)
	}
	if req.Body != nil {
		request.SetBody(req.Body)
	}

	resp, err := request.Execute(method, req.URL)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}

	headers := make(map[string]string, len(resp.Header()))
	for name := range resp.Header() {
		headers[strings.ToLower(name)] = resp.Header().Get(name)
	}
	return Response{
		URL:     req.URL,
		Method:  method,
		Status:  resp.StatusCode(),
		Headers: headers,
		Body:    resp.Body(),
	}, nil
}
