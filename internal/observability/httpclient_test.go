package observability

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestWithHeadersInjectsWithoutOverriding(t *testing.T) {
	base := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if got := req.Header.Get("X-Injected"); got != "v" {
			t.Errorf("X-Injected = %q, want v", got)
		}
		if got := req.Header.Get("X-Existing"); got != "keep" {
			t.Errorf("X-Existing = %q, caller-set header must win", got)
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok"))}, nil
	})}

	c := WithHeaders(base, map[string]string{"X-Injected": "v", "X-Existing": "lose"})
	req, err := http.NewRequest(http.MethodGet, "http://example.test", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Existing", "keep")
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
}

func TestWithHeadersNoHeadersReturnsBase(t *testing.T) {
	base := &http.Client{}
	if got := WithHeaders(base, nil); got != base {
		t.Error("expected the base client back when there is nothing to inject")
	}
}

func TestNewHTTPClientWrapsTransport(t *testing.T) {
	c := NewHTTPClient(nil)
	if c == nil || c.Transport == nil {
		t.Fatal("expected an instrumented non-nil client")
	}
}
