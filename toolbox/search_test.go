package toolbox

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestSearchParsesResults(t *testing.T) {
	var gotReq *http.Request
	c := NewSearchClient("test-key")
	c.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotReq = r
		return jsonResponse(200, `{
			"web": {"results": [
				{"title": "First", "url": "https://a.example", "description": "the first hit"},
				{"title": "Second", "url": "https://b.example", "description": "the second hit"}
			]}
		}`), nil
	})

	results, err := c.Search(context.Background(), "go concurrency")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Title != "First" || results[0].URL != "https://a.example" || results[0].Snippet != "the first hit" {
		t.Errorf("results[0] = %+v", results[0])
	}

	if gotReq.Header.Get("X-Subscription-Token") != "test-key" {
		t.Error("subscription token header missing")
	}
	q := gotReq.URL.Query()
	if q.Get("q") != "go concurrency" || q.Get("count") != "7" {
		t.Errorf("query = %v", q)
	}
}

func TestSearchAPIError(t *testing.T) {
	c := NewSearchClient("k")
	c.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(429, "rate limited"), nil
	})

	_, err := c.Search(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "brave API 429") {
		t.Errorf("err = %v", err)
	}
}

func TestSearchParseError(t *testing.T) {
	c := NewSearchClient("k")
	c.client.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(200, "{not json"), nil
	})

	_, err := c.Search(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "brave parse error") {
		t.Errorf("err = %v", err)
	}
}
