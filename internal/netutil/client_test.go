package netutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://www.youtube.com/watch?v=abc", false},
		{"http", "http://youtu.be/abc", false},
		{"empty", "", true},
		{"not a url", "not-a-url", true},
		{"ftp", "ftp://example.com/file", true},
		{"no host", "https:///path", true},
		{"javascript", "javascript:alert(1)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(5 * time.Second)
	if client.Timeout != 0 {
		t.Errorf("Expected no overall timeout, got %v", client.Timeout)
	}
	tr, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Expected *http.Transport, got %T", client.Transport)
	}
	if tr.ResponseHeaderTimeout != 5*time.Second {
		t.Errorf("Expected header timeout 5s, got %v", tr.ResponseHeaderTimeout)
	}
	if tr.TLSClientConfig == nil || tr.TLSClientConfig.MinVersion == 0 {
		t.Error("Expected a minimum TLS version")
	}
}

func TestNewGetSetsHeaders(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	req, err := NewGet(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := NewClient(time.Second).Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if gotUA != UserAgent {
		t.Errorf("Expected User-Agent %q, got %q", UserAgent, gotUA)
	}
}
