package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	c := New(30*time.Second, Options{})

	if c.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", c.Timeout)
	}
	if c.maxRedirects != 10 {
		t.Errorf("Expected maxRedirects 10, got %d", c.maxRedirects)
	}
	if c.blockPrivateIP {
		t.Error("Expected private IPs allowed by default")
	}
	if c.Transport != nil {
		t.Error("Expected default transport when private IPs are allowed")
	}
}

func TestValidateURL(t *testing.T) {
	open := New(time.Second, Options{})
	guarded := New(time.Second, Options{BlockPrivateIP: true})

	tests := []struct {
		name        string
		client      *Client
		url         string
		errContains string
	}{
		{"https ok", guarded, "https://example.com/path", ""},
		{"local AI service allowed", open, "http://localhost:5050/verify", ""},
		{"file scheme", open, "file:///etc/passwd", "scheme"},
		{"credentials", open, "http://user:pw@example.com/", "credentials"},
		{"no host", open, "http:///path", "hostname"},
		{"localhost blocked", guarded, "http://localhost:5050", "localhost"},
		{"private ip blocked", guarded, "http://192.168.1.10/", "private"},
		{"loopback v6 blocked", guarded, "http://[::1]:80/", "private"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.client.ValidateURL(tt.url)
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errContains)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err, tt.errContains)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.20.0.1", "127.0.0.1", "169.254.1.1", "fd00::1", "fe80::1", "::ffff:192.168.0.1"}
	public := []string{"8.8.8.8", "1.1.1.1", "2606:4700:4700::1111"}

	for _, s := range private {
		if !isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be private", s)
		}
	}
	for _, s := range public {
		if isPrivateIP(net.ParseIP(s)) {
			t.Errorf("%s should be public", s)
		}
	}
}

func TestDoAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"is_recipe":true}`))
	}))
	defer srv.Close()

	c := Wrap(srv.Client())
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/verify", nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	var out struct {
		Success  bool `json:"success"`
		IsRecipe bool `json:"is_recipe"`
	}
	if err := DecodeJSON(resp, 1<<20, &out); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if !out.Success || !out.IsRecipe {
		t.Errorf("unexpected body: %+v", out)
	}
}

func TestDecodeJSONRejectsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	resp, err := Wrap(srv.Client()).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	err = DecodeJSON(resp, 1<<20, &out)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status in error, got %v", err)
	}
}

func TestRedirectLimit(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/again", http.StatusFound)
	}))
	defer srv.Close()

	c := New(5*time.Second, Options{MaxRedirects: 2})
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(req)
	if err == nil || !strings.Contains(err.Error(), "stopped after 2 redirects") {
		t.Fatalf("expected redirect limit error, got %v", err)
	}
}
