package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type publicResolver struct{}

func (publicResolver) LookupIPAddr(context.Context, string) ([]net.IPAddr, error) {
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

func TestCheckURL(t *testing.T) {
	f := New()
	ctx := context.Background()

	tests := []struct {
		name string
		url  string
	}{
		{"rejects non-http schemes", "ftp://example.com/file"},
		{"rejects missing host", "http://"},
		{"rejects loopback", "http://127.0.0.1/admin"},
		{"rejects private range", "http://192.168.1.10/router"},
		{"rejects link-local", "http://169.254.169.254/latest/meta-data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.checkURL(ctx, tt.url); err == nil {
				t.Errorf("Expected %s to be rejected", tt.url)
			}
		})
	}
}

func TestFetch(t *testing.T) {
	longText := strings.Repeat("palabras de prueba con contenido suficiente ", 20)

	t.Run("extracts article content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body><nav>menu</nav><article>" + longText + "</article></body></html>"))
		}))
		defer server.Close()

		f := New()
		f.resolver = publicResolver{} // the guard otherwise rejects the loopback test server

		content, err := f.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Failed to fetch: %v", err)
		}
		if !strings.Contains(content, "palabras de prueba") {
			t.Errorf("Expected article text, got %q", content)
		}
		if strings.Contains(content, "menu") {
			t.Errorf("Expected navigation to be excluded, got %q", content)
		}
	})

	t.Run("rejects thin pages", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body><p>corto</p></body></html>"))
		}))
		defer server.Close()

		f := New()
		f.resolver = publicResolver{}
		_, err := f.Fetch(context.Background(), server.URL)
		if !errors.Is(err, ErrFetch) {
			t.Errorf("Expected ErrFetch for insufficient content, got %v", err)
		}
	})

	t.Run("rejects error statuses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer server.Close()

		f := New()
		f.resolver = publicResolver{}
		_, err := f.Fetch(context.Background(), server.URL)
		if !errors.Is(err, ErrFetch) {
			t.Errorf("Expected ErrFetch for 404, got %v", err)
		}
	})

	t.Run("blocks loopback targets", func(t *testing.T) {
		f := New()
		_, err := f.Fetch(context.Background(), "http://127.0.0.1:9/x")
		if !errors.Is(err, ErrFetch) {
			t.Errorf("Expected ErrFetch for a blocked address, got %v", err)
		}
	})
}

func TestExtractMainContent(t *testing.T) {
	long := strings.Repeat("texto largo de relleno para superar el umbral ", 15)

	t.Run("prefers a substantial article", func(t *testing.T) {
		page := "<html><body><div class=\"content\">lateral</div><article>" + long + "</article></body></html>"
		got := ExtractMainContent(page)
		if !strings.HasPrefix(got, "texto largo") {
			t.Errorf("Expected article content, got %q", got)
		}
	})

	t.Run("falls back to the largest content container", func(t *testing.T) {
		page := "<html><body><article>corto</article><main>" + long + "</main></body></html>"
		got := ExtractMainContent(page)
		if !strings.Contains(got, "texto largo") {
			t.Errorf("Expected main content, got %q", got)
		}
	})

	t.Run("falls back to joined paragraphs", func(t *testing.T) {
		page := "<html><body><p>primero</p><p>segundo</p></body></html>"
		got := ExtractMainContent(page)
		if got != "primero segundo" {
			t.Errorf("Expected joined paragraphs, got %q", got)
		}
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		page := "<html><body><p>uno   \n\t dos</p></body></html>"
		got := ExtractMainContent(page)
		if got != "uno dos" {
			t.Errorf("Expected collapsed whitespace, got %q", got)
		}
	})

	t.Run("skips script and style text", func(t *testing.T) {
		page := "<html><body><p>visible</p><script>var x = 1;</script></body></html>"
		got := ExtractMainContent(page)
		if strings.Contains(got, "var x") {
			t.Errorf("Expected script content to be excluded, got %q", got)
		}
	})
}
