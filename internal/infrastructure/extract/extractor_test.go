package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!doctype html>
<html><body>
<nav><p>Home | World | Tech</p></nav>
<article>
  <h1>Chip makers expand</h1>
  <p>The first   paragraph
     of the story.</p>
  <p>A second paragraph.</p>
  <script>var tracking = 1;</script>
</article>
<footer><p>Copyright</p></footer>
</body></html>`

func TestExtractArticleParagraphs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("unexpected user agent %q", ua)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	text, err := NewExtractor(server.Client(), 0).Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := "The first paragraph of the story.\nA second paragraph."
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
	if strings.Contains(text, "Copyright") || strings.Contains(text, "Home") {
		t.Fatalf("boilerplate leaked into %q", text)
	}
}

func TestExtractTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>" + strings.Repeat("é", 50) + "</p>"))
	}))
	defer server.Close()

	text, err := NewExtractor(server.Client(), 10).Extract(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got := len([]rune(text)); got != 10 {
		t.Fatalf("rune count = %d, want 10", got)
	}
}

func TestExtractHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	if _, err := NewExtractor(server.Client(), 0).Extract(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 410 response")
	}
}

func TestExtractEmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html><body><div>no paragraphs</div></body></html>"))
	}))
	defer server.Close()

	if _, err := NewExtractor(server.Client(), 0).Extract(context.Background(), server.URL); err == nil {
		t.Fatal("expected error when no paragraph text exists")
	}
}
