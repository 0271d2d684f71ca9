package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// minTextLength is the shortest extracted text worth keeping.
const minTextLength = 100

// PageFetcher downloads web pages and extracts their readable text.
type PageFetcher struct {
	client *http.Client
}

// NewPageFetcher creates a page fetcher with the given timeout.
func NewPageFetcher(timeout time.Duration) *PageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &PageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Text returns the main text of the page at pageURL. Pages without
// extractable content yield an empty string and no error; HTTP status
// failures are returned as *HTTPError.
func (p *PageFetcher) Text(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "blogagg/1.0 (content seeder)")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &HTTPError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > minTextLength {
		return text, nil
	}
	return "", nil
}

// HTTPError is a non-success HTTP status.
type HTTPError struct {
	Code int
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.Code)
}
