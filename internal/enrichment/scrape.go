package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lovingthemoo/contractor-spotlight-directory-sub000/internal/pkg/httpretry"
)

const maxPageBytes = 512 * 1024

// FindContactEmail fetches a business homepage and returns the first mailto
// address on it, lowercased. An empty string means none was found.
func FindContactEmail(ctx context.Context, client httpretry.HTTPDoer, site string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(site))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid website %q", site)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ContractorDirectoryBot/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse error: %w", err)
	}

	var email string
	doc.Find(`a[href]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if addr, ok := mailtoAddress(href); ok {
			email = addr
			return false
		}
		return true
	})
	return email, nil
}

func mailtoAddress(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if len(href) < 7 || !strings.EqualFold(href[:7], "mailto:") {
		return "", false
	}
	raw := href[7:]
	if i := strings.IndexAny(raw, "?,"); i >= 0 {
		raw = raw[:i]
	}
	if dec, err := url.PathUnescape(raw); err == nil {
		raw = dec
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return strings.ToLower(addr.Address), true
}
