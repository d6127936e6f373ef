package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultBrowsers is the order in which browser cookie stores are tried.
var DefaultBrowsers = []string{"safari", "chrome", "firefox", "edge", "brave"}

// Cookie is one entry of a Netscape cookie jar.
type Cookie struct {
	Domain string
	Path   string
	Secure bool
	Name   string
	Value  string
}

// ParseNetscapeCookies reads a cookies.txt file. Comment lines are skipped,
// except the #HttpOnly_ prefix which marks a regular entry.
func ParseNetscapeCookies(r io.Reader) ([]Cookie, error) {
	var cookies []Cookie
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			continue
		}
		cookies = append(cookies, Cookie{
			Domain: fields[0],
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie jar: %w", err)
	}
	return cookies, nil
}

// HasCookie reports whether cookies holds name for domain or a subdomain of it.
func HasCookie(cookies []Cookie, domain, name string) bool {
	domain = strings.TrimPrefix(strings.ToLower(domain), ".")
	for _, c := range cookies {
		d := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
		if c.Name == name && (d == domain || strings.HasSuffix(d, "."+domain)) {
			return true
		}
	}
	return false
}

// CookieTarget names the site whose authentication cookie proves a usable browser store.
type CookieTarget struct {
	SiteURL string
	Domain  string
	Cookie  string
}

// DouyinCookieTarget is the platform that needs authenticated cookies.
var DouyinCookieTarget = CookieTarget{
	SiteURL: "https://www.douyin.com/",
	Domain:  "douyin.com",
	Cookie:  "s_v_web_id",
}

// DetectCookieSource returns the first browser whose cookie store holds the target cookie.
// Each browser is probed at most once. ok is false when none qualifies.
func DetectCookieSource(ctx context.Context, prober CookieProber, browsers []string, target CookieTarget, logger *log.Logger) (string, bool) {
	if len(browsers) == 0 {
		browsers = DefaultBrowsers
	}
	for _, b := range browsers {
		if ctx.Err() != nil {
			return "", false
		}
		cookies, err := prober.BrowserCookies(ctx, b, target.SiteURL)
		if err != nil {
			if logger != nil {
				logger.Debug("browser cookie probe failed", "browser", b, "err", err)
			}
			continue
		}
		if HasCookie(cookies, target.Domain, target.Cookie) {
			return b, true
		}
	}
	return "", false
}
