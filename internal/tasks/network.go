package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
)

const remediation = "supply a cookie file or browser cookie source for douyin.com"

// ResolveNetwork shapes the single network config requested by opts.
// A cookie file takes precedence over a browser cookie source; the proxy is always carried.
func ResolveNetwork(opts models.Options, _ string) []models.NetworkConfig {
	net := models.NetworkConfig{Proxy: strings.TrimSpace(opts.Proxy)}
	if f := strings.TrimSpace(opts.CookieFile); f != "" {
		net.CookieFile = f
	} else if b := strings.TrimSpace(opts.CookiesFromBrowser); b != "" {
		net.CookiesFromBrowser = b
	}
	return []models.NetworkConfig{net}
}

// ProbeStrategies probes url with each config in order. Only an expired platform session
// advances to the next config; any other failure is returned as is.
func ProbeStrategies(
	ctx context.Context,
	ext services.Extractor,
	url string,
	configs []models.NetworkConfig,
	logger *log.Logger,
	onAttempt func(step int, net models.NetworkConfig),
) (*models.Metadata, models.NetworkConfig, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	var last error
	for i, net := range configs {
		if onAttempt != nil {
			onAttempt(i+1, net)
		}
		meta, err := ext.Probe(ctx, url, net)
		if err == nil {
			return meta, net, nil
		}
		if services.KindOf(err) != services.KindAuthExpired {
			return nil, net, err
		}
		logger.Debug("session cookies rejected, trying next strategy", "strategy", net.Label(), "err", err)
		last = err
	}
	if last == nil {
		last = errors.New("no network configuration available")
	}
	logger.Warn("network strategies exhausted", "url", url, "err", last)
	return nil, models.NetworkConfig{}, fmt.Errorf("%w: %s", shared.ErrStrategiesExhausted, remediation)
}
