package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/videofetcher/internal/services"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/urfave/cli/v3"
)

// CookiesDetect reports the first browser with a usable platform session.
func (r *Runner) CookiesDetect(ctx context.Context, cmd *cli.Command) error {
	ext, closeFn, err := r.newExtractor()
	if err != nil {
		return err
	}
	defer closeFn()

	prober, ok := ext.(services.CookieProber)
	if !ok {
		return fmt.Errorf("%w: %s cannot read browser cookies", shared.ErrServiceUnavailable, ext.Name())
	}

	browser, found := services.DetectCookieSource(ctx, prober, cmd.StringSlice("browser"), services.DouyinCookieTarget, r.logger)
	if !found {
		r.writePlain("No browser has a %s session. Run 'vf cookies refresh' and sign in.\n", services.DouyinCookieTarget.Domain)
		return fmt.Errorf("%w: no usable browser cookies", shared.ErrMissingConfig)
	}

	r.logger.Debug("cookie source detected", "browser", browser)
	return r.writePlain("%s\n", browser)
}

// CookiesRefresh opens the platform so the browser renews its session cookies.
func (r *Runner) CookiesRefresh(ctx context.Context, cmd *cli.Command) error {
	site := services.DouyinCookieTarget.SiteURL
	if err := shared.OpenBrowser(site); err != nil {
		r.writePlain("Open %s in your browser to refresh its cookies.\n", site)
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return r.writePlain("Opened %s; browse a video, then run 'vf cookies detect'.\n", site)
}
