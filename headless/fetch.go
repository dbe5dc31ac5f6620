package headless

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"
)

const UserAgent = "peerboard-headless/fetcher"

var ErrUnexpectedStatus = fmt.Errorf("unexpected response status")

type fetcher struct {
	client  *resty.Client
	limiter *semaphore.Weighted
}

func newFetcher(transport http.RoundTripper, timeout time.Duration, concurrent int64) *fetcher {
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.MaxIdleConnsPerHost = 10
		t.IdleConnTimeout = time.Minute
		transport = t
	}

	client := resty.New().
		SetTransport(transport).
		SetTimeout(timeout).
		SetHeader("User-Agent", UserAgent).
		SetHeader("Accept", "application/javascript, text/javascript, */*")

	return &fetcher{
		client:  client,
		limiter: semaphore.NewWeighted(concurrent),
	}
}

func (f *fetcher) fetch(ctx context.Context, src string) (string, error) {
	if err := f.limiter.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer f.limiter.Release(1)

	resp, err := f.client.R().SetContext(ctx).Get(src)
	if err != nil {
		return "", fmt.Errorf("error fetching %s: %w", src, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, src, resp.StatusCode())
	}

	return string(resp.Body()), nil
}
