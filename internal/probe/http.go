package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/mxk/go-flowrate/flowrate"
	"github.com/pkg/errors"
)

// HTTPDownloader measures download throughput by streaming a large test
// object for a fixed window and metering the byte flow. It is the
// fallback for hosts without the speedtest CLI.
type HTTPDownloader struct {
	URL     string
	Seconds int
	Client  *http.Client
}

// DownloadResult is one metered download window.
type DownloadResult struct {
	Mbps    float64
	Bytes   int64
	Elapsed time.Duration
}

// Measure streams the test object until the window closes.
func (d *HTTPDownloader) Measure(ctx context.Context) (DownloadResult, error) {
	secs := d.Seconds
	if secs <= 0 {
		secs = 10
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return DownloadResult{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return DownloadResult{}, errors.Wrapf(ErrUnavailable, "http probe %s: %v", d.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DownloadResult{}, errors.Wrapf(ErrUnavailable, "http probe %s: status %d", d.URL, resp.StatusCode)
	}

	meter := flowrate.NewReader(resp.Body, 0)
	_, copyErr := io.Copy(io.Discard, meter)
	st := meter.Status()

	// Running out the clock mid-body is the normal way a window ends.
	if st.Bytes == 0 {
		if copyErr != nil && !errors.Is(copyErr, context.DeadlineExceeded) {
			return DownloadResult{}, errors.Wrapf(ErrUnavailable, "http probe %s: %v", d.URL, copyErr)
		}
		return DownloadResult{}, errors.Wrapf(ErrUnavailable, "http probe %s: empty body", d.URL)
	}

	return DownloadResult{
		Mbps:    float64(st.AvgRate) * 8.0 / 1e6,
		Bytes:   st.Bytes,
		Elapsed: st.Duration,
	}, nil
}
