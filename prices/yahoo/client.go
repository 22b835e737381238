// Package yahoo reads daily closes and live quotes from Yahoo Finance.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rustyeddy/equity/calendar"
	"github.com/rustyeddy/equity/logging"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com"

var ErrNoData = errors.New("yahoo: no data")

type Client struct {
	BaseURL   string
	HTTP      *http.Client
	UserAgent string

	log *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		HTTP:      &http.Client{Timeout: timeout},
		UserAgent: "curl/8",
		log:       logging.OrNop(log).Named("yahoo"),
	}
}

// RangeFor maps a window in calendar days to the smallest Yahoo range
// parameter that covers it.
func RangeFor(windowDays int) string {
	switch {
	case windowDays <= 5:
		return "5d"
	case windowDays <= 30:
		return "1mo"
	case windowDays <= 90:
		return "3mo"
	case windowDays <= 180:
		return "6mo"
	case windowDays <= 365:
		return "1y"
	case windowDays <= 730:
		return "2y"
	case windowDays <= 1825:
		return "5y"
	case windowDays <= 3650:
		return "10y"
	}
	return "max"
}

// BatchFetchHistorical fetches daily closes for every ticker in one spark
// request. Symbols Yahoo does not know are left out of the result.
func (c *Client) BatchFetchHistorical(ctx context.Context, tickers []string, windowDays int) (map[string]map[string]float64, error) {
	q := url.Values{}
	q.Set("symbols", strings.Join(tickers, ","))
	q.Set("range", RangeFor(windowDays))
	q.Set("interval", "1d")

	body, err := c.get(ctx, "/v7/finance/spark?"+q.Encode())
	if err != nil {
		return nil, err
	}

	out := map[string]map[string]float64{}
	gjson.GetBytes(body, "spark.result").ForEach(func(_, res gjson.Result) bool {
		sym := res.Get("symbol").String()
		r := res.Get("response.0")
		closes := parseCloses(r)
		if sym != "" && len(closes) > 0 {
			out[sym] = closes
		}
		return true
	})
	c.log.Debug("spark fetched", zap.Strings("tickers", tickers), zap.Int("resolved", len(out)))
	return out, nil
}

// CurrentPrice returns the regular market price from the chart endpoint.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) (float64, bool, error) {
	q := url.Values{}
	q.Set("range", "1d")
	q.Set("interval", "1d")

	body, err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(ticker)+"?"+q.Encode())
	if err != nil {
		return 0, false, err
	}
	p := gjson.GetBytes(body, "chart.result.0.meta.regularMarketPrice")
	if !p.Exists() || p.Type != gjson.Number || p.Float() <= 0 {
		return 0, false, nil
	}
	return p.Float(), true, nil
}

// parseCloses turns one chart-shaped result into day key -> close, dating
// each bar in the exchange's own timezone.
func parseCloses(r gjson.Result) map[string]float64 {
	loc := time.UTC
	if tz := r.Get("meta.exchangeTimezoneName").String(); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	ts := r.Get("timestamp").Array()
	cl := r.Get("indicators.quote.0.close").Array()
	out := make(map[string]float64, len(ts))
	for i := range ts {
		if i >= len(cl) || cl[i].Type != gjson.Number || cl[i].Float() == 0 {
			continue
		}
		d := time.Unix(ts[i].Int(), 0).In(loc)
		out[calendar.Key(calendar.Truncate(d))] = cl[i].Float()
	}
	return out
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo %s: status %d", path, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, ErrNoData
	}
	return body, nil
}
