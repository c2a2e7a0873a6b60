package priceoracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// httpSource fetches spot prices and market charts from a CoinGecko-shaped API.
// Schema beyond current_price/prices is treated as opaque, per spec.
type httpSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newHTTPSource(baseURL, apiKey string, timeout time.Duration) *httpSource {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &httpSource{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type coinMarketResponse struct {
	MarketData struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// fetchSpot hits /coins/{id} and extracts current_price in usd.
func (s *httpSource) fetchSpot(ctx context.Context, coinID string) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false",
		s.baseURL, url.PathEscape(coinID))
	if s.apiKey != "" {
		u += "&x_cg_demo_api_key=" + url.QueryEscape(s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price oracle: spot HTTP %d for %s", resp.StatusCode, coinID)
	}

	var parsed coinMarketResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("price oracle: decoding spot response: %w", err)
	}

	price, ok := parsed.MarketData.CurrentPrice["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price oracle: missing current_price for %s", coinID)
	}

	return decimal.NewFromFloat(price), nil
}

// ChartPoint is one (timestamp, price) sample of a market-chart series.
type ChartPoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

// fetchChart hits /coins/{id}/market_chart for the given number of days.
func (s *httpSource) fetchChart(ctx context.Context, coinID string, horizonDays int) ([]ChartPoint, error) {
	u := fmt.Sprintf("%s/coins/%s/market_chart?vs_currency=usd&days=%d",
		s.baseURL, url.PathEscape(coinID), horizonDays)
	if s.apiKey != "" {
		u += "&x_cg_demo_api_key=" + url.QueryEscape(s.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price oracle: chart HTTP %d for %s", resp.StatusCode, coinID)
	}

	var parsed marketChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("price oracle: decoding chart response: %w", err)
	}

	points := make([]ChartPoint, 0, len(parsed.Prices))
	for _, p := range parsed.Prices {
		points = append(points, ChartPoint{
			Timestamp: time.UnixMilli(int64(p[0])),
			Price:     decimal.NewFromFloat(p[1]),
		})
	}

	return points, nil
}
