// Package dataapi implements the read-only clients for the public
// Polymarket APIs.
//
// Two hosts are involved:
//   - the data API serves per-account activity history (GET /activity),
//     offset-paged;
//   - the CLOB serves resolved-market payouts (GET /markets, cursor-paged)
//     and live midpoint quotes (GET /midpoint).
//
// Every request is rate-limited via per-category TokenBuckets and
// automatically retried on 5xx errors. No endpoint here mutates anything.
package dataapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-pnl/internal/config"
	"polymarket-pnl/pkg/types"
)

// endCursor is the sentinel the CLOB returns when market paging is done.
const endCursor = "LTE="

// maxPages bounds any paging loop so a misbehaving upstream that keeps
// returning full pages cannot spin a fetch forever.
const maxPages = 10000

// Client is the read-only Polymarket API client.
type Client struct {
	data     *resty.Client // data API host (activity history)
	clob     *resty.Client // CLOB host (markets, midpoints)
	rl       *RateLimiter
	pageSize int
	logger   *slog.Logger
}

// NewClient creates a client with rate limiting and retry.
func NewClient(cfg config.SourceConfig, logger *slog.Logger) *Client {
	return &Client{
		data:     newRestyClient(cfg.DataBaseURL),
		clob:     newRestyClient(cfg.CLOBBaseURL),
		rl:       NewRateLimiter(),
		pageSize: cfg.PageSize,
		logger:   logger.With("component", "dataapi"),
	}
}

func newRestyClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")
}

// Activity fetches the complete activity history for one account,
// offset-paged oldest first. The loop stops on the first short page.
func (c *Client) Activity(ctx context.Context, account string) ([]types.RawActivity, error) {
	var rows []types.RawActivity
	for page := 0; page < maxPages; page++ {
		if err := c.rl.Activity.Wait(ctx); err != nil {
			return nil, err
		}

		var batch []types.RawActivity
		resp, err := c.data.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"user":          account,
				"limit":         strconv.Itoa(c.pageSize),
				"offset":        strconv.Itoa(len(rows)),
				"sortBy":        "TIMESTAMP",
				"sortDirection": "ASC",
			}).
			SetResult(&batch).
			ForceContentType("application/json").
			Get("/activity")
		if err != nil {
			return nil, fmt.Errorf("get activity: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("get activity: status %d: %s", resp.StatusCode(), resp.String())
		}

		rows = append(rows, batch...)
		if len(batch) < c.pageSize {
			c.logger.Debug("activity history fetched", "account", account, "rows", len(rows))
			return rows, nil
		}
	}
	return nil, fmt.Errorf("get activity: page limit reached for %s", account)
}

// marketsPage is one page of the CLOB markets endpoint, reduced to the
// fields the engine needs.
type marketsPage struct {
	Data       []types.MarketResolution `json:"data"`
	NextCursor string                   `json:"next_cursor"`
}

// Resolutions fetches the payout vectors of every closed market,
// cursor-paged. The result feeds the per-run resolution snapshot shared by
// all accounts.
func (c *Client) Resolutions(ctx context.Context) ([]types.MarketResolution, error) {
	var out []types.MarketResolution
	cursor := ""
	for page := 0; page < maxPages; page++ {
		if err := c.rl.Price.Wait(ctx); err != nil {
			return nil, err
		}

		var result marketsPage
		req := c.clob.R().
			SetContext(ctx).
			SetQueryParam("closed", "true").
			SetResult(&result).
			ForceContentType("application/json")
		if cursor != "" {
			req.SetQueryParam("next_cursor", cursor)
		}
		resp, err := req.Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("get markets: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("get markets: status %d: %s", resp.StatusCode(), resp.String())
		}

		out = append(out, result.Data...)
		if result.NextCursor == "" || result.NextCursor == endCursor {
			c.logger.Debug("resolution snapshot fetched", "markets", len(out))
			return out, nil
		}
		cursor = result.NextCursor
	}
	return nil, fmt.Errorf("get markets: page limit reached")
}

// midpointResponse is the CLOB midpoint payload. The value arrives as a
// string like every other price on this API.
type midpointResponse struct {
	Mid string `json:"mid"`
}

// Midpoint fetches the live midpoint quote for one outcome. A missing or
// unparsable quote is returned as an error; the caller falls through to the
// next rung of the mark-price chain.
func (c *Client) Midpoint(ctx context.Context, marketID string, outcomeIndex int) (float64, error) {
	if err := c.rl.Price.Wait(ctx); err != nil {
		return 0, err
	}

	var result midpointResponse
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"market":        marketID,
			"outcome_index": strconv.Itoa(outcomeIndex),
		}).
		SetResult(&result).
		ForceContentType("application/json").
		Get("/midpoint")
	if err != nil {
		return 0, fmt.Errorf("get midpoint: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("get midpoint: status %d: %s", resp.StatusCode(), resp.String())
	}

	mid, err := strconv.ParseFloat(result.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("parse midpoint %q: %w", result.Mid, err)
	}
	return mid, nil
}
