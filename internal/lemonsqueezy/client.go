package lemonsqueezy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/IntrepidServicesLLC/lemonsqueezy-mcp-server/core/config"
)

const jsonAPIMediaType = "application/vnd.api+json"

type Client struct {
	http    *resty.Client
	storeID string
}

type ListOrdersParams struct {
	Page int
	Size int
}

func NewClient(cfg config.LemonSqueezyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", jsonAPIMediaType).
		SetHeader("Content-Type", jsonAPIMediaType).
		SetTimeout(timeout)

	return &Client{
		http:    httpClient,
		storeID: cfg.StoreID,
	}
}

// ListOrders fetches one page of orders, newest first.
func (c *Client) ListOrders(ctx context.Context, params ListOrdersParams) ([]Order, error) {
	query := map[string]string{
		"sort": "-createdAt",
	}
	if params.Page > 0 {
		query["page[number]"] = strconv.Itoa(params.Page)
	}
	if params.Size > 0 {
		query["page[size]"] = strconv.Itoa(params.Size)
	}
	if c.storeID != "" {
		query["filter[store_id]"] = c.storeID
	}

	var result listOrdersResponse
	var apiErr errorResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&result).
		SetError(&apiErr).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	if resp.IsError() {
		e := apiErr.toAPIError(resp.StatusCode())
		slog.DebugContext(ctx, "lemonsqueezy list orders failed",
			"status_code", e.StatusCode,
			"title", e.Title)
		return nil, fmt.Errorf("listing orders: %w", e)
	}

	return result.Data, nil
}
