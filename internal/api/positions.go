package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// PageSize is the page size used when fetching all positions.
const PageSize = 500

// GetPositions fetches a page of positions.
func (c *Client) GetPositions(ctx context.Context, opts GetPositionsOptions) (*PositionsResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Portfolio != "" {
		query.Set("portfolio", opts.Portfolio)
	}

	var resp PositionsResponse
	if err := c.get(ctx, "/positions", query, &resp); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	return &resp, nil
}

// GetAllPositions fetches every position, optionally limited to one
// portfolio, by paginating through results.
func (c *Client) GetAllPositions(ctx context.Context, portfolio string) ([]APIPosition, error) {
	var all []APIPosition
	opts := GetPositionsOptions{Limit: PageSize, Portfolio: portfolio}

	for {
		resp, err := c.GetPositions(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Positions...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return all, nil
}

// GetPosition fetches a single position by id.
func (c *Client) GetPosition(ctx context.Context, id string) (*APIPosition, error) {
	var resp SinglePositionResponse
	if err := c.get(ctx, "/positions/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get position %s: %w", id, err)
	}
	return &resp.Position, nil
}
