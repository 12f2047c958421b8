package chain

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// maxPages bounds cursor pagination against a node that keeps returning a next link.
const maxPages = 500

// FetchTransfers returns every transfer of the game asset, oldest first.
func (c *Client) FetchTransfers(ctx context.Context, assetID string) ([]Transfer, error) {
	path := fmt.Sprintf("/assets/%s/transfers?order=asc&limit=200", url.PathEscape(assetID))
	out, err := collect[Transfer](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("fetching transfers for %s: %w", assetID, err)
	}
	return out, nil
}

// FetchTrades returns every marketplace trade of the game asset, oldest first.
func (c *Client) FetchTrades(ctx context.Context, assetID string) ([]Trade, error) {
	path := fmt.Sprintf("/assets/%s/trades?order=asc&limit=200", url.PathEscape(assetID))
	out, err := collect[Trade](ctx, c, path)
	if err != nil {
		return nil, fmt.Errorf("fetching trades for %s: %w", assetID, err)
	}
	return out, nil
}

// FetchTransaction returns a single transaction with its operations.
func (c *Client) FetchTransaction(ctx context.Context, hash string) (*Transaction, error) {
	var tx Transaction
	if err := c.getJSON(ctx, "/transactions/"+url.PathEscape(hash), &tx); err != nil {
		return nil, fmt.Errorf("fetching transaction %s: %w", hash, err)
	}
	return &tx, nil
}

// collect follows _links.next until a page is empty or has no next link.
func collect[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var out []T
	for range maxPages {
		var resp page[T]
		if err := c.getJSON(ctx, path, &resp); err != nil {
			return nil, err
		}
		out = append(out, resp.Embedded.Records...)

		if len(resp.Embedded.Records) == 0 || resp.Links.Next.Href == "" {
			return out, nil
		}

		u, err := url.Parse(resp.Links.Next.Href)
		if err != nil {
			slog.Warn("failed to parse pagination link, results may be incomplete",
				"href", resp.Links.Next.Href, "error", err)
			return out, nil
		}
		next := u.Path + "?" + u.RawQuery
		if next == path {
			return out, nil
		}
		path = next
	}
	slog.Warn("pagination limit reached, results may be incomplete", "path", path, "pages", maxPages)
	return out, nil
}
