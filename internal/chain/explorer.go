package chain

import (
	"context"
	"fmt"
	"net/url"
)

// explorerPageSize is the page size requested from the explorer.
const explorerPageSize = 100

// Explorer reads token transfers from the secondary chain's block explorer. It shares
// the Client's retry and failover policy.
type Explorer struct {
	client *Client
}

// NewExplorer creates an Explorer over c, whose nodes are explorer base URLs.
func NewExplorer(c *Client) *Explorer {
	return &Explorer{client: c}
}

// FetchTokenTransfers returns every transfer of the token contract.
func (e *Explorer) FetchTokenTransfers(ctx context.Context, contract string) ([]TokenTransfer, error) {
	var out []TokenTransfer
	for p := 1; p <= maxPages; p++ {
		path := fmt.Sprintf("/api/v2/tokens/%s/transfers?page=%d&limit=%d", url.PathEscape(contract), p, explorerPageSize)
		var resp explorerPage
		if err := e.client.getJSON(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("fetching token transfers for %s (page %d): %w", contract, p, err)
		}
		out = append(out, resp.Items...)
		if !resp.HasMore || len(resp.Items) == 0 {
			break
		}
	}
	return out, nil
}
