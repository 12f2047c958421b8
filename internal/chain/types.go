package chain

import "encoding/json"

// Transfer is one token movement reported by a node. Timestamp is kept raw: nodes
// report platform seconds, Unix milliseconds or ISO strings depending on version.
type Transfer struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	TokenID   string          `json:"token_id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	TxHash    string          `json:"tx_hash"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Trade is one marketplace fill.
type Trade struct {
	ID        string          `json:"id"`
	TokenID   string          `json:"token_id"`
	Seller    string          `json:"seller"`
	Buyer     string          `json:"buyer"`
	Price     string          `json:"price"`
	Currency  string          `json:"currency"`
	TxHash    string          `json:"tx_hash"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Transaction is the node's view of a single transaction.
type Transaction struct {
	Hash       string          `json:"hash"`
	Ledger     int64           `json:"ledger"`
	Successful bool            `json:"successful"`
	Memo       string          `json:"memo"`
	Timestamp  json.RawMessage `json:"timestamp"`
	Operations []Transfer      `json:"operations"`
}

// TokenTransfer is an explorer token transfer on the secondary chain.
type TokenTransfer struct {
	TxHash    string `json:"tx_hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Method    string `json:"method"`
	Timestamp string `json:"timestamp"`
}

type page[T any] struct {
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
	Embedded struct {
		Records []T `json:"records"`
	} `json:"_embedded"`
}

type explorerPage struct {
	Items   []TokenTransfer `json:"items"`
	HasMore bool            `json:"has_more"`
}
