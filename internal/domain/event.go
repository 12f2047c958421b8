package domain

import "github.com/shopspring/decimal"

// Operation classifies an on-chain game action.
type Operation string

const (
	OperationTransfer Operation = "transfer"
	OperationTrade    Operation = "trade"
	OperationCraft    Operation = "craft"
	OperationMorph    Operation = "morph"
	OperationBurn     Operation = "burn"
	OperationSale     Operation = "sale"
)

// Trade is a completed marketplace trade of a game NFT.
type Trade struct {
	ID        string          `json:"id"`
	TokenID   string          `json:"tokenId"`
	Seller    string          `json:"seller"`
	Buyer     string          `json:"buyer"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	TxHash    string          `json:"txHash"`
	Timestamp int64           `json:"timestamp"`
}

// Action is a crafting, morphing or burn event derived from an NFT transfer.
type Action struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
	TokenID   string    `json:"tokenId"`
	Account   string    `json:"account"`
	TxHash    string    `json:"txHash"`
	Timestamp int64     `json:"timestamp"`
}

// Sale is a token sale observed on the secondary chain's explorer.
type Sale struct {
	TxHash       string          `json:"txHash"`
	Buyer        string          `json:"buyer"`
	Amount       decimal.Decimal `json:"amount"`
	TimestampISO string          `json:"timestampISO"`
}

// ActiveUser is a distinct address with the time it was last seen on chain.
type ActiveUser struct {
	Address   string `json:"address"`
	Actions   int    `json:"actions"`
	Timestamp int64  `json:"timestamp"`
}
