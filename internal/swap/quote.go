package swap

import (
	"context"
	"encoding/json"
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Quote is a priced swap proposal with the opaque transaction payload the
// execution service will sign and broadcast.
type Quote struct {
	TokenMint     string
	TokenSymbol   string
	Side          string
	Amount        float64
	PricePerToken float64
	Payload       []byte
	QuotedAt      time.Time
}

// QuoteBuilder supplies transaction payloads for swap orders. The payload
// is opaque to this service; only the external executor interprets it.
type QuoteBuilder interface {
	Build(ctx context.Context, tokenMint, side string, amount float64) (*Quote, error)
}

// MockQuoteBuilder is a stand-in for the real quote/instruction service.
// Prices drift randomly around a per-mint base so repeated quotes differ,
// matching the staleness a rebuilt order would carry in production.
type MockQuoteBuilder struct{}

func NewMockQuoteBuilder() *MockQuoteBuilder {
	return &MockQuoteBuilder{}
}

func (b *MockQuoteBuilder) Build(ctx context.Context, tokenMint, side string, amount float64) (*Quote, error) {
	mint, err := solana.PublicKeyFromBase58(tokenMint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint address: %w", err)
	}

	price := basePrice(mint) * (1 + (mrand.Float64()*0.02 - 0.01))

	payload, err := json.Marshal(map[string]interface{}{
		"mint":   mint.String(),
		"side":   side,
		"amount": amount,
		"price":  price,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode swap payload: %w", err)
	}

	return &Quote{
		TokenMint:     mint.String(),
		TokenSymbol:   symbolForMint(mint),
		Side:          side,
		Amount:        amount,
		PricePerToken: price,
		Payload:       payload,
		QuotedAt:      time.Now(),
	}, nil
}

// basePrice derives a stable pseudo-price from the mint bytes so the same
// token quotes in the same neighborhood across calls.
func basePrice(mint solana.PublicKey) float64 {
	var sum int
	for _, b := range mint.Bytes() {
		sum += int(b)
	}
	return float64(sum%1000) + 1
}

func symbolForMint(mint solana.PublicKey) string {
	s := mint.String()
	if len(s) < 4 {
		return s
	}
	return s[:4]
}
