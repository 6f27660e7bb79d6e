package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type OrderRequest struct {
	Symbol        string
	Qty           int
	Side          alpaca.Side
	Type          alpaca.OrderType
	TimeInForce   alpaca.TimeInForce
	ClientOrderID string
	ExtendedHours bool
	LimitPrice    *float64
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Status        string
}

// Position is signed: a negative Qty is a short.
type Position struct {
	Symbol   string
	Qty      int
	AvgEntry float64
}

type Account struct {
	Equity      float64
	BuyingPower float64
}

type Asset struct {
	Symbol    string
	Tradable  bool
	Shortable bool
}

type Clock struct {
	Now       time.Time
	IsOpen    bool
	NextOpen  time.Time
	NextClose time.Time
}

type Client struct {
	client *alpaca.Client
	log    zerolog.Logger
}

func New(log zerolog.Logger, apiKey, apiSecret, baseURL string) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{client: alpaca.NewClient(opts), log: log.With().Str("component", "broker").Logger()}
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
		ExtendedHours: req.ExtendedHours,
	}
	if req.LimitPrice != nil {
		limitPrice := decimal.NewFromFloat(*req.LimitPrice).Round(2)
		orderReq.LimitPrice = &limitPrice
	}

	order, err := c.client.PlaceOrder(orderReq)
	if err != nil {
		c.log.Error().Err(err).
			Str("side", string(req.Side)).
			Str("symbol", req.Symbol).
			Int("qty", req.Qty).
			Str("type", string(req.Type)).
			Msg("place order failed")
		return OrderRef{}, fmt.Errorf("place %s order for %s: %w", req.Side, req.Symbol, err)
	}

	c.log.Info().
		Str("order_id", order.ID).
		Str("side", string(req.Side)).
		Str("symbol", req.Symbol).
		Int("qty", req.Qty).
		Str("status", string(order.Status)).
		Msg("place order success")
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Status:        string(order.Status),
	}, nil
}

func (c *Client) OpenOrders(ctx context.Context) ([]OrderRef, error) {
	orders, err := c.client.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}
	c.log.Debug().Int("count", len(orders)).Msg("open orders fetched")
	refs := make([]OrderRef, 0, len(orders))
	for _, order := range orders {
		refs = append(refs, OrderRef{
			ID:            order.ID,
			ClientOrderID: order.ClientOrderID,
			Symbol:        order.Symbol,
			Status:        string(order.Status),
		})
	}
	return refs, nil
}

// Position returns a flat position when the broker has none for symbol.
func (c *Client) Position(ctx context.Context, symbol string) (Position, error) {
	pos, err := c.client.GetPosition(symbol)
	if err != nil {
		if IsNotFound(err) {
			return Position{Symbol: symbol}, nil
		}
		return Position{}, fmt.Errorf("fetch position %s: %w", symbol, err)
	}
	qty := int(pos.Qty.IntPart())
	avgEntry, _ := pos.AvgEntryPrice.Float64()

	c.log.Debug().Str("symbol", symbol).Int("qty", qty).Float64("avg_entry", avgEntry).Msg("position fetched")
	return Position{
		Symbol:   pos.Symbol,
		Qty:      qty,
		AvgEntry: avgEntry,
	}, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		return Account{}, fmt.Errorf("fetch account: %w", err)
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	c.log.Debug().Float64("equity", equity).Float64("buying_power", buyingPower).Msg("account fetched")
	return Account{Equity: equity, BuyingPower: buyingPower}, nil
}

func (c *Client) Asset(ctx context.Context, symbol string) (Asset, error) {
	asset, err := c.client.GetAsset(symbol)
	if err != nil {
		return Asset{}, fmt.Errorf("fetch asset %s: %w", symbol, err)
	}
	return Asset{Symbol: asset.Symbol, Tradable: asset.Tradable, Shortable: asset.Shortable}, nil
}

func (c *Client) Clock(ctx context.Context) (Clock, error) {
	clock, err := c.client.GetClock()
	if err != nil {
		return Clock{}, fmt.Errorf("fetch clock: %w", err)
	}
	return Clock{
		Now:       clock.Timestamp,
		IsOpen:    clock.IsOpen,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}

func IsNotFound(err error) bool {
	var apiErr *alpaca.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
