package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// RouterQuoter prices trades with the router's getAmountOut view.
type RouterQuoter struct {
	router   common.Address
	contract *bind.BoundContract
}

var _ domain.Quoter = (*RouterQuoter)(nil)

// NewRouterQuoter binds the router at address to caller.
func NewRouterQuoter(address string, caller bind.ContractCaller) *RouterQuoter {
	router := common.HexToAddress(address)
	return &RouterQuoter{
		router:   router,
		contract: bind.NewBoundContract(router, routerABI, caller, nil, nil),
	}
}

// GetQuote returns the expected output of trading amountIn. For buys amountIn
// is in base units and the output in tokens; for sells the reverse.
func (q *RouterQuoter) GetQuote(ctx context.Context, token string, amountIn decimal.Decimal, isBuy bool) (domain.Quote, error) {
	if !common.IsHexAddress(token) {
		return domain.Quote{}, fmt.Errorf("chain: quote: %w: bad token address %q", domain.ErrInvalidTrade, token)
	}
	var out []any
	err := q.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountOut",
		common.HexToAddress(token), ToWei(amountIn), isBuy)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("chain: quote %s: %w: %v", token, domain.ErrQuoteUnavailable, err)
	}
	if len(out) != 1 {
		return domain.Quote{}, fmt.Errorf("chain: quote %s: %w: %d return values", token, domain.ErrQuoteUnavailable, len(out))
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return domain.Quote{}, fmt.Errorf("chain: quote %s: %w: unexpected type %T", token, domain.ErrQuoteUnavailable, out[0])
	}
	return domain.Quote{AmountOut: FromWei(amount), Router: q.router.Hex()}, nil
}
