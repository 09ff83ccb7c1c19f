package executor

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// DryRunTxHash is the transaction hash reported for every simulated trade.
const DryRunTxHash = "0xdryrun0000000000000000000000000000000000000000000000000000000"

// DryRun reports every trade as successful without touching the chain. The
// reported output equals the caller's minimum output.
type DryRun struct {
	logger *slog.Logger
}

var _ domain.TradeExecutor = (*DryRun)(nil)

// NewDryRun creates a DryRun executor.
func NewDryRun(logger *slog.Logger) *DryRun {
	return &DryRun{logger: logger.With(slog.String("component", "executor"))}
}

// ExecuteBuy simulates a buy.
func (d *DryRun) ExecuteBuy(ctx context.Context, req domain.BuyRequest) (domain.TradeResult, error) {
	if err := validate(req.VaultID, req.TokenAddress, req.AmountIn); err != nil {
		return domain.Failed(err), nil
	}
	d.logger.InfoContext(ctx, "executor: dry-run buy",
		slog.String("vault_id", req.VaultID),
		slog.String("token", req.TokenAddress),
		slog.String("amount_in", req.AmountIn.String()),
	)
	return domain.TradeResult{Success: true, TxHash: DryRunTxHash, AmountOut: req.MinAmountOut}, nil
}

// ExecuteSell simulates a sell.
func (d *DryRun) ExecuteSell(ctx context.Context, req domain.SellRequest) (domain.TradeResult, error) {
	if err := validate(req.VaultID, req.TokenAddress, req.TokenAmount); err != nil {
		return domain.Failed(err), nil
	}
	d.logger.InfoContext(ctx, "executor: dry-run sell",
		slog.String("vault_id", req.VaultID),
		slog.String("token", req.TokenAddress),
		slog.String("token_amount", req.TokenAmount.String()),
	)
	return domain.TradeResult{Success: true, TxHash: DryRunTxHash, AmountOut: req.MinAmountOut}, nil
}
