package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Backend is the subset of an RPC client the vault client needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// VaultAddresser maps a vault ID to its contract address.
type VaultAddresser interface {
	VaultAddress(ctx context.Context, vaultID string) (string, error)
}

// VaultClient executes trades by calling executeBuy and executeSell on the
// vault contract, signed with the agent key. It blocks until the transaction
// is mined.
type VaultClient struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	vaults   VaultAddresser
	gasLimit uint64
	mineWait time.Duration
	logger   *slog.Logger
}

var _ domain.TradeExecutor = (*VaultClient)(nil)

// NewVaultClient creates a VaultClient. vaults may be nil, in which case the
// vault ID must itself be the contract address. A zero gasLimit lets the
// node estimate.
func NewVaultClient(
	backend Backend,
	key *ecdsa.PrivateKey,
	chainID int64,
	vaults VaultAddresser,
	gasLimit uint64,
	mineWait time.Duration,
	logger *slog.Logger,
) *VaultClient {
	if mineWait <= 0 {
		mineWait = 2 * time.Minute
	}
	return &VaultClient{
		backend:  backend,
		key:      key,
		chainID:  big.NewInt(chainID),
		vaults:   vaults,
		gasLimit: gasLimit,
		mineWait: mineWait,
		logger:   logger.With(slog.String("component", "chain")),
	}
}

// ExecuteBuy spends req.AmountIn of the vault's base balance on the token.
func (c *VaultClient) ExecuteBuy(ctx context.Context, req domain.BuyRequest) (domain.TradeResult, error) {
	if !common.IsHexAddress(req.TokenAddress) || !req.AmountIn.IsPositive() {
		return domain.Failed(fmt.Errorf("chain: buy: %w", domain.ErrInvalidTrade)), nil
	}
	return c.transact(ctx, req.VaultID, req.MinAmountOut, "executeBuy", buyArgs(req, time.Now())...)
}

// ExecuteSell sells req.TokenAmount of the token held by the vault.
func (c *VaultClient) ExecuteSell(ctx context.Context, req domain.SellRequest) (domain.TradeResult, error) {
	if !common.IsHexAddress(req.TokenAddress) || !req.TokenAmount.IsPositive() {
		return domain.Failed(fmt.Errorf("chain: sell: %w", domain.ErrInvalidTrade)), nil
	}
	return c.transact(ctx, req.VaultID, req.MinAmountOut, "executeSell", sellArgs(req, time.Now())...)
}

// defaultDeadline bounds a request that carries no deadline of its own.
const defaultDeadline = 5 * time.Minute

func buyArgs(req domain.BuyRequest, now time.Time) []any {
	return []any{
		common.HexToAddress(req.TokenAddress),
		ToWei(req.AmountIn),
		ToWei(req.MinAmountOut),
		deadlineArg(req.Deadline, now),
	}
}

func sellArgs(req domain.SellRequest, now time.Time) []any {
	return []any{
		common.HexToAddress(req.TokenAddress),
		ToWei(req.TokenAmount),
		ToWei(req.MinAmountOut),
		deadlineArg(req.Deadline, now),
	}
}

func deadlineArg(deadline, now time.Time) *big.Int {
	if deadline.IsZero() {
		deadline = now.Add(defaultDeadline)
	}
	return big.NewInt(deadline.Unix())
}

func (c *VaultClient) transact(ctx context.Context, vaultID string, minOut decimal.Decimal, method string, args ...any) (domain.TradeResult, error) {
	addr, err := c.vaultAddress(ctx, vaultID)
	if err != nil {
		return domain.Failed(err), nil
	}

	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("chain: transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = c.gasLimit

	contract := bind.NewBoundContract(addr, vaultABI, c.backend, c.backend, c.backend)
	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		// Rejected before broadcast: estimation revert, nonce, funds.
		c.logger.WarnContext(ctx, "chain: transaction rejected",
			slog.String("vault", addr.Hex()),
			slog.String("method", method),
			slog.String("error", err.Error()),
		)
		return domain.Failed(fmt.Errorf("chain: %s: %w", method, err)), nil
	}

	log := c.logger.With(slog.String("vault", addr.Hex()), slog.String("tx_hash", tx.Hash().Hex()))
	log.InfoContext(ctx, "chain: transaction sent", slog.String("method", method))

	mineCtx, cancel := context.WithTimeout(ctx, c.mineWait)
	defer cancel()
	receipt, err := bind.WaitMined(mineCtx, c.backend, tx)
	if err != nil {
		return domain.TradeResult{TxHash: tx.Hash().Hex()}, fmt.Errorf("chain: wait mined %s: %w", tx.Hash().Hex(), err)
	}

	res := resultFromReceipt(receipt, minOut)
	if !res.Success {
		log.WarnContext(ctx, "chain: transaction reverted", slog.Uint64("block", receipt.BlockNumber.Uint64()))
	}
	return res, nil
}

func (c *VaultClient) vaultAddress(ctx context.Context, vaultID string) (common.Address, error) {
	raw := vaultID
	if c.vaults != nil {
		a, err := c.vaults.VaultAddress(ctx, vaultID)
		if err != nil {
			return common.Address{}, fmt.Errorf("chain: resolve vault %s: %w", vaultID, err)
		}
		raw = a
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("chain: vault %s: %w: no contract address", vaultID, domain.ErrInvalidTrade)
	}
	return common.HexToAddress(raw), nil
}

// resultFromReceipt turns a mined receipt into a TradeResult. The output is
// read from the TradeExecuted event; without one, minOut is reported.
func resultFromReceipt(r *types.Receipt, minOut decimal.Decimal) domain.TradeResult {
	hash := r.TxHash.Hex()
	if r.Status != types.ReceiptStatusSuccessful {
		return domain.TradeResult{TxHash: hash, Error: domain.ErrTxReverted.Error()}
	}
	out, err := amountOutFromLogs(r.Logs)
	if err != nil {
		out = minOut
	}
	return domain.TradeResult{Success: true, TxHash: hash, AmountOut: out}
}

var errNoTradeEvent = errors.New("chain: no TradeExecuted event")

func amountOutFromLogs(logs []*types.Log) (decimal.Decimal, error) {
	ev := vaultABI.Events["TradeExecuted"]
	for _, l := range logs {
		if l == nil || len(l.Topics) == 0 || l.Topics[0] != ev.ID {
			continue
		}
		vals, err := ev.Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(vals) != 3 {
			continue
		}
		if amount, ok := vals[2].(*big.Int); ok {
			return FromWei(amount), nil
		}
	}
	return decimal.Zero, errNoTradeEvent
}
