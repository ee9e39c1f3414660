package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/mcoot/dealgame/internal/model"
	"github.com/mcoot/dealgame/internal/wallet"
)

// Config holds chain endpoint settings
type Config struct {
	// RPCURL is the EVM JSON-RPC endpoint
	RPCURL string

	// TokenContract is the ERC-20 contract address (PYUSD)
	TokenContract string

	// Treasury receives entry fees and sends payouts. The node behind RPCURL
	// must be able to sign for it (eth_sendTransaction).
	Treasury string

	// TokenDecimals defaults to PYUSDDecimals
	TokenDecimals int32

	Timeout time.Duration
}

// erc20ABI covers the parts of the token contract the game touches
const erc20ABI = `[
  {"type":"function","name":"transfer","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"Transfer","anonymous":false,
   "inputs":[{"name":"from","type":"address","indexed":true},
             {"name":"to","type":"address","indexed":true},
             {"name":"value","type":"uint256","indexed":false}]}
]`

var tokenABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	return parsed
}()

// RPCClient implements Service against an EVM JSON-RPC endpoint
type RPCClient struct {
	rpc      *rpc.Client
	eth      *ethclient.Client
	token    common.Address
	treasury common.Address
	decimals int32
	logger   *slog.Logger
}

var _ Service = (*RPCClient)(nil)

// NewRPCClient validates the configuration and creates a client. HTTP
// endpoints are not contacted until the first call.
func NewRPCClient(cfg Config, logger *slog.Logger) (*RPCClient, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("rpc url is required")
	}
	token, err := wallet.Parse(cfg.TokenContract)
	if err != nil {
		return nil, fmt.Errorf("token contract: %w", err)
	}
	treasury, err := wallet.Parse(cfg.Treasury)
	if err != nil {
		return nil, fmt.Errorf("treasury: %w", err)
	}
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = PYUSDDecimals
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := rpc.DialOptions(context.Background(), cfg.RPCURL,
		rpc.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &RPCClient{
		rpc:      client,
		eth:      ethclient.NewClient(client),
		token:    token,
		treasury: treasury,
		decimals: cfg.TokenDecimals,
		logger:   logger.With(slog.String("component", "payment")),
	}, nil
}

func (c *RPCClient) Treasury() model.Principal {
	return model.Principal(strings.ToLower(c.treasury.Hex()))
}

// Close releases the RPC connection
func (c *RPCClient) Close() error {
	c.rpc.Close()
	return nil
}

// VerifyTransfer reports whether txHash is a successful transaction that
// emitted a token Transfer of exactly amountCents from one address to the other.
// Malformed, unknown or pending transactions verify as false.
func (c *RPCClient) VerifyTransfer(ctx context.Context, txHash string, from, to model.Principal, amountCents int64) (bool, error) {
	hash, err := hexutil.Decode(txHash)
	if err != nil || len(hash) != common.HashLength {
		c.logger.Info("malformed payment tx hash", slog.String("tx", txHash))
		return false, nil
	}
	sender, err := wallet.Parse(string(from))
	if err != nil {
		return false, nil
	}
	recipient, err := wallet.Parse(string(to))
	if err != nil {
		return false, nil
	}

	rcpt, err := c.eth.TransactionReceipt(ctx, common.BytesToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		c.logger.Info("payment receipt not found", slog.String("tx", txHash))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: eth_getTransactionReceipt: %v", ErrRPC, err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		c.logger.Info("payment transaction reverted", slog.String("tx", txHash))
		return false, nil
	}

	want := CentsToUnits(amountCents, c.decimals)
	for _, l := range rcpt.Logs {
		got, ok := c.transferValue(l, sender, recipient)
		if !ok {
			continue
		}
		if got.Cmp(want) == 0 {
			return true, nil
		}
		c.logger.Info("payment amount mismatch",
			slog.String("tx", txHash),
			slog.Int64("want_cents", amountCents),
			slog.Int64("got_cents", UnitsToCents(got, c.decimals)))
	}
	return false, nil
}

// transferValue decodes l if it is a token Transfer between the two addresses
func (c *RPCClient) transferValue(l *types.Log, from, to common.Address) (*big.Int, bool) {
	event := tokenABI.Events["Transfer"]
	if l.Address != c.token || len(l.Topics) != 3 || l.Topics[0] != event.ID {
		return nil, false
	}
	if common.BytesToAddress(l.Topics[1].Bytes()) != from || common.BytesToAddress(l.Topics[2].Bytes()) != to {
		return nil, false
	}

	values, err := tokenABI.Unpack("Transfer", l.Data)
	if err != nil || len(values) != 1 {
		return nil, false
	}
	value, ok := values[0].(*big.Int)
	return value, ok
}

// DistributeFunds sends amountCents of the token from the treasury to the
// given address. The node behind the endpoint signs for the treasury.
func (c *RPCClient) DistributeFunds(ctx context.Context, to model.Principal, amountCents int64) (Payout, error) {
	recipient, err := wallet.Parse(string(to))
	if err != nil {
		return Payout{}, err
	}
	amount := CentsToUnits(amountCents, c.decimals)
	if amount.Sign() < 0 {
		return Payout{}, errors.New("negative transfer amount")
	}

	data, err := tokenABI.Pack("transfer", recipient, amount)
	if err != nil {
		return Payout{}, fmt.Errorf("encode transfer: %w", err)
	}

	tx := map[string]string{
		"from": c.treasury.Hex(),
		"to":   c.token.Hex(),
		"data": hexutil.Encode(data),
	}
	var txHash common.Hash
	if err := c.rpc.CallContext(ctx, &txHash, "eth_sendTransaction", tx); err != nil {
		return Payout{}, fmt.Errorf("%w: eth_sendTransaction: %v", ErrRPC, err)
	}

	c.logger.Info("payout sent",
		slog.String("to", string(to)),
		slog.Int64("amount_cents", amountCents),
		slog.String("tx", txHash.Hex()))
	return Payout{TxHash: txHash.Hex()}, nil
}
