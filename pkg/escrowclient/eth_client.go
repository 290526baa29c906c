package escrowclient

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// escrowABI is the externally observable surface of the shared escrow
// contract. Transfers are addressed by a keccak commitment of the recipient
// email so no address data lands on-chain.
const escrowABI = `[
  {"type":"function","name":"createTransfer","stateMutability":"nonpayable","inputs":[{"name":"recipientHash","type":"bytes32"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"expiry","type":"uint64"},{"name":"feeCurrency","type":"address"}],"outputs":[{"name":"transferId","type":"uint256"}]},
  {"type":"function","name":"claimTransfer","stateMutability":"nonpayable","inputs":[{"name":"transferId","type":"uint256"},{"name":"recipient","type":"address"},{"name":"preimage","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"refundTransfer","stateMutability":"nonpayable","inputs":[{"name":"transferId","type":"uint256"},{"name":"sender","type":"address"}],"outputs":[]},
  {"type":"function","name":"getStatus","stateMutability":"view","inputs":[{"name":"transferId","type":"uint256"}],"outputs":[{"name":"status","type":"uint8"},{"name":"exists","type":"bool"}]},
  {"type":"function","name":"isCancellable","stateMutability":"view","inputs":[{"name":"transferId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"nextTransferId","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

// EthClient submits transactions to the shared escrow contract.
type EthClient struct {
	client      *ethclient.Client
	contract    *bind.BoundContract
	abi         abi.ABI
	address     common.Address
	chainID     *big.Int
	feeCurrency common.Address
	transacts   *bind.TransactOpts
	callTimeout time.Duration
}

type EthClientConfig struct {
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string
	// FeeCurrency is the stablecoin the node charges transaction fees in.
	// This is the chain's fee-currency extension; the escrowed token itself
	// pays for its own movement, no native gas asset is needed.
	FeeCurrency string
	CallTimeout time.Duration
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.ContractAddress == "" {
		return nil, fmt.Errorf("escrow contract address is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for submitting transactions")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	bound := bind.NewBoundContract(address, parsedABI, cli, cli, cli)

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate
	txOpts.GasPrice = nil

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	return &EthClient{
		client:      cli,
		contract:    bound,
		abi:         parsedABI,
		address:     address,
		chainID:     chainID,
		feeCurrency: common.HexToAddress(cfg.FeeCurrency),
		transacts:   txOpts,
		callTimeout: timeout,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// RecipientCommitment derives the on-chain commitment for a recipient email.
// The contract checks the claim preimage against this hash, so it must match
// the normalization applied at creation.
func RecipientCommitment(normalizedEmail string) (common.Hash, []byte) {
	preimage := []byte(normalizedEmail)
	return crypto.Keccak256Hash(preimage), preimage
}

func (c *EthClient) CreateTransfer(ctx context.Context, req CreateTransferRequest) (CreateTransferResponse, error) {
	amount, err := ParseAmount(req.Amount, req.Decimals)
	if err != nil {
		return CreateTransferResponse{}, err
	}

	commitment, _ := RecipientCommitment(req.RecipientEmail)

	// Read the id the contract will assign before submitting. The id space
	// is append-only, so this is stable for a single-writer deployment.
	var out []interface{}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := c.contract.Call(&bind.CallOpts{Context: callCtx}, &out, "nextTransferId"); err != nil {
		return CreateTransferResponse{}, fmt.Errorf("%w: next transfer id: %v", ErrOnchain, err)
	}
	nextID, ok := out[0].(*big.Int)
	if !ok {
		return CreateTransferResponse{}, fmt.Errorf("%w: unexpected nextTransferId result", ErrOnchain)
	}

	tx, err := c.transact(ctx, "createTransfer",
		commitment,
		common.HexToAddress(req.TokenAddress),
		amount,
		uint64(req.ExpiresAt.Unix()),
		c.feeCurrency,
	)
	if err != nil {
		return CreateTransferResponse{}, fmt.Errorf("%w: create transfer tx: %v", ErrOnchain, err)
	}

	return CreateTransferResponse{
		EscrowTransferID: nextID.String(),
		TxHash:           tx.Hash().Hex(),
		RecipientHash:    commitment.Hex(),
	}, nil
}

func (c *EthClient) ClaimTransfer(ctx context.Context, escrowTransferID, recipientWallet, recipientEmail string) (ClaimTransferResponse, error) {
	id, err := parseTransferID(escrowTransferID)
	if err != nil {
		return ClaimTransferResponse{}, err
	}
	if !common.IsHexAddress(recipientWallet) {
		return ClaimTransferResponse{}, fmt.Errorf("invalid recipient wallet %q", recipientWallet)
	}
	_, preimage := RecipientCommitment(recipientEmail)

	tx, err := c.transact(ctx, "claimTransfer", id, common.HexToAddress(recipientWallet), preimage)
	if err != nil {
		return ClaimTransferResponse{}, fmt.Errorf("%w: claim transfer tx: %v", ErrOnchain, err)
	}
	return ClaimTransferResponse{TxHash: tx.Hash().Hex()}, nil
}

func (c *EthClient) RefundTransfer(ctx context.Context, escrowTransferID, senderWallet string) (RefundTransferResponse, error) {
	id, err := parseTransferID(escrowTransferID)
	if err != nil {
		return RefundTransferResponse{}, err
	}
	if !common.IsHexAddress(senderWallet) {
		return RefundTransferResponse{}, fmt.Errorf("invalid sender wallet %q", senderWallet)
	}

	tx, err := c.transact(ctx, "refundTransfer", id, common.HexToAddress(senderWallet))
	if err != nil {
		return RefundTransferResponse{}, fmt.Errorf("%w: refund transfer tx: %v", ErrOnchain, err)
	}
	return RefundTransferResponse{TxHash: tx.Hash().Hex()}, nil
}

func (c *EthClient) GetStatus(ctx context.Context, escrowTransferID string) (*Status, error) {
	id, err := parseTransferID(escrowTransferID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: callCtx}, &out, "getStatus", id); err != nil {
		return nil, fmt.Errorf("%w: get status: %v", ErrOnchain, err)
	}
	code, _ := out[0].(uint8)
	exists, _ := out[1].(bool)
	if !exists {
		return nil, nil
	}

	status, err := statusFromCode(code)
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *EthClient) IsCancellable(ctx context.Context, escrowTransferID string) (bool, error) {
	id, err := parseTransferID(escrowTransferID)
	if err != nil {
		return false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: callCtx}, &out, "isCancellable", id); err != nil {
		return false, fmt.Errorf("%w: is cancellable: %v", ErrOnchain, err)
	}
	cancellable, _ := out[0].(bool)
	return cancellable, nil
}

// Ping probes the RPC endpoint for the health handler.
func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

func (c *EthClient) transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	opts := *c.transacts
	opts.Context = ctx
	return c.contract.Transact(&opts, method, args...)
}

func parseTransferID(escrowTransferID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(escrowTransferID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid escrow transfer id %q", escrowTransferID)
	}
	return id, nil
}

func statusFromCode(code uint8) (Status, error) {
	switch code {
	case 0:
		return StatusPending, nil
	case 1:
		return StatusClaimed, nil
	case 2:
		return StatusRefunded, nil
	case 3:
		return StatusExpired, nil
	default:
		return "", fmt.Errorf("unknown escrow status code %d", code)
	}
}
