package minter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"degenmint/internal/contracts"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient records inscriptions on the EVM mirror contract and uses the
// recording transaction as the inscription id.
type EthClient struct {
	client         *ethclient.Client
	contract       *bind.BoundContract
	abi            abi.ABI
	address        common.Address
	chainID        *big.Int
	transacts      *bind.TransactOpts
	receiptTimeout time.Duration
}

type EthClientConfig struct {
	RPCURL          string
	PrivateKeyHex   string
	ContractAddress string
	ReceiptTimeout  time.Duration
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("inscription registry address is required")
	}
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required for recording inscriptions")
	}

	pk, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	parsedABI, err := abi.JSON(strings.NewReader(contracts.InscriptionRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("transactor: %w", err)
	}
	txOpts.GasLimit = 0 // let node estimate

	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	address := common.HexToAddress(cfg.ContractAddress)
	return &EthClient{
		client:         cli,
		contract:       bind.NewBoundContract(address, parsedABI, cli, cli, cli),
		abi:            parsedABI,
		address:        address,
		chainID:        chainID,
		transacts:      txOpts,
		receiptTimeout: timeout,
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

func (c *EthClient) Inscribe(ctx context.Context, req InscribeRequest) (InscribeResponse, error) {
	if err := validateInscribeRequest(req); err != nil {
		return InscribeResponse{}, err
	}

	opts := *c.transacts
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "recordInscription", requestKey(req.RequestID), req.WalletAddress, req.PaymentTxID)
	if err != nil {
		return InscribeResponse{}, fmt.Errorf("record inscription tx: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := WaitForReceipt(waitCtx, c.client, tx)
	if err != nil {
		return InscribeResponse{}, fmt.Errorf("wait for receipt %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return InscribeResponse{}, fmt.Errorf("record inscription tx %s reverted", tx.Hash().Hex())
	}

	return InscribeResponse{
		InscriptionID: inscriptionIDFromTx(tx.Hash()),
		TxHash:        tx.Hash().Hex(),
	}, nil
}

func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}

func (c *EthClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func validateInscribeRequest(req InscribeRequest) error {
	if strings.TrimSpace(req.RequestID) == "" {
		return fmt.Errorf("request id required")
	}
	if strings.TrimSpace(req.WalletAddress) == "" {
		return fmt.Errorf("wallet address required")
	}
	if strings.TrimSpace(req.PaymentTxID) == "" {
		return fmt.Errorf("payment tx id required")
	}
	return nil
}

// requestKey maps a request id onto the contract's bytes32 key.
func requestKey(requestID string) [32]byte {
	return crypto.Keccak256Hash([]byte(requestID))
}

func inscriptionIDFromTx(hash common.Hash) string {
	return strings.TrimPrefix(hash.Hex(), "0x") + "i0"
}

// WaitForReceipt polls until the transaction is mined or context cancelled.
func WaitForReceipt(ctx context.Context, client *ethclient.Client, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, tx.Hash())
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
