// Package chain verifies booster payments against an EVM JSON-RPC node.
package chain

import (
	"context"
	"math/big"
	"strings"
	"time"

	"giftbox-rest-api/internal/catalog"
	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// transferTopic is the ERC-20 Transfer(address,address,uint256) event signature.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ChainReader is the read-only subset of ethclient.Client the verifier needs.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// WalletResolver returns the lowercase wallet addresses linked to a player.
type WalletResolver interface {
	Wallets(ctx context.Context, fid int64) ([]string, error)
}

// Config describes the accepted payment.
type Config struct {
	ChainID          *big.Int
	Treasury         common.Address
	PaymentToken     *common.Address // nil means the native coin
	MinConfirmations uint64
	Timeout          time.Duration
}

// Verifier checks that a transaction paid for a booster purchase.
type Verifier struct {
	reader  ChainReader
	wallets WalletResolver
	catalog *catalog.Catalog
	config  Config
	signer  types.Signer
}

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial chain RPC")
	}
	return client, nil
}

// NewVerifier creates a verifier. The chain id fixes the signer used to recover payers.
func NewVerifier(reader ChainReader, wallets WalletResolver, cat *catalog.Catalog, cfg Config) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ChainID == nil {
		cfg.ChainID = big.NewInt(1)
	}
	return &Verifier{
		reader:  reader,
		wallets: wallets,
		catalog: cat,
		config:  cfg,
		signer:  types.LatestSignerForChainID(cfg.ChainID),
	}
}

// ParseTransactionHash validates a 0x-prefixed 32-byte hash.
func ParseTransactionHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "transaction id is not hex")
	}
	if len(b) != common.HashLength {
		return common.Hash{}, errors.Errorf("transaction id must be %d bytes", common.HashLength)
	}
	return common.BytesToHash(b), nil
}

func failed(reason model.VerificationReason) model.VerificationResult {
	return model.VerificationResult{Reason: reason}
}

// fetched holds the results of the parallel lookups.
type fetched struct {
	receipt    *types.Receipt
	receiptErr error
	tx         *types.Transaction
	pending    bool
	txErr      error
	head       uint64
	headErr    error
	wallets    []string
}

// Verify checks req against the chain. A returned error means the wallet
// lookup failed; chain problems are reported through the result's reason.
func (v *Verifier) Verify(ctx context.Context, req model.PurchaseRequest) (model.VerificationResult, error) {
	hash, err := ParseTransactionHash(req.TransactionID)
	if err != nil {
		return failed(model.ReasonNotFound), nil
	}

	required, err := v.catalog.Total(req.Kind, req.Quantity)
	if err != nil {
		return model.VerificationResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, v.config.Timeout)
	defer cancel()

	var f fetched
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f.receipt, f.receiptErr = v.reader.TransactionReceipt(gctx, hash)
		return nil
	})
	g.Go(func() error {
		f.tx, f.pending, f.txErr = v.reader.TransactionByHash(gctx, hash)
		return nil
	})
	g.Go(func() error {
		f.head, f.headErr = v.reader.BlockNumber(gctx)
		return nil
	})
	g.Go(func() error {
		wallets, err := v.wallets.Wallets(gctx, req.FID)
		if err != nil {
			return errors.Wrap(err, "failed to resolve wallets")
		}
		f.wallets = wallets
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.VerificationResult{}, err
	}

	result := v.evaluate(req, hash, required, &f)
	if !result.Verified {
		logger.Info("purchase verification failed",
			zap.Int64("fid", req.FID),
			zap.String("tx", hash.Hex()),
			zap.String("reason", string(result.Reason)),
			zap.NamedError("receipt_error", f.receiptErr),
			zap.NamedError("tx_error", f.txErr),
			zap.NamedError("head_error", f.headErr))
	}
	return result, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}

func (v *Verifier) evaluate(req model.PurchaseRequest, hash common.Hash, required *big.Int, f *fetched) model.VerificationResult {
	// A pending transaction has no receipt yet.
	if f.txErr == nil && f.tx != nil && f.pending {
		return failed(model.ReasonUnconfirmed)
	}
	if isNotFound(f.txErr) || (f.txErr == nil && f.tx == nil) {
		return failed(model.ReasonNotFound)
	}
	if f.txErr != nil {
		return failed(model.ReasonRPCUnavailable)
	}
	if isNotFound(f.receiptErr) {
		return failed(model.ReasonUnconfirmed)
	}
	if f.receiptErr != nil || f.receipt == nil || f.headErr != nil {
		return failed(model.ReasonRPCUnavailable)
	}

	receipt := f.receipt
	if receipt.Status != types.ReceiptStatusSuccessful {
		return failed(model.ReasonReverted)
	}

	if receipt.BlockNumber == nil || !receipt.BlockNumber.IsUint64() {
		return failed(model.ReasonUnconfirmed)
	}
	block := receipt.BlockNumber.Uint64()
	if f.head < block || f.head-block+1 < v.config.MinConfirmations {
		return model.VerificationResult{BlockNumber: block, Reason: model.ReasonUnconfirmed}
	}

	sender, err := types.Sender(v.signer, f.tx)
	if err != nil {
		return model.VerificationResult{BlockNumber: block, Reason: model.ReasonWrongPayer}
	}
	payer := strings.ToLower(sender.Hex())
	if !containsWallet(f.wallets, payer) {
		return model.VerificationResult{BlockNumber: block, Payer: payer, Reason: model.ReasonWrongPayer}
	}

	amount := v.paidAmount(f.tx, receipt, sender)
	if amount.Cmp(required) < 0 {
		return model.VerificationResult{BlockNumber: block, Payer: payer, Amount: amount, Reason: model.ReasonInsufficientAmount}
	}

	return model.VerificationResult{
		Verified:    true,
		BlockNumber: block,
		Payer:       payer,
		Amount:      amount,
	}
}

// paidAmount sums what sender moved to the treasury in the configured asset.
func (v *Verifier) paidAmount(tx *types.Transaction, receipt *types.Receipt, sender common.Address) *big.Int {
	total := new(big.Int)

	if v.config.PaymentToken == nil {
		if tx.To() != nil && *tx.To() == v.config.Treasury && tx.Value() != nil {
			total.Set(tx.Value())
		}
		return total
	}

	token := *v.config.PaymentToken
	for _, l := range receipt.Logs {
		if l == nil || l.Removed || l.Address != token {
			continue
		}
		if len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		from := common.BytesToAddress(l.Topics[1].Bytes())
		to := common.BytesToAddress(l.Topics[2].Bytes())
		if from != sender || to != v.config.Treasury {
			continue
		}
		total.Add(total, new(big.Int).SetBytes(l.Data))
	}
	return total
}

func containsWallet(wallets []string, address string) bool {
	for _, w := range wallets {
		if strings.EqualFold(w, address) {
			return true
		}
	}
	return false
}

// Unavailable is a verifier for deployments without an RPC endpoint. Every
// payment is reported as indeterminate so clients may retry once one is set.
type Unavailable struct{}

// Verify implements the payment verifier.
func (Unavailable) Verify(ctx context.Context, req model.PurchaseRequest) (model.VerificationResult, error) {
	return failed(model.ReasonRPCUnavailable), nil
}
