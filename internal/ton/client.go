package ton

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

const txBatchSize = 100

type LiteConfig struct {
	Network string // mainnet/testnet
	Host    string
	Port    int
	Key     string
}

// Connect establishes a connection to the TON network.
// If Host + Key are set, connects to a specific lite server.
// Otherwise, auto-discovers lite servers from the global config of Network.
func Connect(ctx context.Context, cfg LiteConfig, log *zap.Logger) (ton.APIClientWrapped, error) {
	client := liteclient.NewConnectionPool()

	if cfg.Host != "" && cfg.Key != "" {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		log.Info("connecting to lite server", zap.String("addr", addr))
		if err := client.AddConnection(ctx, addr, cfg.Key); err != nil {
			return nil, fmt.Errorf("connect to lite server %s: %w", addr, err)
		}
	} else {
		configURL := "https://ton.org/testnet-global.config.json"
		if strings.EqualFold(cfg.Network, "mainnet") {
			configURL = "https://ton.org/global.config.json"
		}
		log.Info("connecting via global config", zap.String("url", configURL), zap.String("network", cfg.Network))
		if err := client.AddConnectionsFromConfigUrl(ctx, configURL); err != nil {
			return nil, fmt.Errorf("connect via config %s: %w", configURL, err)
		}
	}

	proofPolicy := ton.ProofCheckPolicyFast
	if strings.EqualFold(cfg.Network, "mainnet") {
		proofPolicy = ton.ProofCheckPolicySecure
	}
	return ton.NewAPIClient(client, proofPolicy).WithRetry(), nil
}

// IncomingTransfer is a plain TON transfer received by the escrow wallet.
type IncomingTransfer struct {
	Hash    string
	LT      uint64
	Sender  string // raw
	Amount  uint64
	Comment string
	At      time.Time
}

// Cursor identifies the last processed transaction of an account.
type Cursor struct {
	LT   uint64
	Hash []byte
}

// Scanner lists transactions of the escrow hot wallet.
type Scanner struct {
	api  ton.APIClientWrapped
	addr *address.Address
}

func NewScanner(api ton.APIClientWrapped, addr *address.Address) *Scanner {
	return &Scanner{api: api, addr: addr}
}

// Head returns the cursor of the latest transaction, or a zero cursor when
// the account is not active yet.
func (s *Scanner) Head(ctx context.Context) (Cursor, error) {
	block, err := s.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return Cursor{}, fmt.Errorf("get master block: %w", err)
	}
	account, err := s.api.GetAccount(ctx, block, s.addr)
	if err != nil {
		return Cursor{}, fmt.Errorf("get account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return Cursor{}, nil
	}
	return Cursor{LT: account.LastTxLT, Hash: account.LastTxHash}, nil
}

// Since returns incoming transfers with LT > after in chronological order,
// together with the new head. ListTransactions pages backwards from the head
// until the cursor is reached.
func (s *Scanner) Since(ctx context.Context, after uint64) ([]IncomingTransfer, Cursor, error) {
	head, err := s.Head(ctx)
	if err != nil {
		return nil, Cursor{}, err
	}
	if head.LT <= after {
		return nil, head, nil
	}

	var txs []*tlb.Transaction
	lt, hash := head.LT, head.Hash
	for {
		page, err := s.api.ListTransactions(ctx, s.addr, uint32(txBatchSize), lt, hash)
		if err != nil {
			return nil, Cursor{}, fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(page) == 0 {
			break
		}

		reached := false
		for _, tx := range page {
			if tx.LT <= after {
				reached = true
				continue
			}
			txs = append(txs, tx)
		}
		if reached || len(page) < txBatchSize {
			break
		}

		oldest := page[0]
		if oldest.PrevTxLT == 0 {
			break
		}
		lt, hash = oldest.PrevTxLT, oldest.PrevTxHash
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].LT < txs[j].LT })

	out := make([]IncomingTransfer, 0, len(txs))
	for _, tx := range txs {
		if in, ok := incoming(tx); ok {
			out = append(out, in)
		}
	}
	return out, head, nil
}

func incoming(tx *tlb.Transaction) (IncomingTransfer, bool) {
	if tx.IO.In == nil {
		return IncomingTransfer{}, false
	}
	inMsg, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
	if !ok || inMsg == nil || inMsg.Bounced {
		return IncomingTransfer{}, false
	}
	amount := inMsg.Amount.Nano()
	if amount.Sign() <= 0 || !amount.IsUint64() {
		return IncomingTransfer{}, false
	}
	return IncomingTransfer{
		Hash:    hex.EncodeToString(tx.Hash),
		LT:      tx.LT,
		Sender:  FormatRaw(inMsg.SrcAddr.Workchain(), inMsg.SrcAddr.Data()),
		Amount:  amount.Uint64(),
		Comment: ExtractComment(inMsg),
		At:      time.Unix(int64(tx.Now), 0),
	}, true
}

// WalletSender sends payouts from the escrow hot wallet.
type WalletSender struct {
	w *wallet.Wallet
}

func NewWalletSender(api ton.APIClientWrapped, seed []string) (*WalletSender, error) {
	w, err := wallet.FromSeed(api, seed, wallet.V4R2)
	if err != nil {
		return nil, fmt.Errorf("open hot wallet: %w", err)
	}
	return &WalletSender{w: w}, nil
}

func (s *WalletSender) Address() string {
	a := s.w.WalletAddress()
	return FormatRaw(a.Workchain(), a.Data())
}

// Send transfers amount nanoTON to the raw address to and waits for the
// transaction. It returns the transaction hash.
func (s *WalletSender) Send(ctx context.Context, to string, amount uint64, comment string) (string, error) {
	dst, err := ToAddress(to)
	if err != nil {
		return "", err
	}
	tx, _, err := s.w.TransferWaitTransaction(ctx, dst, tlb.FromNanoTONU(amount), comment)
	if err != nil {
		return "", fmt.Errorf("transfer to %s: %w", to, err)
	}
	return hex.EncodeToString(tx.Hash), nil
}
