package wallet

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"bridge-aggregator/pkg/chains"
	"bridge-aggregator/pkg/types"
)

// ChainClient is the subset of ethclient.Client the wallet uses
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

// Dialer connects to a chain's RPC endpoint
type Dialer func(ctx context.Context, rpcURL string) (ChainClient, error)

func dialEthclient(ctx context.Context, rpcURL string) (ChainClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Wallet signs and submits transactions for one key across the registry's
// chains. Writes always target the active chain.
type Wallet struct {
	registry   *chains.Registry
	privateKey *ecdsa.PrivateKey
	address    common.Address
	dial       Dialer
	logger     logrus.FieldLogger

	mu      sync.Mutex
	active  uint64
	clients map[uint64]ChainClient
}

type Option func(*Wallet)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(w *Wallet) {
		w.logger = logger
	}
}

func WithDialer(d Dialer) Option {
	return func(w *Wallet) {
		w.dial = d
	}
}

// WithActiveChain sets the chain the wallet starts on
func WithActiveChain(chainID uint64) Option {
	return func(w *Wallet) {
		w.active = chainID
	}
}

// New creates a wallet. An empty key yields a read-only wallet whose Address
// reports ErrWalletNotConnected.
func New(registry *chains.Registry, privateKeyHex string, opts ...Option) (*Wallet, error) {
	w := &Wallet{
		registry: registry,
		dial:     dialEthclient,
		logger:   logrus.StandardLogger(),
		clients:  make(map[uint64]ChainClient),
	}
	if all := registry.All(); len(all) > 0 {
		w.active = all[0].ID
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "invalid private key")
		}
		w.privateKey = key
		w.address = crypto.PubkeyToAddress(key.PublicKey)
	}

	for _, opt := range opts {
		opt(w)
	}

	if _, ok := registry.IDToRPCURL(w.active); !ok {
		return nil, errors.Wrapf(types.ErrUnsupportedChain, "chain id %d", w.active)
	}
	return w, nil
}

func (w *Wallet) Address() (common.Address, error) {
	if w.privateKey == nil {
		return common.Address{}, types.ErrWalletNotConnected
	}
	return w.address, nil
}

func (w *Wallet) ChainID() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// SwitchChain makes chainID the active chain after confirming the endpoint
// actually serves it
func (w *Wallet) SwitchChain(ctx context.Context, chainID uint64) error {
	client, err := w.client(ctx, chainID)
	if err != nil {
		return err
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get chain id")
	}
	if !remote.IsUint64() || remote.Uint64() != chainID {
		return errors.Errorf("RPC endpoint for chain %d reports chain %s", chainID, remote)
	}

	w.mu.Lock()
	w.active = chainID
	w.mu.Unlock()

	w.logger.WithField("chain_id", chainID).Debug("Switched active chain")
	return nil
}

func (w *Wallet) client(ctx context.Context, chainID uint64) (ChainClient, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if c, ok := w.clients[chainID]; ok {
		return c, nil
	}
	rpcURL, ok := w.registry.IDToRPCURL(chainID)
	if !ok {
		return nil, errors.Wrapf(types.ErrUnsupportedChain, "chain id %d", chainID)
	}
	c, err := w.dial(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to RPC endpoint for chain %d", chainID)
	}
	w.clients[chainID] = c
	return c, nil
}

func (w *Wallet) activeClient(ctx context.Context) (ChainClient, uint64, error) {
	chainID := w.ChainID()
	c, err := w.client(ctx, chainID)
	return c, chainID, err
}

// Allowance reads token.allowance(owner, spender) on the active chain
func (w *Wallet) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	client, _, err := w.activeClient(ctx)
	if err != nil {
		return nil, err
	}
	return callUint256(ctx, client, token, "allowance", owner, spender)
}

// Approve submits token.approve(spender, amount) on the active chain
func (w *Wallet) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to pack approve data")
	}
	client, chainID, err := w.activeClient(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return w.send(ctx, client, chainID, token, data, new(big.Int))
}

// SendTransaction signs and broadcasts tx. The wallet must already be on
// tx.ChainID.
func (w *Wallet) SendTransaction(ctx context.Context, tx *types.BridgeTransaction) (common.Hash, error) {
	client, chainID, err := w.activeClient(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	if tx.ChainID != chainID {
		return common.Hash{}, &types.ChainMismatchError{Current: chainID, Required: tx.ChainID}
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	return w.send(ctx, client, chainID, tx.To, tx.Data, value)
}

func (w *Wallet) send(ctx context.Context, client ChainClient, chainID uint64, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	from, err := w.Address()
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to get nonce")
	}

	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to estimate gas")
	}
	gas = gas * 120 / 100 // Add 20% buffer

	id := new(big.Int).SetUint64(chainID)
	txData, err := feeFields(ctx, client, id, nonce, to, value, gas, data)
	if err != nil {
		return common.Hash{}, err
	}

	signer := ethtypes.LatestSignerForChainID(id)
	signed, err := ethtypes.SignNewTx(w.privateKey, signer, txData)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to sign transaction")
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to send transaction")
	}

	w.logger.WithFields(logrus.Fields{
		"chain_id": chainID,
		"to":       to.Hex(),
		"tx_hash":  signed.Hash().Hex(),
		"gas":      gas,
	}).Debug("Transaction broadcast")

	return signed.Hash(), nil
}

// feeFields builds an EIP-1559 transaction when the chain reports a base fee
// and a legacy one otherwise
func feeFields(ctx context.Context, client ChainClient, chainID *big.Int, nonce uint64, to common.Address, value *big.Int, gas uint64, data []byte) (ethtypes.TxData, error) {
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest header")
	}

	if head.BaseFee != nil {
		tip, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get gas tip cap")
		}
		feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		return &ethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		}, nil
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}
	return &ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	}, nil
}

// NativeBalance returns owner's balance of the chain's native asset
func (w *Wallet) NativeBalance(ctx context.Context, chainID uint64, owner common.Address) (*big.Int, error) {
	client, err := w.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	balance, err := client.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get balance")
	}
	return balance, nil
}

// TokenBalance returns owner's ERC-20 balance of token
func (w *Wallet) TokenBalance(ctx context.Context, chainID uint64, token, owner common.Address) (*big.Int, error) {
	client, err := w.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return callUint256(ctx, client, token, "balanceOf", owner)
}

// Receipt returns the receipt of a mined transaction, or ethereum.NotFound
// while it is pending
func (w *Wallet) Receipt(ctx context.Context, chainID uint64, hash common.Hash) (*ethtypes.Receipt, error) {
	client, err := w.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.TransactionReceipt(ctx, hash)
}

// Close closes every dialed client
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, c := range w.clients {
		c.Close()
		delete(w.clients, id)
	}
}

func callUint256(ctx context.Context, client ChainClient, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s data", method)
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", method)
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected %s result type %T", method, values[0])
	}
	return v, nil
}
