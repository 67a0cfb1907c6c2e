// Package chainclient owns the single connection to the chain node: curve
// discovery, log polling across the factory and every known curve, and a
// resilient reconnect loop with a dedicated heartbeat goroutine and a
// buffered non-blocking reconnect-trigger channel the supervisor can
// observe. Outbound RPC calls run through a circuit breaker.
package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/0x-minds/0xpads-listener/internal/breaker"
	"github.com/0x-minds/0xpads-listener/internal/config"
	"github.com/0x-minds/0xpads-listener/internal/decoder"
	"github.com/0x-minds/0xpads-listener/internal/metrics"
	"github.com/0x-minds/0xpads-listener/internal/models"
	"github.com/0x-minds/0xpads-listener/internal/registry"
	"github.com/0x-minds/0xpads-listener/internal/valuemodel"
)

// pollInterval is the bounded polling cadence for aggregating new log
// entries across every installed filter.
const pollInterval = 400 * time.Millisecond

// ConnectionError indicates the Chain Client failed to establish or
// verify its connection to the chain node (handshake failure or
// chain-id mismatch).
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("chainclient: connection: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

var (
	// curveEventSignatures are the log topics the client filters for on every
	// known curve address.
	curveEventSignatures = []string{
		"Trade(address,bool,uint256,uint256,uint256,uint256,uint256,uint256)",
		"TokensPurchased(address,uint256,uint256,uint256,uint256,uint256)",
		"TokensSold(address,uint256,uint256,uint256,uint256,uint256)",
		"MilestoneReached(uint256,uint256,uint256,uint256)",
		"ReadyForDEX(uint256,uint256)",
		"MigrationCompleted(address,uint256,uint256,uint256,uint256)",
	}
	factoryEventSignatures = []string{
		"BondingCurveDeployed(address,address,address,string,string,uint256)",
		"RegularTokenCreatorApproved(address,uint256)",
		"RegularTokenCreatorRevoked(address,uint256)",
	}
)

// deployedCurve mirrors one element of the getDeployedCurves() view
// function's tuple[] return value.
type deployedCurve struct {
	TokenAddress common.Address
	Creator      common.Address
	CurveAddress common.Address
	Name         string
	Symbol       string
	DeployedAt   *big.Int
	IsActive     bool
	IsApproved   bool
}

// Client owns the single WebSocket/HTTP connection to the chain node.
type Client struct {
	cfg      config.BlockchainConfig
	log      *logrus.Entry
	metrics  *metrics.Metrics
	registry *registry.Registry
	breaker  *breaker.Breaker

	factoryABI  abi.ABI
	factoryAddr valuemodel.Address
	hasFactory  bool

	mu               sync.RWMutex
	eth              *ethclient.Client
	connected        bool
	latestBlock      uint64
	heartbeatStarted bool

	reconnectCh chan struct{}
	closeCh     chan struct{}
}

// New builds a Client bound to cfg and reg. Curves registered on reg
// after construction (including ones this client itself discovers) are
// picked up by the next poll tick automatically, since each tick reads
// reg.Snapshot() fresh.
func New(cfg config.BlockchainConfig, reg *registry.Registry, log *logrus.Entry, m *metrics.Metrics) (*Client, error) {
	factoryABI, err := decoder.FactoryABI()
	if err != nil {
		return nil, fmt.Errorf("chainclient: parse factory abi: %w", err)
	}

	var factoryAddr valuemodel.Address
	hasFactory := cfg.FactoryAddress != ""
	if hasFactory {
		factoryAddr, err = valuemodel.ParseAddress(cfg.FactoryAddress)
		if err != nil {
			return nil, fmt.Errorf("chainclient: invalid factory address: %w", err)
		}
	}

	return &Client{
		cfg:         cfg,
		log:         log,
		metrics:     m,
		registry:    reg,
		breaker:     breaker.New("chain-rpc"),
		factoryABI:  factoryABI,
		factoryAddr: factoryAddr,
		hasFactory:  hasFactory,
		reconnectCh: make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}, nil
}

// Connect dials the chain node, verifies the chain id, and caches the
// current tip. Prefers the websocket URL; falls back to the HTTP URL if
// ws dialing fails, since ethclient.DialContext accepts either scheme.
func (c *Client) Connect(ctx context.Context) error {
	url := c.cfg.WSUrl
	eth, err := ethclient.DialContext(ctx, url)
	if err != nil && c.cfg.HTTPUrl != "" {
		url = c.cfg.HTTPUrl
		eth, err = ethclient.DialContext(ctx, url)
	}
	if err != nil {
		return &ConnectionError{Err: err}
	}

	chainID, err := c.call(ctx, func(ctx context.Context) (interface{}, error) {
		return eth.ChainID(ctx)
	})
	if err != nil {
		eth.Close()
		return &ConnectionError{Err: err}
	}
	if got := chainID.(*big.Int).Int64(); got != c.cfg.ChainID {
		eth.Close()
		return &ConnectionError{Err: fmt.Errorf("chain id mismatch: configured %d, node reports %d", c.cfg.ChainID, got)}
	}

	tip, err := eth.BlockNumber(ctx)
	if err != nil {
		eth.Close()
		return &ConnectionError{Err: err}
	}

	c.mu.Lock()
	c.eth = eth
	c.connected = true
	c.latestBlock = tip
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"url": url, "chain_id": c.cfg.ChainID, "tip": tip}).Info("chain client connected")

	c.mu.Lock()
	startHeartbeat := !c.heartbeatStarted
	c.heartbeatStarted = true
	c.mu.Unlock()
	if startHeartbeat {
		go c.heartbeatLoop(ctx)
	}
	return nil
}

// heartbeatLoop pings the node on a fixed interval, independent of the
// poll loop, so a silently-stalled connection (polling keeps returning
// empty results rather than erroring) is still caught.
func (c *Client) heartbeatLoop(ctx context.Context) {
	interval := time.Duration(c.cfg.HeartbeatIntervalS) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.Health(ctx); err != nil {
				c.log.WithError(err).Warn("chain client heartbeat failed")
				c.triggerReconnect()
			}
		}
	}
}

// DiscoverCurves calls the factory's getDeployedCurves() view function
// once and registers every returned curve. Tolerant of an unconfigured
// factory address.
func (c *Client) DiscoverCurves(ctx context.Context) error {
	if !c.hasFactory {
		return nil
	}

	eth := c.ethClient()
	if eth == nil {
		return &ConnectionError{Err: fmt.Errorf("not connected")}
	}

	data, err := c.factoryABI.Pack("getDeployedCurves")
	if err != nil {
		return fmt.Errorf("chainclient: pack getDeployedCurves: %w", err)
	}
	addr := c.factoryAddr.Bytes()

	result, err := c.call(ctx, func(ctx context.Context) (interface{}, error) {
		return eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	})
	if err != nil {
		return fmt.Errorf("chainclient: call getDeployedCurves: %w", err)
	}

	var curves []deployedCurve
	if err := c.factoryABI.UnpackIntoInterface(&curves, "getDeployedCurves", result.([]byte)); err != nil {
		return fmt.Errorf("chainclient: unpack getDeployedCurves: %w", err)
	}

	for _, dc := range curves {
		curveAddr, err := valuemodel.ParseAddress(dc.CurveAddress.Hex())
		if err != nil {
			continue
		}
		tokenAddr, err := valuemodel.ParseAddress(dc.TokenAddress.Hex())
		if err != nil {
			continue
		}
		c.registry.Add(curveAddr, tokenAddr)
	}

	c.log.WithField("count", len(curves)).Info("chain client discovered curves")
	return nil
}

// Subscribe starts the poll loop and returns a channel of decoded-ready
// raw logs, ordered ascending by (block_number, log_index), along with
// any across-poll reconnects the client performs transparently.
func (c *Client) Subscribe(ctx context.Context) (<-chan models.RawLog, error) {
	out := make(chan models.RawLog, 256)
	go c.pollLoop(ctx, out)
	return out, nil
}

func (c *Client) pollLoop(ctx context.Context, out chan<- models.RawLog) {
	defer close(out)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeCh:
			return
		case <-ticker.C:
			if err := c.pollOnce(ctx, out); err != nil {
				c.log.WithError(err).Warn("chain client poll failed")
				c.triggerReconnect()
				if err := c.reconnectWithBackoff(ctx); err != nil {
					c.log.WithError(err).Error("chain client reconnect exhausted")
					return
				}
			}
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, out chan<- models.RawLog) error {
	eth := c.ethClient()
	if eth == nil {
		return fmt.Errorf("not connected")
	}

	from := c.nextFromBlock()
	tip, err := c.latestBlockLocked(ctx, eth)
	if err != nil {
		return err
	}
	if tip < from {
		return nil
	}

	var logs []types.Log

	if c.hasFactory {
		factoryLogs, err := c.filterLogs(ctx, eth, from, tip, []common.Address{c.factoryAddr.Bytes()}, factoryEventSignatures)
		if err != nil {
			return err
		}
		logs = append(logs, factoryLogs...)
	}

	curves := c.registry.Snapshot()
	if len(curves) > 0 {
		addrs := make([]common.Address, len(curves))
		for i, a := range curves {
			addrs[i] = a.Bytes()
		}
		curveLogs, err := c.filterLogs(ctx, eth, from, tip, addrs, curveEventSignatures)
		if err != nil {
			return err
		}
		logs = append(logs, curveLogs...)
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	for _, l := range logs {
		raw := toRawLog(l)
		select {
		case out <- raw:
		case <-ctx.Done():
			return nil
		}
	}

	c.setLatestBlock(tip + 1)
	return nil
}

func (c *Client) filterLogs(ctx context.Context, eth *ethclient.Client, from, to uint64, addrs []common.Address, sigs []string) ([]types.Log, error) {
	topics := make([]common.Hash, len(sigs))
	for i, s := range sigs {
		topics[i] = crypto.Keccak256Hash([]byte(s))
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addrs,
		Topics:    [][]common.Hash{topics},
	}

	result, err := c.call(ctx, func(ctx context.Context) (interface{}, error) {
		return eth.FilterLogs(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]types.Log), nil
}

// LatestBlock returns the cheap cached tip, refreshing it via the node if
// the client is connected.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	eth := c.ethClient()
	if eth == nil {
		return 0, &ConnectionError{Err: fmt.Errorf("not connected")}
	}
	return c.latestBlockLocked(ctx, eth)
}

func (c *Client) latestBlockLocked(ctx context.Context, eth *ethclient.Client) (uint64, error) {
	result, err := c.call(ctx, func(ctx context.Context) (interface{}, error) {
		return eth.BlockNumber(ctx)
	})
	if err != nil {
		return 0, err
	}
	tip := result.(uint64)
	c.mu.Lock()
	c.latestBlock = tip
	c.mu.Unlock()
	return tip, nil
}

// Health reports nil iff a tip query succeeds within a 5s timeout.
func (c *Client) Health(ctx context.Context) error {
	eth := c.ethClient()
	if eth == nil {
		return &ConnectionError{Err: fmt.Errorf("not connected")}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := eth.BlockNumber(ctx)
	return err
}

// GetReconnectChannel lets the supervisor observe reconnect events for
// health sampling.
func (c *Client) GetReconnectChannel() <-chan struct{} {
	return c.reconnectCh
}

// Close tears down the connection and stops the poll loop.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closeCh:
	default:
		close(c.closeCh)
	}
	if c.eth != nil {
		c.eth.Close()
		c.connected = false
	}
	return nil
}

func (c *Client) reconnectWithBackoff(ctx context.Context) error {
	backoff := time.Second
	maxAttempts := c.cfg.MaxReconnectionAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.metrics.ReconnectAttempt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := c.Connect(ctx); err == nil {
			// Never replay pre-tip history after a reconnect: the fresh
			// tip cached by Connect becomes the new floor.
			return nil
		}

		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
	return fmt.Errorf("chainclient: exhausted %d reconnect attempts", maxAttempts)
}

func (c *Client) triggerReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

func (c *Client) ethClient() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eth
}

func (c *Client) nextFromBlock() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestBlock
}

func (c *Client) setLatestBlock(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v > c.latestBlock {
		c.latestBlock = v
	}
}

// call wraps fn in the circuit breaker.
func (c *Client) call(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	return c.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

func toRawLog(l types.Log) models.RawLog {
	topics := make([][32]byte, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = [32]byte(t)
	}
	addr, _ := valuemodel.ParseAddress(l.Address.Hex())
	tx, _ := valuemodel.ParseTxHash(l.TxHash.Hex())

	return models.RawLog{
		Address:     addr,
		Topics:      topics,
		Data:        l.Data,
		BlockNumber: l.BlockNumber,
		BlockHash:   [32]byte(l.BlockHash),
		TxHash:      tx,
		LogIndex:    uint32(l.Index),
		Removed:     l.Removed,
	}
}
