package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/gas_vault/internal/app/metrics"
	"github.com/R3E-Network/gas_vault/internal/vault"
	"github.com/R3E-Network/gas_vault/pkg/logger"
)

// TransferChannel adapts the RPC client to the vault's outbound transfer
// interface. Send blocks until the node accepts the payout transaction, so a
// nil return means the transfer has left the node wallet.
type TransferChannel struct {
	client  *Client
	timeout time.Duration
	log     *logger.Logger
}

var _ vault.TransferChannel = (*TransferChannel)(nil)

// NewTransferChannel wraps client as a vault transfer channel. A non-positive
// timeout defaults to 30 seconds per transfer.
func NewTransferChannel(client *Client, timeout time.Duration, log *logger.Logger) *TransferChannel {
	if log == nil {
		log = logger.NewDefault("chain")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TransferChannel{
		client:  client,
		timeout: timeout,
		log:     log,
	}
}

// Send pays amount to recipient from the node wallet.
func (t *TransferChannel) Send(recipient string, amount int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	start := time.Now()
	txHash, err := t.client.SendGas(ctx, recipient, amount)
	metrics.RecordChainTransfer(time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("send %d to %s: %w", amount, recipient, err)
	}

	t.log.WithField("tx", txHash).
		WithField("recipient", recipient).
		WithField("amount", amount).
		Info("gas transfer submitted")
	return nil
}

// SimulatedChannel settles payouts by logging them. It stands in for the real
// transfer channel when no node is configured, in development and in tests.
type SimulatedChannel struct {
	log *logger.Logger
}

var _ vault.TransferChannel = (*SimulatedChannel)(nil)

// NewSimulatedChannel creates a channel that accepts every payout.
func NewSimulatedChannel(log *logger.Logger) *SimulatedChannel {
	if log == nil {
		log = logger.NewDefault("chain")
	}
	return &SimulatedChannel{log: log}
}

// Send records the payout and reports success.
func (s *SimulatedChannel) Send(recipient string, amount int64) error {
	s.log.WithField("recipient", recipient).
		WithField("amount", amount).
		Info("simulated payout")
	return nil
}
