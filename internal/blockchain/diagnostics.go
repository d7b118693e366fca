package blockchain

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// chainStatusReader is the part of ethclient.Client used by diagnostics
type chainStatusReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// DiagnosticResult holds the result of an RPC and contract connectivity check
type DiagnosticResult struct {
	RPCConnected         bool   `json:"rpc_connected"`
	RPCError             string `json:"rpc_error,omitempty"`
	ChainID              string `json:"chain_id,omitempty"`
	LatestBlock          uint64 `json:"latest_block,omitempty"`
	RegistrationAddress  string `json:"registration_address"`
	RegistrationDeployed bool   `json:"registration_deployed"`
	BookingAddress       string `json:"booking_address"`
	BookingDeployed      bool   `json:"booking_deployed"`
	ContractError        string `json:"contract_error,omitempty"`
	Timestamp            string `json:"timestamp"`
}

// Healthy reports whether the RPC answered and both contracts have code
func (r *DiagnosticResult) Healthy() bool {
	return r.RPCConnected && r.RegistrationDeployed && r.BookingDeployed
}

// RunDiagnostics checks RPC connectivity and that both contracts are deployed
func (c *ContractClient) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	result := &DiagnosticResult{
		Timestamp:           time.Now().Format(time.RFC3339),
		RegistrationAddress: c.registration.Hex(),
		BookingAddress:      c.booking.Hex(),
	}

	status, ok := c.caller.(chainStatusReader)
	if !ok {
		result.RPCError = "caller does not expose chain status"
		return result
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	chainID, err := status.ChainID(ctx)
	if err != nil {
		result.RPCError = err.Error()
		log.Printf("[Diagnostics] RPC failed: %v", err)
		return result
	}
	result.ChainID = chainID.String()

	block, err := status.BlockNumber(ctx)
	if err != nil {
		result.RPCError = err.Error()
		log.Printf("[Diagnostics] RPC failed: %v", err)
		return result
	}
	result.RPCConnected = true
	result.LatestBlock = block
	log.Printf("[Diagnostics] RPC connected, chain %s at block %d", result.ChainID, block)

	result.RegistrationDeployed, err = hasCode(ctx, status, c.registration)
	if err != nil {
		result.ContractError = fmt.Sprintf("registration: %v", err)
		return result
	}
	result.BookingDeployed, err = hasCode(ctx, status, c.booking)
	if err != nil {
		result.ContractError = fmt.Sprintf("booking: %v", err)
		return result
	}

	if !result.RegistrationDeployed || !result.BookingDeployed {
		log.Printf("[Diagnostics] Missing contract code (registration=%v booking=%v)", result.RegistrationDeployed, result.BookingDeployed)
	}
	return result
}

func hasCode(ctx context.Context, status chainStatusReader, address common.Address) (bool, error) {
	code, err := status.CodeAt(ctx, address, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}
