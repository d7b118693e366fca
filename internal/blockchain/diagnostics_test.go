package blockchain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type fakeStatus struct {
	*fakeCaller
	chainErr error
	code     map[common.Address][]byte
}

func (f *fakeStatus) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return big.NewInt(56), nil
}

func (f *fakeStatus) BlockNumber(ctx context.Context) (uint64, error) {
	return 1234, nil
}

func (f *fakeStatus) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code[account], nil
}

func TestRunDiagnostics(t *testing.T) {
	status := &fakeStatus{
		fakeCaller: newFakeCaller(t, nil),
		code: map[common.Address][]byte{
			common.HexToAddress(testRegistration): {0x60, 0x80},
		},
	}
	client := newTestClient(t, status)

	result := client.RunDiagnostics(context.Background())
	if !result.RPCConnected || result.ChainID != "56" || result.LatestBlock != 1234 {
		t.Errorf("unexpected rpc status: %+v", result)
	}
	if !result.RegistrationDeployed || result.BookingDeployed {
		t.Errorf("unexpected contract status: %+v", result)
	}
	if result.Healthy() {
		t.Error("missing booking code must not be healthy")
	}

	status.code[common.HexToAddress(testBooking)] = []byte{0x60}
	if !client.RunDiagnostics(context.Background()).Healthy() {
		t.Error("expected healthy once both contracts have code")
	}

	status.chainErr = errors.New("connection refused")
	result = client.RunDiagnostics(context.Background())
	if result.RPCConnected || result.RPCError == "" {
		t.Errorf("expected rpc failure, got %+v", result)
	}
}

func TestRunDiagnosticsWithoutStatus(t *testing.T) {
	client := newTestClient(t, newFakeCaller(t, nil))
	if result := client.RunDiagnostics(context.Background()); result.RPCConnected || result.Healthy() {
		t.Errorf("plain caller cannot report status: %+v", result)
	}
}
