package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"matrix-sync/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

// ErrUserNotRegistered is returned when the registration contract has no record for a wallet
var ErrUserNotRegistered = errors.New("user not registered on chain")

// UserRecord is the registration record of a wallet
type UserRecord struct {
	UserID          uint
	ReferrerID      uint
	ReferrerAddress string
	FullName        string
	WalletAddress   string
}

// IncomeTotals are lifetime income figures reported by the booking contract, in token units
type IncomeTotals struct {
	Total         decimal.Decimal
	LevelIncome   decimal.Decimal
	DirectIncome  decimal.Decimal
	SlotIncome    decimal.Decimal
	RecycleIncome decimal.Decimal
	SalaryIncome  decimal.Decimal
}

// Snapshot converts the totals into the persisted income snapshot
func (t *IncomeTotals) Snapshot() models.IncomeSnapshot {
	return models.IncomeSnapshot{
		Total:         t.Total,
		LevelIncome:   t.LevelIncome,
		DirectIncome:  t.DirectIncome,
		SlotIncome:    t.SlotIncome,
		RecycleIncome: t.RecycleIncome,
		SalaryIncome:  t.SalaryIncome,
	}
}

// ContractClient reads user, income and slot views from the registration and booking contracts
type ContractClient struct {
	caller       ethereum.ContractCaller
	registration common.Address
	booking      common.Address
	registryABI  abi.ABI
	bookingABI   abi.ABI
	decimals     int32
	timeout      time.Duration
}

// Dial connects to an EVM JSON-RPC endpoint and returns a client bound to both contracts
func Dial(ctx context.Context, rpcURL, registrationAddress, bookingAddress string, decimals int32, timeout time.Duration) (*ContractClient, *ethclient.Client, error) {
	conn, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	client, err := NewContractClient(conn, registrationAddress, bookingAddress, decimals, timeout)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	log.Printf("[Chain] Connected to %s (registration %s, booking %s)", rpcURL, client.registration.Hex(), client.booking.Hex())
	return client, conn, nil
}

// NewContractClient builds a client over any contract caller
func NewContractClient(caller ethereum.ContractCaller, registrationAddress, bookingAddress string, decimals int32, timeout time.Duration) (*ContractClient, error) {
	if !common.IsHexAddress(registrationAddress) {
		return nil, fmt.Errorf("invalid registration contract address %q", registrationAddress)
	}
	if !common.IsHexAddress(bookingAddress) {
		return nil, fmt.Errorf("invalid booking contract address %q", bookingAddress)
	}

	registryABI, err := abi.JSON(strings.NewReader(registrationABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registration abi: %w", err)
	}
	bookABI, err := abi.JSON(strings.NewReader(bookingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking abi: %w", err)
	}

	return &ContractClient{
		caller:       caller,
		registration: common.HexToAddress(registrationAddress),
		booking:      common.HexToAddress(bookingAddress),
		registryABI:  registryABI,
		bookingABI:   bookABI,
		decimals:     decimals,
		timeout:      timeout,
	}, nil
}

// GetUserInfo returns the registration record of a wallet
func (c *ContractClient) GetUserInfo(ctx context.Context, wallet string) (*UserRecord, error) {
	addr, ok := parseAddress(wallet)
	if !ok {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}

	out, err := c.call(ctx, c.registration, c.registryABI, methodGetUserInfo, addr)
	if err != nil {
		return nil, err
	}
	if len(out) < 7 {
		return nil, fmt.Errorf("%s: unexpected output length %d", methodGetUserInfo, len(out))
	}

	id, err := toUint(out[0])
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, ErrUserNotRegistered
	}
	referrerID, err := toUint(out[1])
	if err != nil {
		return nil, err
	}

	record := &UserRecord{
		UserID:        id,
		ReferrerID:    referrerID,
		WalletAddress: addr.Hex(),
	}
	if referrer, ok := out[2].(common.Address); ok && referrer != (common.Address{}) {
		record.ReferrerAddress = referrer.Hex()
	}
	if name, ok := out[6].(string); ok {
		record.FullName = name
	}

	return record, nil
}

// GetUserAddress returns the wallet registered under a numeric user id
func (c *ContractClient) GetUserAddress(ctx context.Context, userID uint) (string, error) {
	out, err := c.call(ctx, c.registration, c.registryABI, methodGetUserByUserID, new(big.Int).SetUint64(uint64(userID)))
	if err != nil {
		return "", err
	}
	if len(out) != 1 {
		return "", fmt.Errorf("%s: unexpected output length %d", methodGetUserByUserID, len(out))
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("%s: unexpected output type %T", methodGetUserByUserID, out[0])
	}
	if addr == (common.Address{}) {
		return "", ErrUserNotRegistered
	}

	return addr.Hex(), nil
}

// GetUserIncome returns the lifetime income totals of a wallet
func (c *ContractClient) GetUserIncome(ctx context.Context, wallet string) (*IncomeTotals, error) {
	addr, ok := parseAddress(wallet)
	if !ok {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}

	out, err := c.call(ctx, c.booking, c.bookingABI, methodGetUserIncome, addr)
	if err != nil {
		return nil, err
	}
	if len(out) != 6 {
		return nil, fmt.Errorf("%s: unexpected output length %d", methodGetUserIncome, len(out))
	}

	values := make([]decimal.Decimal, len(out))
	for i, v := range out {
		n, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected output type %T", methodGetUserIncome, v)
		}
		values[i] = ToTokenUnits(n, c.decimals)
	}

	return &IncomeTotals{
		Total:         values[0],
		LevelIncome:   values[1],
		DirectIncome:  values[2],
		SlotIncome:    values[3],
		RecycleIncome: values[4],
		SalaryIncome:  values[5],
	}, nil
}

// GetActiveSlots returns the slot numbers currently active for a wallet
func (c *ContractClient) GetActiveSlots(ctx context.Context, wallet string) ([]int, error) {
	addr, ok := parseAddress(wallet)
	if !ok {
		return nil, fmt.Errorf("invalid wallet address %q", wallet)
	}

	out, err := c.call(ctx, c.booking, c.bookingABI, methodGetActiveSlots, addr)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected output length %d", methodGetActiveSlots, len(out))
	}

	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", methodGetActiveSlots, out[0])
	}

	slots := make([]int, 0, len(raw))
	for _, s := range raw {
		slots = append(slots, int(s.Int64()))
	}
	return slots, nil
}

func (c *ContractClient) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return out, nil
}

// ToTokenUnits scales a raw on-chain amount down by the token decimals
func ToTokenUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// NormalizeAddress returns the EIP-55 checksummed form of a hex address
func NormalizeAddress(address string) (string, bool) {
	addr, ok := parseAddress(address)
	if !ok {
		return "", false
	}
	return addr.Hex(), true
}

func parseAddress(address string) (common.Address, bool) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return common.Address{}, false
	}
	return common.HexToAddress(address), true
}

func toUint(v interface{}) (uint, error) {
	n, ok := v.(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("value %s out of range", n.String())
	}
	return uint(n.Uint64()), nil
}
