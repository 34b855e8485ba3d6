package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/kraitsura/refnet/pkg/model"
)

// DefaultCallTimeout bounds a single contract call.
const DefaultCallTimeout = 10 * time.Second

const (
	methodUserInfo = "getUserInfo"
	methodDirects  = "getUserDirects"
)

// ReferralABI covers the two view functions the viewer calls.
const ReferralABI = `[
  {
    "inputs": [{"internalType": "address", "name": "user", "type": "address"}],
    "name": "getUserInfo",
    "outputs": [
      {"internalType": "uint256", "name": "id", "type": "uint256"},
      {"internalType": "uint256", "name": "uplineId", "type": "uint256"},
      {"internalType": "uint256", "name": "leftCount", "type": "uint256"},
      {"internalType": "uint256", "name": "rightCount", "type": "uint256"},
      {"internalType": "uint256", "name": "saveLeft", "type": "uint256"},
      {"internalType": "uint256", "name": "saveRight", "type": "uint256"},
      {"internalType": "uint256", "name": "balanceCount", "type": "uint256"},
      {"internalType": "uint256", "name": "specialBalanceCount", "type": "uint256"},
      {"internalType": "uint256", "name": "totalMinerRewards", "type": "uint256"},
      {"internalType": "uint256", "name": "entryPrice", "type": "uint256"},
      {"internalType": "bool", "name": "isMiner", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "uint256", "name": "userId", "type": "uint256"}],
    "name": "getUserDirects",
    "outputs": [
      {"internalType": "uint256", "name": "leftId", "type": "uint256"},
      {"internalType": "uint256", "name": "rightId", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

// ParseABI parses ReferralABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(ReferralABI))
}

// EthClientOptions configures an EthClient.
type EthClientOptions struct {
	// CallTimeout bounds each call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
	Logger      logrus.FieldLogger
}

// EthClient reads the referral contract through any eth_call capable backend.
type EthClient struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
	timeout time.Duration
	log     logrus.FieldLogger
	closer  func()
}

// NewEthClient wraps caller for the contract at address.
func NewEthClient(caller ethereum.ContractCaller, address string, opts EthClientOptions) (*EthClient, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("contract %q: %w", address, ErrInvalidAddress)
	}
	parsed, err := ParseABI()
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &EthClient{
		caller:  caller,
		address: common.HexToAddress(address),
		abi:     parsed,
		timeout: opts.CallTimeout,
		log:     opts.Logger,
	}, nil
}

// Dial connects to an RPC endpoint and returns a client for the contract.
// Close releases the connection.
func Dial(ctx context.Context, rpcURL, address string, opts EthClientOptions) (*EthClient, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c, err := NewEthClient(rpc, address, opts)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	c.closer = rpc.Close
	return c, nil
}

// Close releases the RPC connection if the client owns one.
func (c *EthClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Address returns the contract address.
func (c *EthClient) Address() common.Address {
	return c.address
}

// GetUserInfo returns the record for address. An unregistered address yields
// a record with ID 0 and no error.
func (c *EthClient) GetUserInfo(ctx context.Context, address string) (model.UserRecord, error) {
	if !common.IsHexAddress(address) {
		return model.UserRecord{}, fmt.Errorf("user %q: %w", address, ErrInvalidAddress)
	}
	out, err := c.call(ctx, methodUserInfo, common.HexToAddress(address))
	observe(methodUserInfo, err)
	if err != nil {
		return model.UserRecord{}, err
	}

	ints := make([]*big.Int, 10)
	for i := range ints {
		v, ok := out[i].(*big.Int)
		if !ok {
			return model.UserRecord{}, fmt.Errorf("%s: output %d has type %T", methodUserInfo, i, out[i])
		}
		ints[i] = v
	}
	isMiner, ok := out[10].(bool)
	if !ok {
		return model.UserRecord{}, fmt.Errorf("%s: output 10 has type %T", methodUserInfo, out[10])
	}

	rec := model.UserRecord{
		Address:           common.HexToAddress(address).Hex(),
		TotalMinerRewards: ints[8],
		EntryPrice:        ints[9],
		IsMiner:           isMiner,
	}
	ids := []*model.NodeID{&rec.ID, &rec.UplineID}
	for i, dst := range ids {
		if *dst, err = toNodeID(ints[i]); err != nil {
			return model.UserRecord{}, fmt.Errorf("%s: %w", methodUserInfo, err)
		}
	}
	counts := []*uint64{&rec.LeftCount, &rec.RightCount, &rec.SaveLeft, &rec.SaveRight, &rec.BalanceCount, &rec.SpecialBalanceCount}
	for i, dst := range counts {
		v := ints[i+2]
		if !v.IsUint64() {
			return model.UserRecord{}, fmt.Errorf("%s: output %d = %s does not fit uint64", methodUserInfo, i+2, v)
		}
		*dst = v.Uint64()
	}
	return rec, nil
}

// GetDirects returns the left and right child ids of id. Empty slots are 0.
func (c *EthClient) GetDirects(ctx context.Context, id model.NodeID) (model.DirectLinks, error) {
	out, err := c.call(ctx, methodDirects, new(big.Int).SetUint64(uint64(id)))
	observe(methodDirects, err)
	if err != nil {
		return model.DirectLinks{}, err
	}

	var links model.DirectLinks
	for i, dst := range []*model.NodeID{&links.LeftID, &links.RightID} {
		v, ok := out[i].(*big.Int)
		if !ok {
			return model.DirectLinks{}, fmt.Errorf("%s(%d): output %d has type %T", methodDirects, id, i, out[i])
		}
		if *dst, err = toNodeID(v); err != nil {
			return model.DirectLinks{}, fmt.Errorf("%s(%d): %w", methodDirects, id, err)
		}
	}
	return links, nil
}

func (c *EthClient) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	data, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
	c.log.WithFields(logrus.Fields{
		"method":   method,
		"duration": time.Since(start),
	}).Trace("contract call")
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return nil, fmt.Errorf("%s: %w: %v", method, ErrReverted, err)
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s at %s: %w", method, c.address.Hex(), ErrNoContract)
	}

	out, err := c.abi.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

func toNodeID(v *big.Int) (model.NodeID, error) {
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%s: %w", v, ErrIDOverflow)
	}
	return model.NodeID(v.Uint64()), nil
}
