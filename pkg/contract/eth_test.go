package contract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/kraitsura/refnet/pkg/model"
)

const (
	testContract = "0x166dd205590240c90ca4e0e545ad69db47d8f22f"
	testUser     = "0x00000000000000000000000000000000000000aa"
)

// fakeCaller answers eth_call requests by decoding the ABI input and packing
// canned outputs.
type fakeCaller struct {
	t       *testing.T
	abi     abi.ABI
	users   map[common.Address][]any
	directs map[uint64][]any
	err     error
	raw     []byte
	calls   []string
	delay   time.Duration
}

func newFakeCaller(t *testing.T) *fakeCaller {
	parsed, err := ParseABI()
	if err != nil {
		t.Fatalf("ParseABI: %v", err)
	}
	return &fakeCaller{
		t:       t,
		abi:     parsed,
		users:   make(map[common.Address][]any),
		directs: make(map[uint64][]any),
	}
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || *msg.To != common.HexToAddress(testContract) {
		f.t.Errorf("call to %v, want %s", msg.To, testContract)
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.raw != nil {
		return f.raw, nil
	}

	method, err := f.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, method.Name)
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	var out []any
	switch method.Name {
	case methodUserInfo:
		out = f.users[args[0].(common.Address)]
		if out == nil {
			out = userOutputs(0, 0, false)
		}
	case methodDirects:
		out = f.directs[args[0].(*big.Int).Uint64()]
		if out == nil {
			out = []any{big.NewInt(0), big.NewInt(0)}
		}
	}
	return method.Outputs.Pack(out...)
}

func userOutputs(id, upline int64, miner bool) []any {
	wei, _ := new(big.Int).SetString("12345000000000000000", 10)
	return []any{
		big.NewInt(id), big.NewInt(upline),
		big.NewInt(3), big.NewInt(4), // left/right count
		big.NewInt(1), big.NewInt(0), // saved
		big.NewInt(7), big.NewInt(2), // balances
		wei, big.NewInt(100000000000000000),
		miner,
	}
}

func newTestEthClient(t *testing.T, f *fakeCaller) *EthClient {
	c, err := NewEthClient(f, testContract, EthClientOptions{CallTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewEthClient: %v", err)
	}
	return c
}

func TestEthClient_GetUserInfo(t *testing.T) {
	f := newFakeCaller(t)
	f.users[common.HexToAddress(testUser)] = userOutputs(42, 7, true)
	c := newTestEthClient(t, f)

	rec, err := c.GetUserInfo(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetUserInfo error: %v", err)
	}
	if rec.ID != 42 || rec.UplineID != 7 {
		t.Errorf("ids = %d/%d, want 42/7", rec.ID, rec.UplineID)
	}
	if rec.LeftCount != 3 || rec.RightCount != 4 || rec.SaveLeft != 1 || rec.BalanceCount != 7 || rec.SpecialBalanceCount != 2 {
		t.Errorf("counts = %+v", rec)
	}
	if got := model.FormatEther(rec.TotalMinerRewards, 2); got != "12.35" {
		t.Errorf("rewards = %s, want 12.35", got)
	}
	if !rec.IsMiner {
		t.Error("IsMiner = false, want true")
	}
	if rec.Address != common.HexToAddress(testUser).Hex() {
		t.Errorf("Address = %s", rec.Address)
	}
}

func TestEthClient_UnregisteredUser(t *testing.T) {
	c := newTestEthClient(t, newFakeCaller(t))

	rec, err := c.GetUserInfo(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetUserInfo error: %v", err)
	}
	if rec.IsRegistered() {
		t.Errorf("record %+v should be unregistered", rec)
	}
	if !errors.Is(Registered(rec), ErrNotRegistered) {
		t.Error("Registered() should report ErrNotRegistered")
	}
}

func TestEthClient_GetDirects(t *testing.T) {
	f := newFakeCaller(t)
	f.directs[42] = []any{big.NewInt(84), big.NewInt(0)}
	c := newTestEthClient(t, f)

	links, err := c.GetDirects(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetDirects error: %v", err)
	}
	if links.LeftID != 84 || links.HasRight() {
		t.Errorf("links = %+v, want {84 0}", links)
	}
	if len(f.calls) != 1 || f.calls[0] != methodDirects {
		t.Errorf("calls = %v", f.calls)
	}
}

func TestEthClient_IDOverflow(t *testing.T) {
	f := newFakeCaller(t)
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	f.directs[1] = []any{huge, big.NewInt(2)}
	c := newTestEthClient(t, f)

	if _, err := c.GetDirects(context.Background(), 1); !errors.Is(err, ErrIDOverflow) {
		t.Errorf("error = %v, want ErrIDOverflow", err)
	}
}

func TestEthClient_Errors(t *testing.T) {
	cases := []struct {
		name string
		prep func(f *fakeCaller)
		want error
		kind ErrorKind
	}{
		{"reverted", func(f *fakeCaller) { f.err = errors.New("execution reverted: not found") }, ErrReverted, KindReverted},
		{"empty", func(f *fakeCaller) { f.raw = []byte{} }, ErrNoContract, KindUnknown},
		{"timeout", func(f *fakeCaller) { f.delay = time.Minute }, context.DeadlineExceeded, KindNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeCaller(t)
			tc.prep(f)
			c, err := NewEthClient(f, testContract, EthClientOptions{CallTimeout: 20 * time.Millisecond})
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.GetDirects(context.Background(), 1)
			if !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
			if got := Classify(err); got != tc.kind {
				t.Errorf("Classify = %q, want %q", got, tc.kind)
			}
		})
	}
}

func TestEthClient_InvalidAddress(t *testing.T) {
	if _, err := NewEthClient(newFakeCaller(t), "not-an-address", EthClientOptions{}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("NewEthClient error = %v, want ErrInvalidAddress", err)
	}
	c := newTestEthClient(t, newFakeCaller(t))
	if _, err := c.GetUserInfo(context.Background(), "0x123"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("GetUserInfo error = %v, want ErrInvalidAddress", err)
	}
}

func TestABIPacksDirectsCall(t *testing.T) {
	parsed, err := ParseABI()
	if err != nil {
		t.Fatal(err)
	}
	input, err := parsed.Pack(methodDirects, big.NewInt(5))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(input[:4], parsed.Methods[methodDirects].ID) {
		t.Errorf("selector = %x, want %x", input[:4], parsed.Methods[methodDirects].ID)
	}
	if len(input) != 4+32 {
		t.Errorf("input length = %d, want 36", len(input))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("load: %w", ErrNotRegistered), KindNotRegistered},
		{errors.New("VM Exception: execution reverted"), KindReverted},
		{errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), KindNetwork},
		{fmt.Errorf("call: %w", context.DeadlineExceeded), KindNetwork},
		{errors.New("something odd"), KindUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
	if KindNetwork.Message() == "" || KindNone.Message() != "" {
		t.Error("Message() should describe every failure kind and nothing else")
	}
}
