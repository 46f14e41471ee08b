package oraclemaster

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stakebridge/relay-oracle/x/report"
)

const (
	testABIPath  = "../../assets/oracle.json"
	testContract = "0x000000000000000000000000000000000000dEaD"
)

func newTestBinding(t *testing.T) *Binding {
	t.Helper()
	b, err := NewBinding(testContract, testABIPath)
	require.NoError(t, err)
	return b
}

func TestNewBindingValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := NewBinding("", testABIPath)
	require.Error(t, err)

	_, err = NewBinding("not-an-address", testABIPath)
	require.Error(t, err)

	_, err = NewBinding(testContract, "does/not/exist.json")
	require.Error(t, err)
}

func TestBuildReportCalldata(t *testing.T) {
	t.Parallel()

	b := newTestBinding(t)

	tuple := &report.Tuple{
		StashAccount:      [32]byte{0x11},
		ControllerAccount: [32]byte{0x22},
		StakeStatus:       report.StatusNominator,
		ActiveBalance:     big.NewInt(700),
		TotalBalance:      big.NewInt(900),
		Unlocking: []report.UnlockChunk{
			{Balance: big.NewInt(200), Era: 45},
		},
		ClaimedRewards: []uint32{40, 41},
		StashBalance:   big.NewInt(1_000),
		SlashingSpans:  3,
	}

	data, err := b.BuildReportCalldata(42, tuple)
	require.NoError(t, err)

	bAbi := b.ABI()
	method, err := bAbi.MethodById(data[:4])
	require.NoError(t, err)
	require.Equal(t, "reportRelay", method.Name)

	// The packed args decode into two values; the era id round-trips.
	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.Equal(t, uint64(42), values[0])
}

func TestBuildReportCalldataNilTuple(t *testing.T) {
	t.Parallel()

	b := newTestBinding(t)
	_, err := b.BuildReportCalldata(42, nil)
	require.Error(t, err)
}

func TestBuildReportCalldataZeroedTuple(t *testing.T) {
	t.Parallel()

	b := newTestBinding(t)
	tuple := report.Zeroed([32]byte{0x33})

	data, err := b.BuildReportCalldata(7, tuple)
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

// abiBackend answers contract calls by dispatching on the method selector
// and packing canned outputs with the same ABI.
type abiBackend struct {
	t       *testing.T
	binding *Binding

	currentEra uint64
	eraID      uint64
	anchor     Anchor
	stashes    [][32]byte
	lastEra    uint64
	reported   bool

	calls []string
}

func (b *abiBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	bindingAbi := b.binding.ABI()
	method, err := bindingAbi.MethodById(msg.Data[:4])
	require.NoError(b.t, err)
	b.calls = append(b.calls, method.Name)

	switch method.Name {
	case "getCurrentEraId":
		return method.Outputs.Pack(b.currentEra)
	case "eraId":
		return method.Outputs.Pack(b.eraID)
	case "ANCHOR_ERA_ID":
		return method.Outputs.Pack(b.anchor.EraID)
	case "ANCHOR_TIMESTAMP":
		return method.Outputs.Pack(b.anchor.Timestamp)
	case "SECONDS_PER_ERA":
		return method.Outputs.Pack(b.anchor.SecondsPerEra)
	case "getStashAccounts":
		return method.Outputs.Pack(b.stashes)
	case "isReportedLastEra":
		return method.Outputs.Pack(b.lastEra, b.reported)
	default:
		b.t.Fatalf("unexpected method %s", method.Name)
		return nil, nil
	}
}

func TestCallerReads(t *testing.T) {
	t.Parallel()

	binding := newTestBinding(t)
	backend := &abiBackend{
		t:          t,
		binding:    binding,
		currentEra: 42,
		eraID:      41,
		anchor:     Anchor{EraID: 10, Timestamp: 1_600_000_000, SecondsPerEra: 180},
		stashes:    [][32]byte{{0x11}, {0x22}},
		lastEra:    41,
		reported:   true,
	}
	caller := NewCaller(binding, backend, zerolog.Nop())
	ctx := context.Background()

	era, err := caller.CurrentEraID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(42), era)

	eraID, err := caller.EraID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(41), eraID)

	anchor, err := caller.FetchAnchor(ctx)
	require.NoError(t, err)
	require.Equal(t, backend.anchor, anchor)

	stashes, err := caller.StashAccounts(ctx)
	require.NoError(t, err)
	require.Equal(t, backend.stashes, stashes)

	lastEra, reported, err := caller.IsReportedLastEra(ctx, common.HexToAddress(testContract), [32]byte{0x11})
	require.NoError(t, err)
	require.Equal(t, uint64(41), lastEra)
	require.True(t, reported)
}

func TestFetchAnchorRejectsZeroEraLength(t *testing.T) {
	t.Parallel()

	binding := newTestBinding(t)
	backend := &abiBackend{t: t, binding: binding}
	caller := NewCaller(binding, backend, zerolog.Nop())

	_, err := caller.FetchAnchor(context.Background())
	require.Error(t, err)
}
