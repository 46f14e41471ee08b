package submitter

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stakebridge/relay-oracle/x/oraclemaster"
	"github.com/stakebridge/relay-oracle/x/report"
)

const (
	testABIPath  = "../../assets/oracle.json"
	testContract = "0x000000000000000000000000000000000000dEaD"
)

type mockEthClient struct {
	t       *testing.T
	binding *oraclemaster.Binding

	nonce         uint64
	baseFee       *big.Int
	receiptStatus uint64
	lastEra       uint64
	reported      bool
	balance       *big.Int

	sent []*types.Transaction
}

func (m *mockEthClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (m *mockEthClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return m.nonce, nil
}

func (m *mockEthClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (m *mockEthClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{
		Number:  big.NewInt(100),
		BaseFee: m.baseFee,
		Time:    uint64(time.Now().Unix()),
	}, nil
}

func (m *mockEthClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	bindingAbi := m.binding.ABI()
	method, err := bindingAbi.MethodById(msg.Data[:4])
	require.NoError(m.t, err)
	require.Equal(m.t, "isReportedLastEra", method.Name)
	return method.Outputs.Pack(m.lastEra, m.reported)
}

func (m *mockEthClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.sent = append(m.sent, tx)
	return nil
}

func (m *mockEthClient) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	return &types.Receipt{
		TxHash:  txHash,
		Status:  m.receiptStatus,
		GasUsed: 90_000,
	}, nil
}

func (m *mockEthClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	if m.balance == nil {
		return big.NewInt(0), nil
	}
	return m.balance, nil
}

func newTestSubmitter(t *testing.T, client *mockEthClient, cfg Config) *Submitter {
	t.Helper()

	binding, err := oraclemaster.NewBinding(testContract, testABIPath)
	require.NoError(t, err)
	client.binding = binding

	caller := oraclemaster.NewCaller(binding, client, zerolog.Nop())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return New(cfg, client, caller, key, zerolog.Nop())
}

func testTuple() *report.Tuple {
	t := report.Zeroed([32]byte{0x11})
	t.StashBalance = big.NewInt(500)
	return t
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ReceiptPollInterval = time.Millisecond
	cfg.ReceiptTimeout = time.Second
	return cfg
}

func TestSubmitSignsAndSends(t *testing.T) {
	t.Parallel()

	client := &mockEthClient{
		t:             t,
		nonce:         7,
		baseFee:       big.NewInt(10_000_000_000),
		receiptStatus: types.ReceiptStatusSuccessful,
	}
	s := newTestSubmitter(t, client, fastConfig())

	res, err := s.Submit(context.Background(), 42, testTuple())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Len(t, client.sent, 1)

	sent := client.sent[0]
	require.Equal(t, uint64(7), sent.Nonce())
	require.Equal(t, common.HexToAddress(testContract), *sent.To())
	require.Equal(t, uint64(10_000_000), sent.Gas())
	require.Equal(t, types.DynamicFeeTxType, int(sent.Type()))

	// fee cap = 2*baseFee + tip(0)
	require.Equal(t, big.NewInt(20_000_000_000), sent.GasFeeCap())

	clientAbi := client.binding.ABI()
	method, err := clientAbi.MethodById(sent.Data()[:4])
	require.NoError(t, err)
	require.Equal(t, "reportRelay", method.Name)
}

func TestSubmitSkipsAlreadyReportedEra(t *testing.T) {
	t.Parallel()

	client := &mockEthClient{
		t:        t,
		lastEra:  42,
		reported: true,
	}
	s := newTestSubmitter(t, client, fastConfig())

	res, err := s.Submit(context.Background(), 42, testTuple())
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Empty(t, client.sent)
}

func TestSubmitDoesNotSkipOlderReport(t *testing.T) {
	t.Parallel()

	client := &mockEthClient{
		t:             t,
		lastEra:       41,
		reported:      true,
		receiptStatus: types.ReceiptStatusSuccessful,
	}
	s := newTestSubmitter(t, client, fastConfig())

	res, err := s.Submit(context.Background(), 42, testTuple())
	require.NoError(t, err)
	require.Equal(t, OutcomeSuccess, res.Outcome)
	require.Len(t, client.sent, 1)
}

func TestSubmitClassifiesRevert(t *testing.T) {
	t.Parallel()

	client := &mockEthClient{
		t:             t,
		receiptStatus: types.ReceiptStatusFailed,
	}
	s := newTestSubmitter(t, client, fastConfig())

	_, err := s.Submit(context.Background(), 42, testTuple())
	require.ErrorIs(t, err, ErrReverted)
	require.Len(t, client.sent, 1)
}

func TestDebugModeNeverBroadcasts(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.DebugMode = true
	client := &mockEthClient{t: t}
	s := newTestSubmitter(t, client, cfg)

	for era := uint64(42); era < 45; era++ {
		res, err := s.Submit(context.Background(), era, testTuple())
		require.NoError(t, err)
		require.Equal(t, OutcomeDebug, res.Outcome)
	}
	require.Empty(t, client.sent)
}

func TestNonceMonotonicAcrossStaleNode(t *testing.T) {
	t.Parallel()

	client := &mockEthClient{
		t:             t,
		nonce:         7,
		receiptStatus: types.ReceiptStatusSuccessful,
	}
	s := newTestSubmitter(t, client, fastConfig())

	// The node keeps reporting nonce 7 even after the first submission.
	for i := 0; i < 3; i++ {
		_, err := s.Submit(context.Background(), 42, testTuple())
		require.NoError(t, err)
	}

	require.Len(t, client.sent, 3)
	var prev uint64
	for i, tx := range client.sent {
		if i > 0 {
			require.Greater(t, tx.Nonce(), prev)
		}
		prev = tx.Nonce()
	}
}
