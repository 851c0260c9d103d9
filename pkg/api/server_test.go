package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/beacon/internal/config"
	"github.com/eigerco/beacon/internal/governance"
	"github.com/eigerco/beacon/internal/height"
	"github.com/eigerco/beacon/internal/ledger"
	"github.com/eigerco/beacon/internal/metrics"
	"github.com/eigerco/beacon/internal/sortition"
	"github.com/eigerco/beacon/internal/statetransition"
)

type fakeSource struct {
	state  statetransition.State
	height height.Height
}

func (f *fakeSource) Status() ledger.Status {
	return ledger.Status{Seq: 2, Height: f.height, Groups: f.state.Groups.Len(), EntryCount: 1, LastEntry: []byte{0xab}}
}

func (f *fakeSource) State() statetransition.State { return f.state.Clone() }

func (f *fakeSource) Height() height.Height { return f.height }

var member = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	state, err := statetransition.NewGenesisState(config.Default())
	require.NoError(t, err)

	_, err = state.Groups.Register([]byte{1, 2, 3}, []common.Address{member, member}, 10, 1000)
	require.NoError(t, err)
	state.Selection.Begin(*uint256.NewInt(42), 20)
	state.Selection.Tickets = []sortition.Ticket{sortition.NewTicket(*uint256.NewInt(42), member, 1)}
	state.Governance.Pending["relayEntryTimeout"] = governance.Update{Value: *uint256.NewInt(64), RequestedAt: 1000}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.TransactionRejected("submit_ticket")

	s := NewServer("127.0.0.1:0", &fakeSource{state: state, height: 25}, reg)
	s.now = func() time.Time { return time.Unix(1000+3600, 0) }
	return s, reg
}

func get(t *testing.T, s *Server, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)
	var resp statusResponse
	require.Equal(t, http.StatusOK, get(t, s, "/status", &resp))
	assert.Equal(t, statusResponse{Seq: 2, Height: 25, Groups: 1, EntryCount: 1, LastEntry: "0xab"}, resp)
}

func TestGroups(t *testing.T) {
	s, _ := newTestServer(t)

	var list []groupResponse
	require.Equal(t, http.StatusOK, get(t, s, "/groups", &list))
	require.Len(t, list, 1)
	assert.Equal(t, "0x010203", list[0].PublicKey)
	assert.Equal(t, []common.Address{member, member}, list[0].Members)
	assert.True(t, list[0].Active)
	assert.Equal(t, "0", list[0].MemberReward)

	var one groupResponse
	require.Equal(t, http.StatusOK, get(t, s, "/groups/0", &one))
	assert.Equal(t, list[0], one)

	var errResp errorResponse
	assert.Equal(t, http.StatusNotFound, get(t, s, "/groups/7", &errResp))
	assert.NotEmpty(t, errResp.Error)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/groups/first", &errResp))
	assert.Equal(t, "invalid group index", errResp.Error)
}

func TestSelection(t *testing.T) {
	s, _ := newTestServer(t)
	var resp selectionResponse
	require.Equal(t, http.StatusOK, get(t, s, "/selection", &resp))
	assert.True(t, resp.InProgress)
	assert.Equal(t, uint64(20), resp.Start)
	assert.Equal(t, uint64(20)+config.Default().Params.TicketSubmissionTimeout, resp.SubmissionEnd)
	require.Len(t, resp.Tickets, 1)
	assert.Equal(t, member, resp.Tickets[0].Operator)
	assert.Equal(t, uint64(1), resp.Tickets[0].VirtualIndex)
}

func TestGovernanceParameter(t *testing.T) {
	s, _ := newTestServer(t)

	var pending parameterResponse
	require.Equal(t, http.StatusOK, get(t, s, "/governance/relayEntryTimeout", &pending))
	require.NotNil(t, pending.PendingValue)
	assert.Equal(t, "64", *pending.PendingValue)
	assert.Equal(t, int64(1000), *pending.RequestedAt)
	assert.Equal(t, int64((governance.ExtendedDelay-time.Hour)/time.Second), *pending.RemainingSeconds)
	assert.Equal(t, governance.ExtendedDelay.String(), pending.Delay)

	var idle parameterResponse
	require.Equal(t, http.StatusOK, get(t, s, "/governance/gasPriceCeiling", &idle))
	assert.Nil(t, idle.PendingValue)
	ceiling := config.Default().Params.GasPriceCeiling
	assert.Equal(t, ceiling.Dec(), idle.Value)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/governance/nope", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `beacon_ledger_transactions_rejected_total{kind="submit_ticket"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
