package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakehub/core"
	"stakehub/crypto"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Server exposes the hub's read surface and the permissionless operations
// (report ingestion, forced rebalance) over JSON-RPC. Identity-bound
// mutations stay off this surface; they belong to the embedding process.
type Server struct {
	hub *core.Hub
}

func NewServer(hub *core.Hub) *Server {
	return &Server{hub: hub}
}

// Start serves the RPC endpoint on / and prometheus metrics on /metrics.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: &RPCError{Code: code, Message: message}}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, nil, codeInvalidRequest, "POST required")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, nil, codeParseError, "unable to read request body")
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, codeParseError, "invalid JSON payload")
		return
	}

	var result interface{}
	switch req.Method {
	case "stakehub_listVaults":
		result, err = s.listVaults(req.Params)
	case "stakehub_getVault":
		result, err = s.getVault(req.Params)
	case "stakehub_getQuarantine":
		result, err = s.getQuarantine(req.Params)
	case "stakehub_outstandingObligations":
		result, err = s.outstandingObligations(req.Params)
	case "stakehub_effectiveShareLimit":
		result, err = s.effectiveShareLimit(req.Params)
	case "stakehub_ingestReport":
		result, err = s.ingestReport(req.Params)
	case "stakehub_forceRebalance":
		result, err = s.forceRebalance(req.Params)
	default:
		writeError(w, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
		return
	}
	if err != nil {
		writeError(w, req.ID, codeServerError, err.Error())
		return
	}
	writeResult(w, req.ID, result)
}

func decodeParam(params []json.RawMessage, index int, out interface{}) error {
	if index >= len(params) {
		return fmt.Errorf("missing parameter %d", index)
	}
	if err := json.Unmarshal(params[index], out); err != nil {
		return fmt.Errorf("invalid parameter %d: %w", index, err)
	}
	return nil
}

func addressParam(params []json.RawMessage, index int) (crypto.Address, error) {
	var raw string
	if err := decodeParam(params, index, &raw); err != nil {
		return crypto.Address{}, err
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	return addr, nil
}

func amountParam(params []json.RawMessage, index int) (*big.Int, error) {
	var raw string
	if err := decodeParam(params, index, &raw); err != nil {
		return nil, err
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

func (s *Server) listVaults(params []json.RawMessage) (interface{}, error) {
	offset, limit := 0, 50
	if len(params) > 0 {
		if err := decodeParam(params, 0, &offset); err != nil {
			return nil, err
		}
	}
	if len(params) > 1 {
		if err := decodeParam(params, 1, &limit); err != nil {
			return nil, err
		}
	}
	snapshots, err := s.hub.ListVaults(offset, limit)
	if err != nil {
		return nil, err
	}
	out := make([]VaultResult, 0, len(snapshots))
	for _, snapshot := range snapshots {
		out = append(out, vaultResult(snapshot))
	}
	return out, nil
}

func (s *Server) getVault(params []json.RawMessage) (interface{}, error) {
	vault, err := addressParam(params, 0)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.hub.Vault(vault)
	if err != nil {
		return nil, err
	}
	return vaultResult(*snapshot), nil
}

func (s *Server) getQuarantine(params []json.RawMessage) (interface{}, error) {
	vault, err := addressParam(params, 0)
	if err != nil {
		return nil, err
	}
	q, err := s.hub.QuarantineFor(vault)
	if err != nil {
		return nil, err
	}
	return quarantineResult(q), nil
}

func (s *Server) outstandingObligations(params []json.RawMessage) (interface{}, error) {
	vault, err := addressParam(params, 0)
	if err != nil {
		return nil, err
	}
	outstanding, err := s.hub.OutstandingObligations(vault)
	if err != nil {
		return nil, err
	}
	return decimal(outstanding), nil
}

func (s *Server) effectiveShareLimit(params []json.RawMessage) (interface{}, error) {
	vault, err := addressParam(params, 0)
	if err != nil {
		return nil, err
	}
	limit, err := s.hub.EffectiveShareLimit(vault)
	if err != nil {
		return nil, err
	}
	return decimal(limit), nil
}

type ingestReportParams struct {
	Vault           string   `json:"vault"`
	TotalValue      string   `json:"totalValue"`
	CumulativeFees  string   `json:"cumulativeFees"`
	LiabilityShares string   `json:"liabilityShares"`
	Proof           []string `json:"proof"`
}

func (s *Server) ingestReport(params []json.RawMessage) (interface{}, error) {
	var payload ingestReportParams
	if err := decodeParam(params, 0, &payload); err != nil {
		return nil, err
	}
	vault, err := crypto.DecodeAddress(payload.Vault)
	if err != nil {
		return nil, fmt.Errorf("invalid vault address: %w", err)
	}
	totalValue, ok := new(big.Int).SetString(payload.TotalValue, 10)
	if !ok {
		return nil, fmt.Errorf("invalid totalValue %q", payload.TotalValue)
	}
	fees, ok := new(big.Int).SetString(payload.CumulativeFees, 10)
	if !ok {
		return nil, fmt.Errorf("invalid cumulativeFees %q", payload.CumulativeFees)
	}
	shares, ok := new(big.Int).SetString(payload.LiabilityShares, 10)
	if !ok {
		return nil, fmt.Errorf("invalid liabilityShares %q", payload.LiabilityShares)
	}
	proof := make([][32]byte, len(payload.Proof))
	for i, encoded := range payload.Proof {
		raw, err := hex.DecodeString(encoded)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("invalid proof element %d", i)
		}
		copy(proof[i][:], raw)
	}
	if err := s.hub.IngestVaultReport(vault, totalValue, fees, shares, proof); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Server) forceRebalance(params []json.RawMessage) (interface{}, error) {
	vault, err := addressParam(params, 0)
	if err != nil {
		return nil, err
	}
	if err := s.hub.ForceRebalance(vault); err != nil {
		return nil, err
	}
	return "ok", nil
}
