package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stakehub/config"
	"stakehub/core"
	"stakehub/core/types"
	"stakehub/crypto"
	"stakehub/native/vaulthub"
)

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.MustNewAddress(prefix, raw)
}

func newTestServer(t *testing.T) (*Server, crypto.Address) {
	t.Helper()
	cfg := config.Default()
	cfg.Treasury = makeAddress(crypto.StakePrefix, 0xf0).String()
	cfg.WithdrawalQueue = makeAddress(crypto.StakePrefix, 0xf1).String()
	cfg.OracleConsensus = makeAddress(crypto.StakePrefix, 0xf2).String()
	cfg.DefaultTier.ShareLimit = "100000"
	hub, err := core.NewHub(cfg)
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}

	vault := makeAddress(crypto.VaultPrefix, 0x01)
	owner := makeAddress(crypto.StakePrefix, 0x02)
	operator := makeAddress(crypto.StakePrefix, 0x03)
	err = hub.Connect(vault, owner, operator, vaulthub.ConnectionLimits{
		ShareLimit:                  big.NewInt(1_000),
		ReserveRatioBps:             2000,
		ForcedRebalanceThresholdBps: 1800,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	funder := makeAddress(crypto.StakePrefix, 0x04)
	if err := hub.Ledger().PutAccount(funder, &types.Account{Balance: big.NewInt(500)}); err != nil {
		t.Fatalf("seed funder: %v", err)
	}
	if err := hub.Fund(funder, vault, big.NewInt(500)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	return NewServer(hub), vault
}

func call(t *testing.T, server *Server, body string) RPCResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.handle(rec, req)

	var resp RPCResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestListVaults(t *testing.T) {
	server, vault := newTestServer(t)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"stakehub_listVaults","params":[],"id":1}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	raw, _ := json.Marshal(resp.Result)
	var results []VaultResult
	if err := json.Unmarshal(raw, &results); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(results) != 1 || results[0].Vault != vault.String() {
		t.Fatalf("unexpected listing: %+v", results)
	}
	if results[0].InOutDelta != "500" {
		t.Fatalf("unexpected in/out delta: %s", results[0].InOutDelta)
	}
}

func TestGetVaultRejectsUnknownAddress(t *testing.T) {
	server, _ := newTestServer(t)
	unknown := makeAddress(crypto.VaultPrefix, 0x7f)

	resp := call(t, server, `{"jsonrpc":"2.0","method":"stakehub_getVault","params":["`+unknown.String()+`"],"id":2}`)
	if resp.Error == nil {
		t.Fatalf("expected error for unknown vault")
	}
}

func TestMethodNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	resp := call(t, server, `{"jsonrpc":"2.0","method":"stakehub_bogus","params":[],"id":3}`)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestOutstandingObligations(t *testing.T) {
	server, vault := newTestServer(t)
	resp := call(t, server, `{"jsonrpc":"2.0","method":"stakehub_outstandingObligations","params":["`+vault.String()+`"],"id":4}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != "0" {
		t.Fatalf("unexpected outstanding value: %v", resp.Result)
	}
}
