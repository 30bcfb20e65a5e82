package rpc

import (
	"math/big"

	"stakehub/native/lazyoracle"
	"stakehub/native/vaulthub"
)

// VaultResult summarises a vault's connection and accounting record for RPC
// consumers. Big amounts travel as decimal strings.
type VaultResult struct {
	Vault                       string `json:"vault"`
	Owner                       string `json:"owner"`
	NodeOperator                string `json:"nodeOperator"`
	ShareLimit                  string `json:"shareLimit"`
	ReserveRatioBps             uint64 `json:"reserveRatioBps"`
	ForcedRebalanceThresholdBps uint64 `json:"forcedRebalanceThresholdBps"`
	PendingDisconnect           bool   `json:"pendingDisconnect,omitempty"`

	LiabilityShares string `json:"liabilityShares"`
	InOutDelta      string `json:"inOutDelta"`
	ReportValue     string `json:"reportValue"`
	ReportTimestamp uint64 `json:"reportTimestamp"`
	CumulativeFees  string `json:"cumulativeFees"`
}

// QuarantineResult reflects a vault's held excess valuation.
type QuarantineResult struct {
	Vault     string `json:"vault"`
	Excess    string `json:"excess"`
	StartedAt uint64 `json:"startedAt"`
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func vaultResult(snapshot vaulthub.VaultSnapshot) VaultResult {
	conn := snapshot.Connection
	record := snapshot.Record
	return VaultResult{
		Vault:                       conn.Vault.String(),
		Owner:                       conn.Owner.String(),
		NodeOperator:                conn.NodeOperator.String(),
		ShareLimit:                  decimal(conn.ShareLimit),
		ReserveRatioBps:             conn.ReserveRatioBps,
		ForcedRebalanceThresholdBps: conn.ForcedRebalanceThresholdBps,
		PendingDisconnect:           conn.PendingDisconnect,
		LiabilityShares:             decimal(record.LiabilityShares),
		InOutDelta:                  decimal(record.InOutDelta),
		ReportValue:                 decimal(record.Report.TotalValue),
		ReportTimestamp:             record.Report.Timestamp,
		CumulativeFees:              decimal(record.CumulativeFees),
	}
}

func quarantineResult(q *lazyoracle.Quarantine) *QuarantineResult {
	if q == nil {
		return nil
	}
	return &QuarantineResult{
		Vault:     q.Vault.String(),
		Excess:    decimal(q.Excess),
		StartedAt: q.StartedAt,
	}
}
