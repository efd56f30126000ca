package op

import "github.com/google/uuid"

// Type discriminator for operation payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypePurchasePolicy
	TypeReportFlightStatus
	TypeBatchReportFlightStatus
	TypeProcessClaim
	TypeCheckClaimStatus
	TypeCancelPolicy
	TypeAuthorizeOracle
	TypeRevokeOracle
	TypeFundReserve
	TypeWithdrawReserve
	TypeUpdateParameters
	TypeUpdatePayoutTiers
	TypePause
	TypeUnpause
	TypeTransferAdmin
)

// Operation is the interface all ledger operations must implement.
// Operations are submitted to the engine and applied in one serial order;
// each mutating operation commits all its effects or none.
type Operation interface {
	// IdempotencyKey returns the stable dedup key. Feed-delivered
	// operations reuse the upstream message id so redeliveries are
	// recognized; locally originated operations get a fresh key.
	IdempotencyKey() string

	// OpType returns the discriminator
	OpType() Type

	// Caller returns the identity the engine authorizes against
	Caller() uuid.UUID
}

func (t Type) String() string {
	switch t {
	case TypePurchasePolicy:
		return "PurchasePolicy"
	case TypeReportFlightStatus:
		return "ReportFlightStatus"
	case TypeBatchReportFlightStatus:
		return "BatchReportFlightStatus"
	case TypeProcessClaim:
		return "ProcessClaim"
	case TypeCheckClaimStatus:
		return "CheckClaimStatus"
	case TypeCancelPolicy:
		return "CancelPolicy"
	case TypeAuthorizeOracle:
		return "AuthorizeOracle"
	case TypeRevokeOracle:
		return "RevokeOracle"
	case TypeFundReserve:
		return "FundReserve"
	case TypeWithdrawReserve:
		return "WithdrawReserve"
	case TypeUpdateParameters:
		return "UpdateParameters"
	case TypeUpdatePayoutTiers:
		return "UpdatePayoutTiers"
	case TypePause:
		return "Pause"
	case TypeUnpause:
		return "Unpause"
	case TypeTransferAdmin:
		return "TransferAdmin"
	default:
		return "Unknown"
	}
}
