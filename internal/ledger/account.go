package ledger

// The ledger tracks one settlement asset in micro-units, so account keys
// carry no asset dimension.

// AccountScope is the top-level account namespace
type AccountScope uint8

const (
	AccountScopeSystem AccountScope = iota
	AccountScopeExternal
)

// AccountSubType is the account purpose
type AccountSubType uint8

const (
	// System sub-types
	SubTypeReservePool AccountSubType = iota

	// External boundary sub-types. Balances on these accounts are the
	// mirror image of funds that crossed the ledger boundary, which is
	// what makes lifetime totals derivable instead of separately kept.
	SubTypeExternalPremiums
	SubTypeExternalPayouts
	SubTypeExternalRefunds
	SubTypeExternalFunding
	SubTypeExternalWithdrawals
)

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope   AccountScope
	SubType AccountSubType
}

// ReservePoolKey is the pooled collateral account backing all payouts.
func ReservePoolKey() AccountKey {
	return AccountKey{Scope: AccountScopeSystem, SubType: SubTypeReservePool}
}

// ExternalKey returns a settlement boundary account.
func ExternalKey(subType AccountSubType) AccountKey {
	return AccountKey{Scope: AccountScopeExternal, SubType: subType}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeSystem:
		return "system:" + k.subTypeName()
	case AccountScopeExternal:
		return "external:" + k.subTypeName()
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath. Used when restoring
// balances from a snapshot, where keys are stored as paths.
func ParseAccountPath(path string) (AccountKey, bool) {
	for _, k := range allAccountKeys() {
		if k.AccountPath() == path {
			return k, true
		}
	}
	return AccountKey{}, false
}

func allAccountKeys() []AccountKey {
	return []AccountKey{
		ReservePoolKey(),
		ExternalKey(SubTypeExternalPremiums),
		ExternalKey(SubTypeExternalPayouts),
		ExternalKey(SubTypeExternalRefunds),
		ExternalKey(SubTypeExternalFunding),
		ExternalKey(SubTypeExternalWithdrawals),
	}
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeReservePool:
		return "reserve_pool"
	case SubTypeExternalPremiums:
		return "premiums"
	case SubTypeExternalPayouts:
		return "payouts"
	case SubTypeExternalRefunds:
		return "refunds"
	case SubTypeExternalFunding:
		return "funding"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
