package enums

// PayoutMethod records how a completed order's proceeds reach the seller.
type PayoutMethod string

const (
	PayoutMethodDirectBankTransfer PayoutMethod = "direct_bank_transfer"
	PayoutMethodWalletCredit       PayoutMethod = "wallet_credit"
)

// WalletTransactionType distinguishes credits from debits on the seller wallet.
type WalletTransactionType string

const (
	WalletTransactionCredit WalletTransactionType = "credit"
	WalletTransactionDebit  WalletTransactionType = "debit"
)

// BankingStatus marks whether a seller banking record may receive payouts.
type BankingStatus string

const (
	BankingStatusActive   BankingStatus = "active"
	BankingStatusInactive BankingStatus = "inactive"
)

// AffiliateOrderStatus tracks commission owed on a referred order.
type AffiliateOrderStatus string

const (
	AffiliateOrderStatusPending AffiliateOrderStatus = "pending"
	AffiliateOrderStatusEarned  AffiliateOrderStatus = "earned"
	AffiliateOrderStatusVoid    AffiliateOrderStatus = "void"
)
