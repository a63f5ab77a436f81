// Package data is the Store (C1): the single persistent owner of the
// canonical schema described in spec §3. Every other component holds
// immutable views over rows this package returns.
package data

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaxpayerType string

const (
	TaxpayerTrust    TaxpayerType = "TRUST"
	TaxpayerPersonal TaxpayerType = "PERSONAL"
)

type AccountType string

const (
	AccountTaxable AccountType = "TAXABLE"
	AccountIRA     AccountType = "IRA"
	AccountOther   AccountType = "OTHER"
)

type TxnType string

const (
	TxnBuy         TxnType = "BUY"
	TxnSell        TxnType = "SELL"
	TxnDiv         TxnType = "DIV"
	TxnInt         TxnType = "INT"
	TxnFee         TxnType = "FEE"
	TxnWithholding TxnType = "WITHHOLDING"
	TxnTransfer    TxnType = "TRANSFER"
	TxnOther       TxnType = "OTHER"
)

type ConnectionStatus string

const (
	ConnActive   ConnectionStatus = "ACTIVE"
	ConnDisabled ConnectionStatus = "DISABLED"
	ConnError    ConnectionStatus = "ERROR"
)

type LotSource string

const (
	LotReconstructed LotSource = "RECONSTRUCTED"
	LotAuthoritative LotSource = "AUTHORITATIVE"
)

type Term string

const (
	TermST      Term = "ST"
	TermLT      Term = "LT"
	TermUnknown Term = "UNKNOWN"
)

type WashStatus string

const (
	WashApplied WashStatus = "APPLIED"
	WashFlagged WashStatus = "FLAGGED"
)

type CorpActionType string

const (
	CorpActionSplit        CorpActionType = "SPLIT"
	CorpActionReverseSplit CorpActionType = "REVERSE_SPLIT"
	CorpActionMerger       CorpActionType = "MERGER"
)

type TaxTagCategory string

const (
	TagIRADistribution    TaxTagCategory = "IRA_DISTRIBUTION"
	TagIRAWithholding     TaxTagCategory = "IRA_WITHHOLDING"
	TagEstimatedTaxPaid   TaxTagCategory = "ESTIMATED_TAX_PAYMENT"
	TagW2Withholding      TaxTagCategory = "W2_WITHHOLDING"
	TagTrustDistribution  TaxTagCategory = "TRUST_DISTRIBUTION"
	TagBusinessIncome     TaxTagCategory = "BUSINESS_INCOME"
	TagBusinessExpense    TaxTagCategory = "BUSINESS_EXPENSE"
)

type TaxDocStatus string

const (
	DocUploaded    TaxDocStatus = "UPLOADED"
	DocExtracting  TaxDocStatus = "EXTRACTING"
	DocNeedsReview TaxDocStatus = "NEEDS_REVIEW"
	DocConfirmed   TaxDocStatus = "CONFIRMED"
	DocError       TaxDocStatus = "ERROR"
)

type TaxpayerEntity struct {
	ID   int
	Name string
	Type TaxpayerType
}

type Account struct {
	ID          int
	Name        string
	Broker      string
	AccountType AccountType
	TaxpayerID  int
}

type Security struct {
	ID                int
	Ticker            string
	AssetClass        string
	ExpenseRatio      decimal.Decimal
	SubstituteGroupID *int
	Metadata          map[string]any
}

// TxnLinks carries the audit/provenance side-table fields (spec §9:
// "generic raw side-table for audit" rather than a stringly-keyed dict in
// the hot path).
type TxnLinks struct {
	ProviderTxnID     *string `json:"provider_txn_id,omitempty"`
	ProviderAccountID *string `json:"provider_account_id,omitempty"`
	Description       string  `json:"description,omitempty"`
	AdditionalDetail   string  `json:"additional_detail,omitempty"`
	RawType            string  `json:"raw_type,omitempty"`
	Source             string  `json:"source,omitempty"`
}

type Transaction struct {
	ID        int
	AccountID int
	Date      time.Time
	Type      TxnType
	Ticker    *string
	Qty       *decimal.Decimal
	Amount    decimal.Decimal
	Links     TxnLinks
}

type CashBalance struct {
	AccountID int
	AsOfDate  time.Time
	Amount    decimal.Decimal
}

type ExternalConnection struct {
	ID         int
	Name       string
	Provider   string
	Broker     string
	Connector  string
	TaxpayerID int
	Status     ConnectionStatus
	Metadata   map[string]any
}

type HoldingItem struct {
	ProviderAccountID string
	Symbol            string
	Qty               *decimal.Decimal
	MarketValue       *decimal.Decimal
	CostBasisTotal    *decimal.Decimal
	IsTotal           bool
}

type ExternalHoldingSnapshot struct {
	ID           int
	ConnectionID int
	AsOf         time.Time
	Payload      []HoldingItem
	Derived      bool
}

type TaxLot struct {
	ID              int
	TaxpayerID      int
	AccountID       int
	SecurityID      int
	AcquiredDate    time.Time
	QuantityOpen    decimal.Decimal
	BasisOpen       decimal.Decimal
	Source          LotSource
	CreatedFromTxnID *int
}

type LotDisposal struct {
	ID               int
	SellTxnID        int
	TaxLotID         int
	QuantitySold     decimal.Decimal
	ProceedsAllocated decimal.Decimal
	BasisAllocated   *decimal.Decimal // nil when term=UNKNOWN and basis is unknown
	RealizedGain     *decimal.Decimal
	Term             Term
	AsOfDate         time.Time
}

type WashSaleAdjustment struct {
	ID                    int
	LossSaleTxnID         int
	ReplacementBuyTxnID   *int
	ReplacementLotID      *int
	DeferredLoss          decimal.Decimal
	BasisIncrease         decimal.Decimal
	WindowStart           time.Time
	WindowEnd             time.Time
	Status                WashStatus
}

type CorporateActionEvent struct {
	ID         int
	TaxpayerID int
	AccountID  *int
	SecurityID *int
	ActionDate time.Time
	ActionType CorpActionType
	Ratio      *decimal.Decimal
	Applied    bool
	Details    map[string]any
}

type TaxTag struct {
	TransactionID int
	Category      TaxTagCategory
	Note          string
}

type TaxFact struct {
	TaxYear            int
	FactType           string
	Amount             decimal.Decimal
	OwnerEntityID       int
	IsAuthoritative     bool
	Confirmed           bool
}

// TaxProfile carries the per-year filing configuration §4.4 folds everything
// else against: filing status/state, trust income election, safe-harbor and
// NIIT parameters, and the business-income inputs §4.4.2 needs.
type TaxProfile struct {
	Year                  int
	FilingStatus          string
	State                 string
	Deductions            decimal.Decimal
	HouseholdSize         int
	TrustIncomeTaxableToUser bool
	TrustStartDate        *time.Time
	LastYearTotalTax      *decimal.Decimal
	SafeHarborMultiplier  decimal.Decimal
	QualifiedDividendPct  float64
	NIITEnabled           bool
	NIITRate              float64
	StateRate             float64
	BusinessNetProfit     decimal.Decimal
	BusinessExpenseRatio  float64
}

// TaxManualOverride is a category's manual monthly override (§4.4.1 rule
// 1). MonthlyValues always has length 12; a scalar override is distributed
// evenly by the caller that wrote it.
type TaxManualOverride struct {
	Year          int
	Category      string
	MonthlyValues [12]decimal.Decimal
}

type RebuildResult struct {
	LotsCreated            int
	DisposalsCreated       int
	WashAdjustmentsCreated int
	Warnings               []string
}
