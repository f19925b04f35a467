package sales

// DocumentType is the closed set of sales documents.
type DocumentType string

const (
	TypeQuotation    DocumentType = "QUOTATION"
	TypeDeliveryNote DocumentType = "DELIVERY_NOTE"
	TypeInvoice      DocumentType = "INVOICE"
)

// Traits are the behaviours that vary per document type.
type Traits struct {
	// CashierGate requires the document to pass through DRAFT and the cashier before finalizing.
	CashierGate bool
	// AffectsInventory deducts stock when the document is finalized.
	AffectsInventory bool
	// NumberAtCreation assigns the number when the document is created instead of at finalize.
	NumberAtCreation bool
	// FinalStatus is the status reached on finalize.
	FinalStatus  Status
	Prefix       string
	SequenceBase int64
}

var documentTraits = map[DocumentType]Traits{
	TypeQuotation: {
		NumberAtCreation: true,
		FinalStatus:      StatusIssued,
		Prefix:           "COT",
		SequenceBase:     150000,
	},
	TypeDeliveryNote: {
		AffectsInventory: true,
		NumberAtCreation: true,
		FinalStatus:      StatusIssued,
		Prefix:           "REM",
		SequenceBase:     150000,
	},
	TypeInvoice: {
		CashierGate:      true,
		AffectsInventory: true,
		FinalStatus:      StatusInvoiced,
		Prefix:           "FAC",
		SequenceBase:     100000,
	},
}

// Traits returns the behaviour table entry for t.
func (t DocumentType) Traits() (Traits, bool) {
	tr, ok := documentTraits[t]
	return tr, ok
}

// IsValid reports whether t is a known type.
func (t DocumentType) IsValid() bool {
	_, ok := documentTraits[t]
	return ok
}
