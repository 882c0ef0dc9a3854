package model

// InteractionKind selects one of the two ledgers. A ledger row's existence
// is the boolean state; there is no separate flag column.
type InteractionKind int

const (
	Like InteractionKind = iota + 1
	Collect
)

func (k InteractionKind) String() string {
	switch k {
	case Like:
		return "like"
	case Collect:
		return "collect"
	default:
		return "unknown"
	}
}

// InteractionState is the result of a like/collect mutation: whether the
// caller now holds the row, and the snippet's counter after the change.
type InteractionState struct {
	Active bool `json:"active"`
	Count  int  `json:"count"`
}

// ViewerState is the per-item enrichment for an authenticated viewer.
type ViewerState struct {
	Liked     bool
	Collected bool
}
