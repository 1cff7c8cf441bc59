package enums

// StockAction names the direction of a ledger entry.
type StockAction string

const (
	StockActionDeduct   StockAction = "DEDUCT"
	StockActionRollback StockAction = "ROLLBACK"
)

var stockActions = []StockAction{StockActionDeduct, StockActionRollback}

func (a StockAction) IsValid() bool { return member(stockActions, a) }

// StockSource distinguishes automatic callback deductions from operator actions.
type StockSource string

const (
	StockSourceAuto   StockSource = "AUTO"
	StockSourceManual StockSource = "MANUAL"
)

var stockSources = []StockSource{StockSourceAuto, StockSourceManual}

func (s StockSource) IsValid() bool { return member(stockSources, s) }

func ParseStockSource(value string) (StockSource, error) {
	return parse(stockSources, "stock source", value)
}
