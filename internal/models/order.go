package models

// OrderKind is the action kind of a multi-leg order.
const OrderKind = "COMBINATION"

// SelectionMode identifies how target strikes were computed.
type SelectionMode string

const (
	ModeSigmaRange  SelectionMode = "SIGMA_RANGE"
	ModeATM         SelectionMode = "ATM"
	ModeDefinedRisk SelectionMode = "DEFINED_RISK"
)

// StrikeAnalysis records the numbers behind a strike selection so the
// resulting legs can be audited.
type StrikeAnalysis struct {
	Mode           SelectionMode `json:"mode"`
	Spot           float64       `json:"spot"`
	ATMStrike      float64       `json:"atm_strike"`
	RangePoints    float64       `json:"range_points"`
	SigmaMult      float64       `json:"sigma_mult"`
	UpperBound     float64       `json:"upper_bound"`
	LowerBound     float64       `json:"lower_bound"`
	SellCallStrike float64       `json:"sell_call_strike"`
	SellPutStrike  float64       `json:"sell_put_strike"`
	BuyCallStrike  float64       `json:"buy_call_strike,omitempty"`
	BuyPutStrike   float64       `json:"buy_put_strike,omitempty"`
}

// Leg is one option contract in an order.
type Leg struct {
	Side       OptionSide  `json:"type"`
	Strike     float64     `json:"strike"`
	Instrument string      `json:"tradingsymbol"`
	Quantity   int         `json:"quantity"`
	Action     OrderAction `json:"action"`
	Price      float64     `json:"price,omitempty"`
	OrderID    *string     `json:"order_id"`
}

// Order is the executor's materialized plan.
type Order struct {
	Action   string         `json:"action"`
	Strategy Strategy       `json:"strategy"`
	Legs     []Leg          `json:"legs"`
	Analysis StrikeAnalysis `json:"analysis"`
}

// SellLegs returns the short legs in order.
func (o *Order) SellLegs() []Leg {
	var out []Leg
	for _, l := range o.Legs {
		if l.Action == ActionSell {
			out = append(out, l)
		}
	}
	return out
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Legs = make([]Leg, len(o.Legs))
	for i, l := range o.Legs {
		if l.OrderID != nil {
			id := *l.OrderID
			l.OrderID = &id
		}
		c.Legs[i] = l
	}
	return &c
}
