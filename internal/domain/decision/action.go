package decision

import (
	"fmt"
	"strings"

	"tradecouncil/pkg/errors"
)

// Action is an agent's tri-state vote
type Action int

const (
	ActionSell Action = -1
	ActionHold Action = 0
	ActionBuy  Action = 1
)

// ActionOrder is the canonical iteration order. Every argmax over actions
// walks this slice and keeps the first maximum, so SELL wins a tie over HOLD
// and HOLD wins over BUY.
var ActionOrder = []Action{ActionSell, ActionHold, ActionBuy}

// Valid checks if action is one of -1, 0, 1
func (a Action) Valid() bool {
	return a == ActionSell || a == ActionHold || a == ActionBuy
}

// String returns string representation
func (a Action) String() string {
	switch a {
	case ActionSell:
		return "SELL"
	case ActionHold:
		return "HOLD"
	case ActionBuy:
		return "BUY"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Float returns the action as a signed score component
func (a Action) Float() float64 {
	return float64(a)
}

// ParseAction accepts BUY/SELL/HOLD (any case) and the long/short aliases
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return ActionBuy, nil
	case "sell", "short":
		return ActionSell, nil
	case "hold", "wait", "":
		return ActionHold, nil
	}
	return ActionHold, errors.NewValidationError("action", "must be buy, sell or hold", s)
}

// ArgmaxAction returns the action with the largest value in ActionOrder
// precedence. Missing actions count as zero.
func ArgmaxAction(values map[Action]float64) Action {
	best := ActionOrder[0]
	bestVal := values[best]
	for _, a := range ActionOrder[1:] {
		if values[a] > bestVal {
			best = a
			bestVal = values[a]
		}
	}
	return best
}
