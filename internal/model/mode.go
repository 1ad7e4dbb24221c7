package model

import "strconv"

// Mode is the Barcode Buddy scanner state that decides what a scan does.
type Mode int

const (
	ModeConsume Mode = iota
	ModeConsumeSpoiled
	ModePurchase
	ModeOpen
	ModeInventory
	ModeAddToShoppingList
	ModeConsumeAll
)

var modeNames = map[Mode]string{
	ModeConsume:           "consume",
	ModeConsumeSpoiled:    "consume (spoiled)",
	ModePurchase:          "purchase",
	ModeOpen:              "open",
	ModeInventory:         "inventory",
	ModeAddToShoppingList: "add to shopping list",
	ModeConsumeAll:        "consume all",
}

func (m Mode) Known() bool {
	_, ok := modeNames[m]
	return ok
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode " + strconv.Itoa(int(m))
}

// ModeResponse is one element of the list returned by the getmode endpoint.
// The mode sits at data.mode of the first element.
type ModeResponse struct {
	Data *struct {
		Mode *int `json:"mode"`
	} `json:"data"`
	Result *ResultInfo `json:"result,omitempty"`
}

// ResultInfo is the status envelope Barcode Buddy attaches to API replies.
type ResultInfo struct {
	Result   string `json:"result"`
	HTTPCode int    `json:"http_code"`
}

// ResultEnvelope is an API reply carrying only a result envelope; setmode
// errors put the message at result.result.
type ResultEnvelope struct {
	Data   any         `json:"data"`
	Result *ResultInfo `json:"result"`
}

// InvalidStateReply is the body returned when setmode gets a non-integer state.
func InvalidStateReply() []ResultEnvelope {
	return []ResultEnvelope{{
		Data: nil,
		Result: &ResultInfo{
			Result:   "Invalid state provided",
			HTTPCode: 400,
		},
	}}
}
