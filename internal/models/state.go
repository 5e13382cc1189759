// internal/models/state.go
package models

import "strings"

// StateCode identifies a licensing authority: one of the Brazilian federative
// units or the federal highway department (DNIT).
type StateCode string

const (
	StateAC   StateCode = "AC"
	StateAL   StateCode = "AL"
	StateAP   StateCode = "AP"
	StateAM   StateCode = "AM"
	StateBA   StateCode = "BA"
	StateCE   StateCode = "CE"
	StateDF   StateCode = "DF"
	StateES   StateCode = "ES"
	StateGO   StateCode = "GO"
	StateMA   StateCode = "MA"
	StateMT   StateCode = "MT"
	StateMS   StateCode = "MS"
	StateMG   StateCode = "MG"
	StatePA   StateCode = "PA"
	StatePB   StateCode = "PB"
	StatePR   StateCode = "PR"
	StatePE   StateCode = "PE"
	StatePI   StateCode = "PI"
	StateRJ   StateCode = "RJ"
	StateRN   StateCode = "RN"
	StateRS   StateCode = "RS"
	StateRO   StateCode = "RO"
	StateRR   StateCode = "RR"
	StateSC   StateCode = "SC"
	StateSP   StateCode = "SP"
	StateSE   StateCode = "SE"
	StateTO   StateCode = "TO"
	StateDNIT StateCode = "DNIT"
)

var knownStates = map[StateCode]struct{}{
	StateAC: {}, StateAL: {}, StateAP: {}, StateAM: {}, StateBA: {}, StateCE: {},
	StateDF: {}, StateES: {}, StateGO: {}, StateMA: {}, StateMT: {}, StateMS: {},
	StateMG: {}, StatePA: {}, StatePB: {}, StatePR: {}, StatePE: {}, StatePI: {},
	StateRJ: {}, StateRN: {}, StateRS: {}, StateRO: {}, StateRR: {}, StateSC: {},
	StateSP: {}, StateSE: {}, StateTO: {}, StateDNIT: {},
}

// CanonicalState trims and uppercases raw and reports whether the result is a
// recognized state code.
func CanonicalState(raw string) (StateCode, bool) {
	code := StateCode(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := knownStates[code]
	return code, ok
}

func (s StateCode) IsKnown() bool {
	_, ok := knownStates[s]
	return ok
}

func (s StateCode) String() string {
	return string(s)
}
