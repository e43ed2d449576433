package dialogue

import "encoding/json"

// State is the onboarding and toggle state kept under user facts.
type State struct {
	Name       string         `json:"name,omitempty"`
	IntroDone  bool           `json:"intro_done,omitempty"`
	HumorOn    bool           `json:"humor_on,omitempty"`
	KnoStarted bool           `json:"kno_started,omitempty"`
	KnoIdx     int            `json:"kno_idx,omitempty"`
	KnoDone    bool           `json:"kno_done,omitempty"`
	KnoAnswers map[string]int `json:"kno_answers,omitempty"`
}

// StateFromMap decodes the facts payload; malformed state starts fresh.
func StateFromMap(m map[string]any) State {
	var st State
	raw, err := json.Marshal(m)
	if err != nil {
		return State{}
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}
	}
	return st
}

// ToMap encodes the state for the facts mapping.
func (s State) ToMap() map[string]any {
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}
