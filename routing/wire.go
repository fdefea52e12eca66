package routing

import (
	"encoding/json"
	"strings"
)

// personaList tolerates both `"p2"` and `["p2"]` in model output; models
// routinely return a bare string even when asked for an array.
type personaList []string

func (l *personaList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if s := strings.TrimSpace(single); s != "" {
			*l = personaList{s}
		} else {
			*l = nil
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*l = personaList(many)
	return nil
}

// routingWire is the JSON shape the routing prompt requests.
type routingWire struct {
	SelectedPersonas personaList `json:"selectedPersonas"`
	SelectedPersona  string      `json:"selectedPersona"` // singular variant some models emit
	Confidence       float64     `json:"confidence"`
	Action           string      `json:"action"`
	Reasoning        string      `json:"reasoning"`
}

// ids normalizes the two selection fields into one ordered list.
func (w routingWire) ids() []string {
	if len(w.SelectedPersonas) > 0 {
		return w.SelectedPersonas
	}
	if s := strings.TrimSpace(w.SelectedPersona); s != "" {
		return []string{s}
	}
	return nil
}

// continuationWire is the JSON shape the continuation prompt requests.
type continuationWire struct {
	Continue    bool   `json:"continue"`
	NextSpeaker string `json:"nextSpeaker"`
	Topic       string `json:"topic"`
	Reasoning   string `json:"reasoning"`
}
