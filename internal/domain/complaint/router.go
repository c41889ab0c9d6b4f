package complaint

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Level is an escalation tier, lowest first.
type Level string

const (
	LevelPGRO Level = "PGRO"
	LevelHOD  Level = "HOD"
	LevelGM   Level = "GM"
	LevelCOO  Level = "COO"
	LevelCEO  Level = "CEO"
)

var levelRank = map[Level]int{
	LevelPGRO: 0,
	LevelHOD:  1,
	LevelGM:   2,
	LevelCOO:  3,
	LevelCEO:  4,
}

func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// DefaultRoutes is used when no routing file is configured. PGRO (the patient
// grievance officer desk) is handled in person and has no push recipient.
var DefaultRoutes = map[Level]string{
	LevelHOD: "hod",
	LevelGM:  "gm",
	LevelCOO: "coo",
	LevelCEO: "ceo",
}

// Route is one row of the routing table. An empty Recipient means the level
// is logged but nobody is notified.
type Route struct {
	Level     Level  `json:"level"`
	Recipient string `json:"recipient,omitempty"`
}

// EscalationRouter maps escalation levels to recipient identities. It is
// built once and never mutated.
type EscalationRouter struct {
	routes map[Level]string
}

func NewEscalationRouter(routes map[Level]string) (*EscalationRouter, error) {
	table := make(map[Level]string, len(routes))
	for level, recipient := range routes {
		if !level.Valid() {
			return nil, fmt.Errorf("escalation: unknown level %q", level)
		}
		if recipient != "" {
			table[level] = recipient
		}
	}
	return &EscalationRouter{routes: table}, nil
}

type routesFile struct {
	Escalation map[string]*string `yaml:"escalation"`
}

// LoadEscalationRouter reads a YAML routing table of the form
//
//	escalation:
//	  PGRO: ~
//	  CEO: ceo-office
func LoadEscalationRouter(path string) (*EscalationRouter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("escalation: reading routes file %s: %w", path, err)
	}

	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("escalation: parsing routes file %s: %w", path, err)
	}

	routes := make(map[Level]string, len(f.Escalation))
	for level, recipient := range f.Escalation {
		if recipient == nil {
			routes[Level(level)] = ""
			continue
		}
		routes[Level(level)] = *recipient
	}
	return NewEscalationRouter(routes)
}

// Resolve returns the recipient identity for level. ok is false when the level
// has no recipient, which callers treat as "log only".
func (r *EscalationRouter) Resolve(level Level) (recipient string, ok bool) {
	recipient, ok = r.routes[level]
	return recipient, ok
}

// Routes returns every known level with its recipient, lowest tier first.
func (r *EscalationRouter) Routes() []Route {
	out := make([]Route, 0, len(levelRank))
	for level := range levelRank {
		out = append(out, Route{Level: level, Recipient: r.routes[level]})
	}
	sort.Slice(out, func(i, j int) bool { return levelRank[out[i].Level] < levelRank[out[j].Level] })
	return out
}
