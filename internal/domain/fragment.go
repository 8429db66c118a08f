package domain

import (
	"context"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FragmentKind names the family a configuration fragment belongs to.
type FragmentKind string

const (
	FragmentEssence    FragmentKind = "essence"
	FragmentRoom       FragmentKind = "room"
	FragmentModulation FragmentKind = "modulation"
)

// FragmentKinds lists every FragmentKind.
var FragmentKinds = []FragmentKind{FragmentEssence, FragmentRoom, FragmentModulation}

// FragmentStore serves raw configuration fragments addressed by kind and name.
// Fragment returns an error wrapping ErrFragmentNotFound when the fragment does not exist.
type FragmentStore interface {
	Fragment(ctx context.Context, kind FragmentKind, name string) (string, error)
	List(ctx context.Context, kind FragmentKind) ([]string, error)
}

// Essence is an agent persona.
type Essence struct {
	Tag                string            `json:"tag"`
	Status             string            `json:"status"`
	CoreTone           string            `json:"core_tone"`
	BehavioralPillars  []string          `json:"behavioral_pillars"`
	DriftBoundaries    []string          `json:"drift_boundaries"`
	ModulationFeatures []string          `json:"modulation_features"`
	Notes              string            `json:"notes,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// KV is an insertion-ordered string map.
type KV = orderedmap.OrderedMap[string, string]

// NewKV returns an empty KV.
func NewKV() *KV { return orderedmap.New[string, string]() }

// Room is a contextual modulation of an agent's behaviour.
type Room struct {
	Name        string            `json:"name"`
	Purpose     string            `json:"purpose"`
	Atmosphere  *KV               `json:"atmosphere"`
	Modulation  *KV               `json:"modulation"`
	Constraints []string          `json:"constraints"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// DefaultModulationPriority applies when a rule omits or garbles its priority.
const DefaultModulationPriority = 50

// ModulationRule adjusts behaviour when its trigger applies. Higher priority renders first.
type ModulationRule struct {
	Name     string            `json:"name"`
	Trigger  string            `json:"trigger"`
	Effect   string            `json:"effect"`
	Priority int               `json:"priority"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
