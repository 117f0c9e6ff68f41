package ir

import (
	"fmt"
	"strings"
)

// Slot is an equipment position an item may occupy.
type Slot string

const (
	SlotHand    Slot = "HAND"
	SlotOffHand Slot = "OFF_HAND"
	SlotHead    Slot = "HEAD"
	SlotChest   Slot = "CHEST"
	SlotLegs    Slot = "LEGS"
	SlotFeet    Slot = "FEET"
)

// AllSlots lists every slot in canonical scan order.
var AllSlots = []Slot{SlotHand, SlotOffHand, SlotHead, SlotChest, SlotLegs, SlotFeet}

// ParseSlot parses a slot name case-insensitively.
func ParseSlot(s string) (Slot, error) {
	slot := Slot(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllSlots {
		if slot == known {
			return slot, nil
		}
	}
	return "", fmt.Errorf("unknown slot %q", s)
}

// ConstraintKind is one category of eligibility/compatibility check.
type ConstraintKind string

const (
	KindTarget          ConstraintKind = "TARGET"
	KindMaxCapacity     ConstraintKind = "MAX_CAPACITY"
	KindExpression      ConstraintKind = "EXPRESSION"
	KindPermission      ConstraintKind = "PERMISSION"
	KindConflictEffect  ConstraintKind = "CONFLICT_ENCHANT"
	KindConflictGroup   ConstraintKind = "CONFLICT_GROUP"
	KindDependsOnEffect ConstraintKind = "DEPENDENCE_ENCHANT"
	KindDependsOnGroup  ConstraintKind = "DEPENDENCE_GROUP"
	KindDisabledWorld   ConstraintKind = "DISABLED_WORLD"
	KindSlot            ConstraintKind = "SLOT"
)

// AllConstraintKinds lists every constraint kind.
var AllConstraintKinds = []ConstraintKind{
	KindTarget, KindMaxCapacity, KindExpression, KindPermission,
	KindConflictEffect, KindConflictGroup, KindDependsOnEffect, KindDependsOnGroup,
	KindDisabledWorld, KindSlot,
}

// ParseConstraintKind parses a constraint kind name case-insensitively.
func ParseConstraintKind(s string) (ConstraintKind, error) {
	kind := ConstraintKind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllConstraintKinds {
		if kind == known {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown constraint kind %q", s)
}

// Priority orders listeners attached to the same external event.
// Lower values run first.
type Priority int

const (
	PriorityLowest Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
	PriorityHighest
	PriorityMonitor
)

var priorityNames = map[Priority]string{
	PriorityLowest:  "LOWEST",
	PriorityLow:     "LOW",
	PriorityNormal:  "NORMAL",
	PriorityHigh:    "HIGH",
	PriorityHighest: "HIGHEST",
	PriorityMonitor: "MONITOR",
}

// String returns the configuration name of the priority.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// ParsePriority parses a listener priority name. Empty means NORMAL.
func ParsePriority(s string) (Priority, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return PriorityNormal, nil
	}
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", s)
}
