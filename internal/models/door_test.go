package models

import (
	"testing"
	"time"
)

func TestTargetState_Mappings(t *testing.T) {
	cases := []struct {
		target    TargetState
		settled   DoorState
		transit   DoorState
		direction Direction
		position  Position
	}{
		{TargetOpen, StateOpen, StateOpening, DirectionExtend, PositionOpen},
		{TargetClosed, StateClosed, StateClosing, DirectionRetract, PositionClosed},
	}
	for _, tc := range cases {
		if got := tc.target.Settled(); got != tc.settled {
			t.Fatalf("%s settled: got %s", tc.target, got)
		}
		if got := tc.target.Transit(); got != tc.transit {
			t.Fatalf("%s transit: got %s", tc.target, got)
		}
		if got := tc.target.Direction(); got != tc.direction {
			t.Fatalf("%s direction: got %s", tc.target, got)
		}
		if got := tc.target.Position(); got != tc.position {
			t.Fatalf("%s position: got %s", tc.target, got)
		}
		if dest, ok := tc.transit.Destination(); !ok || dest != tc.target {
			t.Fatalf("%s destination: got %s %v", tc.transit, dest, ok)
		}
	}
	if TargetOpen.Opposite() != TargetClosed || TargetClosed.Opposite() != TargetOpen {
		t.Fatalf("opposite mismatch")
	}
}

func TestDoorState_Moving(t *testing.T) {
	for _, s := range []DoorState{StateOpen, StateClosed, StateFaulted} {
		if s.Moving() {
			t.Fatalf("%s should not be moving", s)
		}
	}
	for _, s := range []DoorState{StateOpening, StateClosing} {
		if !s.Moving() {
			t.Fatalf("%s should be moving", s)
		}
	}
	if DoorState("AJAR").Valid() {
		t.Fatalf("unexpected valid state")
	}
}

func TestDoorSnapshot_CloneIsDeep(t *testing.T) {
	now := time.Now()
	s := DoorSnapshot{
		State:  StateOpening,
		Motion: &Motion{Direction: DirectionExtend, Since: now, Deadline: now.Add(time.Minute)},
		Faults: []FaultRecord{{Kind: FaultStallTimeout, Count: 1}},
	}
	c := s.Clone()
	c.Motion.Direction = DirectionStop
	c.Faults[0].Count = 9
	if s.Motion.Direction != DirectionExtend || s.Faults[0].Count != 1 {
		t.Fatalf("clone shares memory with original")
	}
	if got := s.Fault(FaultPowerLoss); got.Kind != FaultPowerLoss || got.Count != 0 {
		t.Fatalf("missing fault record: %+v", got)
	}
}
