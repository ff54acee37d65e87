package models

import "time"

// DoorState is the control state of the door. Mutated only by the controller.
type DoorState string

const (
	StateOpen    DoorState = "OPEN"
	StateClosed  DoorState = "CLOSED"
	StateOpening DoorState = "OPENING"
	StateClosing DoorState = "CLOSING"
	StateFaulted DoorState = "FAULTED"
)

// Moving reports whether the state has a motor command in flight.
func (s DoorState) Moving() bool {
	return s == StateOpening || s == StateClosing
}

// Valid reports whether s is one of the five known states.
func (s DoorState) Valid() bool {
	switch s {
	case StateOpen, StateClosed, StateOpening, StateClosing, StateFaulted:
		return true
	}
	return false
}

// Destination returns the target an in-flight state is heading to.
func (s DoorState) Destination() (TargetState, bool) {
	switch s {
	case StateOpening:
		return TargetOpen, true
	case StateClosing:
		return TargetClosed, true
	}
	return "", false
}

// TargetState is what the schedule (or an operator override) wants.
type TargetState string

const (
	TargetOpen   TargetState = "OPEN"
	TargetClosed TargetState = "CLOSED"
)

func (t TargetState) Valid() bool {
	return t == TargetOpen || t == TargetClosed
}

// Settled is the resting DoorState for the target.
func (t TargetState) Settled() DoorState {
	if t == TargetOpen {
		return StateOpen
	}
	return StateClosed
}

// Transit is the moving DoorState that leads to the target.
func (t TargetState) Transit() DoorState {
	if t == TargetOpen {
		return StateOpening
	}
	return StateClosing
}

// Direction is the actuator direction that moves the door toward the target.
func (t TargetState) Direction() Direction {
	if t == TargetOpen {
		return DirectionExtend
	}
	return DirectionRetract
}

// Position is the limit-switch position the target ends at.
func (t TargetState) Position() Position {
	if t == TargetOpen {
		return PositionOpen
	}
	return PositionClosed
}

// Opposite returns the other target.
func (t TargetState) Opposite() TargetState {
	if t == TargetOpen {
		return TargetClosed
	}
	return TargetOpen
}

// Position is the debounced door position.
type Position string

const (
	PositionOpen    Position = "OPEN"
	PositionClosed  Position = "CLOSED"
	PositionUnknown Position = "UNKNOWN"
)

// Settled maps a known position to its resting DoorState.
func (p Position) Settled() (DoorState, bool) {
	switch p {
	case PositionOpen:
		return StateOpen, true
	case PositionClosed:
		return StateClosed, true
	}
	return "", false
}

// SensorReading is one fused, debounced observation. Superseded every tick.
type SensorReading struct {
	LightLevel  float64   `json:"light_level"`
	LightStable bool      `json:"light_stable"`
	Position    Position  `json:"position"`
	Conflict    bool      `json:"conflict,omitempty"` // both limit switches active
	Stale       bool      `json:"stale,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FaultKind classifies a fault.
type FaultKind string

const (
	FaultStallTimeout   FaultKind = "STALL_TIMEOUT"
	FaultSensorMismatch FaultKind = "SENSOR_MISMATCH"
	FaultPowerLoss      FaultKind = "POWER_LOSS"
)

// FaultRecord counts faults of one kind.
type FaultRecord struct {
	Kind         FaultKind `json:"kind"`
	Count        int       `json:"count"`
	LastOccurred time.Time `json:"last_occurred"`
}

// Direction is a raw actuator command.
type Direction string

const (
	DirectionExtend  Direction = "EXTEND"
	DirectionRetract Direction = "RETRACT"
	DirectionStop    Direction = "STOP"
)

// MoveCommand is issued to the actuator driver. At most one is outstanding.
type MoveCommand struct {
	Direction Direction `json:"direction"`
	Deadline  time.Time `json:"deadline,omitempty"`
}

// Motion is the payload carried by OPENING and CLOSING.
type Motion struct {
	Direction Direction `json:"direction"`
	Since     time.Time `json:"since"`
	Deadline  time.Time `json:"deadline"`
}

// DoorSnapshot is the committed controller state written to persistence
// after every transition.
type DoorSnapshot struct {
	State       DoorState     `json:"state"`
	Motion      *Motion       `json:"motion,omitempty"`
	FaultCause  FaultKind     `json:"fault_cause,omitempty"`
	Faults      []FaultRecord `json:"faults,omitempty"`
	Disabled    bool          `json:"disabled"`
	Override    TargetState   `json:"override,omitempty"`
	OverrideDay string        `json:"override_day,omitempty"` // YYYY-MM-DD in schedule timezone
	// FaultsResetAt is when the escalation window was last emptied by a
	// completed move or a manual clear. Faults before it never count again.
	FaultsResetAt time.Time `json:"faults_reset_at,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Fault returns the record for kind, or a zero record.
func (s DoorSnapshot) Fault(kind FaultKind) FaultRecord {
	for _, f := range s.Faults {
		if f.Kind == kind {
			return f
		}
	}
	return FaultRecord{Kind: kind}
}

// Clone returns a deep copy.
func (s DoorSnapshot) Clone() DoorSnapshot {
	out := s
	if s.Motion != nil {
		m := *s.Motion
		out.Motion = &m
	}
	if s.Faults != nil {
		out.Faults = append([]FaultRecord(nil), s.Faults...)
	}
	return out
}

// DoorStatus is the read-only view exposed over HTTP, websocket and MQTT.
type DoorStatus struct {
	State        DoorState     `json:"state,omitempty"`
	Verifying    bool          `json:"verifying,omitempty"`
	Target       TargetState   `json:"target,omitempty"`
	Reading      SensorReading `json:"reading"`
	Motion       *Motion       `json:"motion,omitempty"`
	FaultCause   FaultKind     `json:"fault_cause,omitempty"`
	Faults       []FaultRecord `json:"faults,omitempty"`
	Disabled     bool          `json:"disabled"`
	Override     TargetState   `json:"override,omitempty"`
	PersistError string        `json:"persist_error,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
