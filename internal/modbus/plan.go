package modbus

import (
	"fmt"
	"strings"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/telemetry"
)

// Key suffixes that mark registers combined with a partner register.
const (
	SignSuffix     = "-sign"
	PositiveSuffix = "-positive"
	NegativeSuffix = "-negative"
)

// DefaultPassThrough lists the measurements emitted one point per register.
var DefaultPassThrough = []string{"voltage", "power_factor"}

// DerivationKind is the rule that turns register readings into a point.
type DerivationKind int

const (
	PassThrough DerivationKind = iota
	SignedPower
	NetEnergy
)

func (k DerivationKind) String() string {
	switch k {
	case PassThrough:
		return "pass_through"
	case SignedPower:
		return "signed_power"
	case NetEnergy:
		return "net_energy"
	default:
		return fmt.Sprintf("derivation(%d)", int(k))
	}
}

// Derivation produces one point from one or two registers. Primary supplies
// the measurement and tags; Secondary is the sign or negative counter.
type Derivation struct {
	Kind      DerivationKind
	Primary   Register
	Secondary Register
}

// Inputs returns the register keys the derivation reads.
func (d Derivation) Inputs() []string {
	if d.Kind == PassThrough {
		return []string{d.Primary.Key}
	}
	return []string{d.Primary.Key, d.Secondary.Key}
}

// Reading is the outcome of decoding one register in a cycle.
type Reading struct {
	Value float64
	Err   error
}

// Plan is a validated register map split into derivations.
type Plan struct {
	derivations []Derivation
	registers   []Register
	warnings    []string
}

// BuildPlan validates m and classifies its entries. Structural problems
// (empty or duplicate keys, unknown kinds, missing measurement) are returned
// as ErrInvalidRegisterMap. Entries that fit no derivation are reported via
// Warnings and skipped.
func BuildPlan(m RegisterMap, passThrough []string) (*Plan, error) {
	errFactory := errors.New()

	registers := append([]Register(nil), m.Registers...)
	byKey := make(map[string]Register, len(registers))
	for i, reg := range registers {
		reg.Kind = reg.Kind.Normalize()
		registers[i] = reg

		reason := ""
		switch {
		case strings.TrimSpace(reg.Key) == "":
			reason = "empty key"
		case reg.Kind.Quantity() == 0:
			reason = fmt.Sprintf("unknown kind %q", reg.Kind)
		case strings.TrimSpace(reg.Measurement) == "":
			reason = "empty measurement"
		}
		if _, dup := byKey[reg.Key]; dup && reason == "" {
			reason = "duplicate key"
		}
		if reason != "" {
			return nil, errFactory.WithData(ErrInvalidRegisterMap, struct {
				Index  int
				Key    string
				Reason string
			}{i, reg.Key, reason})
		}
		byKey[reg.Key] = reg
	}

	passSet := make(map[string]bool, len(passThrough))
	for _, name := range passThrough {
		passSet[name] = true
	}

	p := &Plan{}
	needed := make(map[string]bool)
	add := func(d Derivation) {
		p.derivations = append(p.derivations, d)
		for _, key := range d.Inputs() {
			needed[key] = true
		}
	}

	for _, reg := range registers {
		key := reg.Key
		switch {
		case strings.HasSuffix(key, SignSuffix):
			if _, ok := byKey[strings.TrimSuffix(key, SignSuffix)]; !ok {
				p.warn("sign register %s has no magnitude register", key)
			}
		case strings.HasSuffix(key, NegativeSuffix):
			if _, ok := byKey[strings.TrimSuffix(key, NegativeSuffix)+PositiveSuffix]; !ok {
				p.warn("negative counter %s has no positive counter", key)
			}
		case strings.HasSuffix(key, PositiveSuffix):
			neg, ok := byKey[strings.TrimSuffix(key, PositiveSuffix)+NegativeSuffix]
			if !ok {
				p.warn("measurement %s not supported: no negative counter", key)
				continue
			}
			add(Derivation{Kind: NetEnergy, Primary: reg, Secondary: neg})
		default:
			if sign, ok := byKey[key+SignSuffix]; ok {
				add(Derivation{Kind: SignedPower, Primary: reg, Secondary: sign})
				continue
			}
			if passSet[reg.Measurement] {
				add(Derivation{Kind: PassThrough, Primary: reg})
				continue
			}
			p.warn("measurement %s not supported", key)
		}
	}

	for _, reg := range registers {
		if needed[reg.Key] {
			p.registers = append(p.registers, reg)
		}
	}

	return p, nil
}

func (p *Plan) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// Warnings lists the entries skipped during classification.
func (p *Plan) Warnings() []string { return p.warnings }

// Derivations returns the derivations in register map order.
func (p *Plan) Derivations() []Derivation { return p.derivations }

// Registers returns every register the plan reads each cycle, in register
// map order and without duplicates.
func (p *Plan) Registers() []Register { return p.registers }

// SignedValue combines a magnitude with its sign register (0 positive,
// 1 negative).
func SignedValue(magnitude, sign float64) (float64, error) {
	if sign != 0 && sign != 1 {
		return 0, errors.New().WithData(ErrSignOutOfRange, sign)
	}
	return magnitude * (1 - 2*sign), nil
}

// NetValue subtracts the negative counter from the positive one.
func NetValue(positive, negative float64) float64 {
	return positive - negative
}

// DerivationError reports why a derivation produced no point this cycle.
type DerivationError struct {
	Derivation Derivation
	Key        string
	Err        error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("%s %s: register %s: %v", e.Derivation.Kind, e.Derivation.Primary.Key, e.Key, e.Err)
}

func (e *DerivationError) Unwrap() error { return e.Err }

// Evaluate turns one cycle of readings into points. A derivation whose
// inputs did not all decode is dropped and reported; it never yields a
// partial value. extra tags are applied over each register's own tags.
func (p *Plan) Evaluate(readings map[string]Reading, extra telemetry.Tags, ts time.Time) ([]telemetry.Point, []error) {
	points := make([]telemetry.Point, 0, len(p.derivations))
	var problems []error

	for _, d := range p.derivations {
		values := make([]float64, 0, 2)
		var failed *DerivationError
		for _, key := range d.Inputs() {
			r, ok := readings[key]
			switch {
			case !ok:
				failed = &DerivationError{Derivation: d, Key: key, Err: errors.New().New(ErrMissingReading)}
			case r.Err != nil:
				failed = &DerivationError{Derivation: d, Key: key, Err: r.Err}
			}
			if failed != nil {
				break
			}
			values = append(values, r.Value)
		}
		if failed != nil {
			problems = append(problems, failed)
			continue
		}

		var value float64
		switch d.Kind {
		case PassThrough:
			value = values[0]
		case SignedPower:
			v, err := SignedValue(values[0], values[1])
			if err != nil {
				problems = append(problems, &DerivationError{Derivation: d, Key: d.Secondary.Key, Err: err})
				continue
			}
			value = v
		case NetEnergy:
			value = NetValue(values[0], values[1])
		}

		point, err := telemetry.NewValuePoint(d.Primary.Measurement, telemetry.MergeTags(d.Primary.Tags, extra), value, ts)
		if err != nil {
			problems = append(problems, &DerivationError{Derivation: d, Key: d.Primary.Key, Err: err})
			continue
		}
		points = append(points, point)
	}

	return points, problems
}
