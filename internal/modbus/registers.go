package modbus

import "strings"

// RegisterKind selects how many 16-bit holding registers an entry spans.
type RegisterKind string

const (
	// KindLong is a 32-bit value held in two consecutive registers.
	KindLong RegisterKind = "long"
	// KindShort is a 16-bit value held in a single register.
	KindShort RegisterKind = "short"
)

// Normalize lowercases the kind and maps "register" to KindShort.
func (k RegisterKind) Normalize() RegisterKind {
	switch v := RegisterKind(strings.ToLower(strings.TrimSpace(string(k)))); v {
	case "register", "word":
		return KindShort
	default:
		return v
	}
}

// Quantity returns the number of registers read for the kind, or 0 if the
// kind is not recognized.
func (k RegisterKind) Quantity() uint16 {
	switch k.Normalize() {
	case KindLong:
		return 2
	case KindShort:
		return 1
	default:
		return 0
	}
}

// Register is one entry of a register map. A zero Scale is treated as 1.
type Register struct {
	Key         string            `yaml:"key" toml:"key"`
	Kind        RegisterKind      `yaml:"kind" toml:"kind"`
	Address     uint16            `yaml:"address" toml:"address"`
	Scale       float64           `yaml:"scale" toml:"scale"`
	Signed      bool              `yaml:"signed" toml:"signed"`
	Measurement string            `yaml:"measurement" toml:"measurement"`
	Tags        map[string]string `yaml:"tags" toml:"tags"`
}

// GetScale returns the multiplier applied to the raw integer.
func (r Register) GetScale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// RegisterMap is the ordered register table of one meter.
type RegisterMap struct {
	Registers []Register `yaml:"registers" toml:"registers"`
}

// DefaultRegisterMap returns the table of a Finder 4N200 style three-phase
// meter.
func DefaultRegisterMap() RegisterMap {
	phase := func(p string) map[string]string { return map[string]string{"phase": p} }

	return RegisterMap{Registers: []Register{
		{Key: "voltage-L1", Kind: KindLong, Address: 4096, Scale: 0.001, Measurement: "voltage", Tags: phase("L1")},
		{Key: "voltage-L2", Kind: KindLong, Address: 4098, Scale: 0.001, Measurement: "voltage", Tags: phase("L2")},
		{Key: "voltage-L3", Kind: KindLong, Address: 4100, Scale: 0.001, Measurement: "voltage", Tags: phase("L3")},
		{Key: "active_power-L1", Kind: KindLong, Address: 4140, Scale: 0.01, Measurement: "active_power", Tags: phase("L1")},
		{Key: "active_power-L2", Kind: KindLong, Address: 4142, Scale: 0.01, Measurement: "active_power", Tags: phase("L2")},
		{Key: "active_power-L3", Kind: KindLong, Address: 4144, Scale: 0.01, Measurement: "active_power", Tags: phase("L3")},
		{Key: "active_power-L1-sign", Kind: KindShort, Address: 4146, Scale: 1, Signed: true, Measurement: "sign_active_power", Tags: phase("L1")},
		{Key: "active_power-L2-sign", Kind: KindShort, Address: 4147, Scale: 1, Signed: true, Measurement: "sign_active_power", Tags: phase("L2")},
		{Key: "active_power-L3-sign", Kind: KindShort, Address: 4148, Scale: 1, Signed: true, Measurement: "sign_active_power", Tags: phase("L3")},
		{Key: "power_factor-L1", Kind: KindShort, Address: 4164, Scale: 0.01, Signed: true, Measurement: "power_factor", Tags: phase("L1")},
		{Key: "power_factor-L2", Kind: KindShort, Address: 4165, Scale: 0.01, Signed: true, Measurement: "power_factor", Tags: phase("L2")},
		{Key: "power_factor-L3", Kind: KindShort, Address: 4166, Scale: 0.01, Signed: true, Measurement: "power_factor", Tags: phase("L3")},
		{Key: "active_energy-positive", Kind: KindLong, Address: 4688, Scale: 1, Measurement: "active_energy"},
		{Key: "reactive_energy-positive", Kind: KindLong, Address: 4690, Scale: 1, Measurement: "reactive_energy"},
		{Key: "active_energy-negative", Kind: KindLong, Address: 4692, Scale: 1, Measurement: "active_energy"},
		{Key: "reactive_energy-negative", Kind: KindLong, Address: 4694, Scale: 1, Measurement: "reactive_energy"},
	}}
}
