package modbus

import (
	"encoding/binary"

	"codeberg.org/mutker/energymon/internal/errors"
)

// RegisterReader reads holding registers (function code 0x03). The result
// holds 2*quantity bytes, big-endian per register.
type RegisterReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Decode reads one register map entry and returns the scaled value. Long
// entries are unsigned 32-bit, high word first. Short entries honour signed
// as 16-bit two's complement. Transport failures are returned as ErrRead
// without local retry.
func Decode(r RegisterReader, kind RegisterKind, address uint16, scale float64, signed bool) (float64, error) {
	errFactory := errors.New()

	quantity := kind.Quantity()
	if quantity == 0 {
		return 0, errFactory.WithData(ErrUnknownKind, struct {
			Kind    string
			Address uint16
		}{string(kind), address})
	}

	data, err := r.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return 0, errFactory.Wrap(ErrRead, err)
	}
	if len(data) < int(quantity)*2 {
		return 0, errFactory.WithData(ErrShortResponse, struct {
			Address uint16
			Want    int
			Got     int
		}{address, int(quantity) * 2, len(data)})
	}

	raw, err := parseRaw(data, kind, signed)
	if err != nil {
		return 0, err
	}

	return raw * scale, nil
}

// Read decodes reg through r.
func (reg Register) Read(r RegisterReader) (float64, error) {
	return Decode(r, reg.Kind, reg.Address, reg.GetScale(), reg.Signed)
}

func parseRaw(data []byte, kind RegisterKind, signed bool) (float64, error) {
	switch kind.Normalize() {
	case KindLong:
		return float64(binary.BigEndian.Uint32(data[:4])), nil
	case KindShort:
		v := binary.BigEndian.Uint16(data[:2])
		if signed {
			return float64(int16(v)), nil
		}
		return float64(v), nil
	default:
		return 0, errors.New().WithData(ErrUnknownKind, string(kind))
	}
}
