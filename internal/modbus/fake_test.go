package modbus_test

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// fakeReader serves holding registers from a word map.
type fakeReader struct {
	mu     sync.Mutex
	words  map[uint16]uint16
	failAt map[uint16]error
	reads  []uint16
	slave  byte
}

func newFakeReader() *fakeReader {
	return &fakeReader{words: map[uint16]uint16{}, failAt: map[uint16]error{}}
}

func (f *fakeReader) setLong(address uint16, v uint32) {
	f.words[address] = uint16(v >> 16)
	f.words[address+1] = uint16(v)
}

func (f *fakeReader) setShort(address uint16, v int16) {
	f.words[address] = uint16(v)
}

func (f *fakeReader) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads = append(f.reads, address)
	if err, ok := f.failAt[address]; ok {
		return nil, err
	}

	out := make([]byte, 0, quantity*2)
	for i := uint16(0); i < quantity; i++ {
		w, ok := f.words[address+i]
		if !ok {
			return nil, fmt.Errorf("modbus: exception '2' (illegal data address) at %d", address+i)
		}
		out = binary.BigEndian.AppendUint16(out, w)
	}
	return out, nil
}

func (f *fakeReader) SetSlave(id byte) { f.slave = id }

func (*fakeReader) Close() error { return nil }
