package modbus_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusTransactionSetsSlave(t *testing.T) {
	link := newFakeReader()
	link.setShort(10, 42)
	bus := modbus.NewBus(link)

	var got float64
	err := bus.Transaction(context.Background(), 5, func(r modbus.RegisterReader) error {
		var err error
		got, err = modbus.Decode(r, modbus.KindShort, 10, 1, false)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 42.0, got)
	assert.Equal(t, byte(5), link.slave)
}

func TestBusSerializesTransactions(t *testing.T) {
	bus := modbus.NewBus(newFakeReader())

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(slave byte) {
			defer wg.Done()
			_ = bus.Transaction(context.Background(), slave, func(modbus.RegisterReader) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					m := atomic.LoadInt32(&maxInFlight)
					if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
		}(byte(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight)
}

func TestBusTransactionHonoursContext(t *testing.T) {
	bus := modbus.NewBus(newFakeReader())

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = bus.Transaction(context.Background(), 1, func(modbus.RegisterReader) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := bus.Transaction(ctx, 2, func(modbus.RegisterReader) error { return nil })
	close(release)

	require.Error(t, err)
	assert.True(t, errors.HasCode(err, modbus.ErrBusBusy))
}
