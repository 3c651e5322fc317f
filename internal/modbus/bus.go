package modbus

import (
	"context"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"github.com/goburrow/modbus"
	pkgerrors "github.com/pkg/errors"
)

const (
	DefaultBaudRate = 19200
	DefaultDataBits = 8
	DefaultParity   = "E"
	DefaultStopBits = 1
	DefaultTimeout  = time.Second
)

// SerialConfig holds the RTU line settings of one serial port.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string // N, E or O
	StopBits int
	Timeout  time.Duration
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.DataBits == 0 {
		c.DataBits = DefaultDataBits
	}
	if c.Parity == "" {
		c.Parity = DefaultParity
	}
	if c.StopBits == 0 {
		c.StopBits = DefaultStopBits
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Link is a connected serial line able to address any slave on it.
type Link interface {
	RegisterReader
	SetSlave(id byte)
	Close() error
}

// Bus serializes access to one Link. At most one transaction is in flight;
// waiting callers are served in arrival order.
type Bus struct {
	link Link
	sem  chan struct{}
}

// NewBus wraps an already connected link.
func NewBus(link Link) *Bus {
	return &Bus{
		link: link,
		sem:  make(chan struct{}, 1),
	}
}

// OpenRTU connects to the serial port described by cfg.
func OpenRTU(cfg SerialConfig) (*Bus, error) {
	cfg = cfg.withDefaults()

	handler := modbus.NewRTUClientHandler(cfg.Port)
	handler.BaudRate = cfg.BaudRate
	handler.DataBits = cfg.DataBits
	handler.Parity = cfg.Parity
	handler.StopBits = cfg.StopBits
	handler.Timeout = cfg.Timeout

	if err := handler.Connect(); err != nil {
		return nil, errors.New().Wrap(ErrOpenPort, err).WithData(cfg.Port)
	}

	logger.Info().
		Str("port", cfg.Port).
		Int("baud_rate", cfg.BaudRate).
		Str("parity", cfg.Parity).
		Int("stop_bits", cfg.StopBits).
		Msg("Modbus RTU port opened")

	return NewBus(&rtuLink{handler: handler, client: modbus.NewClient(handler)}), nil
}

// Transaction gives fn exclusive use of the bus addressed to slave. It waits
// for the bus until ctx is done.
func (b *Bus) Transaction(ctx context.Context, slave byte, fn func(RegisterReader) error) error {
	select {
	case b.sem <- struct{}{}:
	case <-ctx.Done():
		return errors.New().Wrap(ErrBusBusy, ctx.Err())
	}
	defer func() { <-b.sem }()

	b.link.SetSlave(slave)
	return fn(b.link)
}

func (b *Bus) Close() error {
	b.sem <- struct{}{}
	defer func() { <-b.sem }()

	return b.link.Close()
}

type rtuLink struct {
	handler *modbus.RTUClientHandler
	client  modbus.Client
}

func (l *rtuLink) SetSlave(id byte) {
	l.handler.SlaveId = id
}

func (l *rtuLink) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	data, err := l.client.ReadHoldingRegisters(address, quantity)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read %d holding registers at %d from slave %d", quantity, address, l.handler.SlaveId)
	}
	return data, nil
}

func (l *rtuLink) Close() error {
	return pkgerrors.Wrap(l.handler.Close(), "close serial port")
}
