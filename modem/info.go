package modem

import (
	"context"
	"fmt"

	"i4.energy/across/simgw/at"
)

// SerialNumberType selects which serial number SerialNumber returns.
type SerialNumberType int

const (
	SerialNumberSN SerialNumberType = iota
	SerialNumberIMEI
	SerialNumberIMEISV
	SerialNumberSVN
)

func (t SerialNumberType) String() string {
	switch t {
	case SerialNumberSN:
		return "sn"
	case SerialNumberIMEI:
		return "imei"
	case SerialNumberIMEISV:
		return "imeisv"
	case SerialNumberSVN:
		return "svn"
	default:
		return fmt.Sprintf("SerialNumberType(%d)", int(t))
	}
}

// Info answers device identity queries. It shares the transaction engine
// of the Modem that created it.
type Info struct {
	engine *Engine
}

// Manufacturer returns the AT+CGMI identification.
func (i *Info) Manufacturer(ctx context.Context) (string, error) {
	return i.query(ctx, "manufacturer", at.CmdManufacturer, "")
}

// Model returns the AT+CGMM identification.
func (i *Info) Model(ctx context.Context) (string, error) {
	return i.query(ctx, "model", at.CmdModel, "")
}

// Revision returns the firmware revision.
func (i *Info) Revision(ctx context.Context) (string, error) {
	return i.query(ctx, "revision", at.CmdRevision, at.RespRevision)
}

// SerialNumber returns the requested serial number. The SIM5320 only
// reports its IMEI, which also serves as SN; IMEISV and SVN fail with
// ErrUnsupported without contacting the modem.
func (i *Info) SerialNumber(ctx context.Context, t SerialNumberType) (string, error) {
	switch t {
	case SerialNumberSN, SerialNumberIMEI:
		return i.query(ctx, "serial number", at.CmdSerialNumber, "")
	default:
		return "", fmt.Errorf("%w: serial number type %s", ErrUnsupported, t)
	}
}

// IMSI returns the subscriber identity of the inserted SIM.
func (i *Info) IMSI(ctx context.Context) (string, error) {
	return i.query(ctx, "IMSI", at.CmdIMSI, "")
}

// ICCID returns the identifier of the inserted SIM card.
func (i *Info) ICCID(ctx context.Context) (string, error) {
	return i.query(ctx, "ICCID", at.CmdICCID, at.RespICCID)
}

func (i *Info) query(ctx context.Context, what, cmd, prefix string) (string, error) {
	value, err := i.engine.Query(ctx, cmd, prefix)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", what, err)
	}
	return value, nil
}
