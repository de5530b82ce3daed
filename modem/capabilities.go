package modem

import "context"

// Lifecycle is the device bring-up surface of a modem.
type Lifecycle interface {
	Reset(ctx context.Context) error
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsActive(ctx context.Context) (bool, error)
	IMEI(ctx context.Context) (string, error)
}

// GPSControl is the positioning surface of a modem.
type GPSControl interface {
	Start(ctx context.Context, mode GPSMode) error
	Stop(ctx context.Context) error
	IsActive(ctx context.Context) (bool, error)
	Mode(ctx context.Context) (GPSMode, error)
	Coord(ctx context.Context) (Coord, bool, error)
	SetDesiredAccuracy(ctx context.Context, meters int) error
}

// NetworkAttach is the packet domain and registration surface of a modem.
type NetworkAttach interface {
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	AttachStatus(ctx context.Context) (AttachStatus, error)
	RegistrationParams(ctx context.Context, t RegistrationType) (RegistrationParams, error)
	ScanPLMN(ctx context.Context) ([]Operator, error)
	OperatorNames(ctx context.Context) ([]OperatorName, error)
}

// IdentityQuery is the identification surface of a modem.
type IdentityQuery interface {
	Manufacturer(ctx context.Context) (string, error)
	Model(ctx context.Context) (string, error)
	Revision(ctx context.Context) (string, error)
	SerialNumber(ctx context.Context, t SerialNumberType) (string, error)
	IMSI(ctx context.Context) (string, error)
	ICCID(ctx context.Context) (string, error)
}

var (
	_ Lifecycle     = (*Modem)(nil)
	_ GPSControl    = (*GPS)(nil)
	_ NetworkAttach = (*Network)(nil)
	_ IdentityQuery = (*Info)(nil)
)
