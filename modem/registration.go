package modem

import (
	"fmt"

	"i4.energy/across/simgw/at"
)

// RegistrationType selects the registration domain to query.
type RegistrationType int

const (
	// RegistrationEPS is the LTE packet domain (AT+CEREG).
	RegistrationEPS RegistrationType = iota
	// RegistrationGPRS is the 2G/3G packet domain (AT+CGREG).
	RegistrationGPRS
	// RegistrationCS is the circuit switched domain (AT+CREG).
	RegistrationCS
)

func (t RegistrationType) String() string {
	switch t {
	case RegistrationEPS:
		return "eps"
	case RegistrationGPRS:
		return "gprs"
	case RegistrationCS:
		return "cs"
	default:
		return fmt.Sprintf("RegistrationType(%d)", int(t))
	}
}

// ParseRegistrationType accepts the names returned by RegistrationType.String.
func ParseRegistrationType(s string) (RegistrationType, error) {
	for _, t := range []RegistrationType{RegistrationEPS, RegistrationGPRS, RegistrationCS} {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown registration type %q", s)
}

func (t RegistrationType) query() (cmd, prefix string, err error) {
	switch t {
	case RegistrationEPS:
		return at.CmdRegEPS, at.RespRegEPS, nil
	case RegistrationGPRS:
		return at.CmdRegGPRS, at.RespRegGPRS, nil
	case RegistrationCS:
		return at.CmdRegCS, at.RespRegCS, nil
	default:
		return "", "", fmt.Errorf("%w: registration type %d", ErrUnsupported, int(t))
	}
}

// RegistrationStatus is the <stat> value of a registration report.
type RegistrationStatus int

const (
	StatusNotAvailable RegistrationStatus = iota - 1
	NotRegistered
	RegisteredHome
	Searching
	RegistrationDenied
	StatusUnknown
	RegisteredRoaming
	RegisteredSMSOnlyHome
	RegisteredSMSOnlyRoaming
	AttachedEmergencyOnly
	RegisteredCSFBNotPreferredHome
	RegisteredCSFBNotPreferredRoaming
	AlreadyRegistered
)

var registrationStatusNames = map[RegistrationStatus]string{
	StatusNotAvailable:                "not available",
	NotRegistered:                     "not registered",
	RegisteredHome:                    "registered home",
	Searching:                         "searching",
	RegistrationDenied:                "denied",
	StatusUnknown:                     "unknown",
	RegisteredRoaming:                 "registered roaming",
	RegisteredSMSOnlyHome:             "registered SMS only home",
	RegisteredSMSOnlyRoaming:          "registered SMS only roaming",
	AttachedEmergencyOnly:             "emergency only",
	RegisteredCSFBNotPreferredHome:    "registered CSFB not preferred home",
	RegisteredCSFBNotPreferredRoaming: "registered CSFB not preferred roaming",
	AlreadyRegistered:                 "already registered",
}

func (s RegistrationStatus) String() string {
	if name, ok := registrationStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RegistrationStatus(%d)", int(s))
}

// Registered reports whether the device is registered on a home or roaming
// network, including the SMS only and CSFB variants.
func (s RegistrationStatus) Registered() bool {
	switch s {
	case RegisteredHome, RegisteredRoaming,
		RegisteredSMSOnlyHome, RegisteredSMSOnlyRoaming,
		RegisteredCSFBNotPreferredHome, RegisteredCSFBNotPreferredRoaming,
		AlreadyRegistered:
		return true
	}
	return false
}

// RAT is a radio access technology as reported in <AcT>.
type RAT int

const (
	RATGSM RAT = iota
	RATGSMCompact
	RATUTRAN
	RATEGPRS
	RATHSDPA
	RATHSUPA
	RATHSDPAHSUPA
	RATEUTRAN
	RATCATM1
	RATNB1
	RATUnknown
	RATMax
)

var ratNames = [...]string{
	RATGSM:        "GSM",
	RATGSMCompact: "GSM compact",
	RATUTRAN:      "UTRAN",
	RATEGPRS:      "EGPRS",
	RATHSDPA:      "HSDPA",
	RATHSUPA:      "HSUPA",
	RATHSDPAHSUPA: "HSDPA+HSUPA",
	RATEUTRAN:     "E-UTRAN",
	RATCATM1:      "CAT-M1",
	RATNB1:        "NB-IoT",
	RATUnknown:    "unknown",
	RATMax:        "max",
}

func (r RAT) String() string {
	if r >= 0 && int(r) < len(ratNames) {
		return ratNames[r]
	}
	return fmt.Sprintf("RAT(%d)", int(r))
}

// parseRAT decodes an <AcT> field. An absent field is RATUnknown.
func parseRAT(field string) (RAT, error) {
	if field == "" {
		return RATUnknown, nil
	}
	n, err := at.Int(field)
	if err != nil || n < int(RATGSM) || n > int(RATNB1) {
		return 0, fmt.Errorf("%w: access technology %q", ErrDecode, field)
	}
	return RAT(n), nil
}

// RegistrationParams is a decoded +CREG, +CGREG or +CEREG report.
type RegistrationParams struct {
	Type   RegistrationType   `json:"-"`
	Status RegistrationStatus `json:"-"`
	RAT    RAT                `json:"-"`
	// LAC is the location (or tracking) area code in hex, when reported.
	LAC string `json:"lac,omitempty"`
	// CellID is the cell identity in hex, when reported.
	CellID string `json:"cell_id,omitempty"`
}

// ParseRegistration decodes the payload "<n>,<stat>[,<lac>,<ci>[,<AcT>]]".
func ParseRegistration(t RegistrationType, payload string) (RegistrationParams, error) {
	fields := at.Fields(payload)
	if len(fields) < 2 {
		return RegistrationParams{}, fmt.Errorf("%w: registration %q", ErrDecode, payload)
	}

	stat, err := at.Int(fields[1])
	if err != nil || stat < int(NotRegistered) || stat > int(RegisteredCSFBNotPreferredRoaming) {
		return RegistrationParams{}, fmt.Errorf("%w: registration status %q", ErrDecode, fields[1])
	}

	params := RegistrationParams{
		Type:   t,
		Status: RegistrationStatus(stat),
		RAT:    RATUnknown,
	}
	if len(fields) >= 4 {
		params.LAC = at.Unquote(fields[2])
		params.CellID = at.Unquote(fields[3])
	}
	if len(fields) >= 5 {
		if params.RAT, err = parseRAT(fields[4]); err != nil {
			return RegistrationParams{}, err
		}
	}
	return params, nil
}

// OperatorStatus is the <stat> of an operator in a network scan.
type OperatorStatus int

const (
	OperatorUnknown OperatorStatus = iota
	OperatorAvailable
	OperatorCurrent
	OperatorForbidden
)

func (s OperatorStatus) String() string {
	switch s {
	case OperatorUnknown:
		return "unknown"
	case OperatorAvailable:
		return "available"
	case OperatorCurrent:
		return "current"
	case OperatorForbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("OperatorStatus(%d)", int(s))
	}
}

// Operator is one network found by a PLMN scan.
type Operator struct {
	Long    string         `json:"long"`
	Short   string         `json:"short"`
	Numeric string         `json:"numeric"`
	RAT     RAT            `json:"-"`
	Status  OperatorStatus `json:"-"`
}

// ParseOperators decodes a +COPS=? payload. Operator groups have the form
// (<stat>,"<long>","<short>","<numeric>"[,<AcT>]); the trailing groups
// listing supported modes and formats are skipped. Operators are returned
// in the order the modem reported them; none is an empty slice.
func ParseOperators(payload string) ([]Operator, error) {
	operators := []Operator{}
	for _, field := range at.Fields(payload) {
		inner, ok := at.Ungroup(field)
		if !ok {
			continue
		}
		vals := at.Fields(inner)
		if len(vals) < 4 || !isQuoted(vals[1]) {
			continue
		}

		stat, err := at.Int(vals[0])
		if err != nil || stat < int(OperatorUnknown) || stat > int(OperatorForbidden) {
			return nil, fmt.Errorf("%w: operator status %q", ErrDecode, vals[0])
		}
		op := Operator{
			Status:  OperatorStatus(stat),
			Long:    at.Unquote(vals[1]),
			Short:   at.Unquote(vals[2]),
			Numeric: at.Unquote(vals[3]),
			RAT:     RATUnknown,
		}
		if len(vals) >= 5 {
			if op.RAT, err = parseRAT(vals[4]); err != nil {
				return nil, err
			}
		}
		operators = append(operators, op)
	}
	return operators, nil
}

func isQuoted(s string) bool {
	return len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"'
}

// OperatorName is one entry of the modem's operator name table.
type OperatorName struct {
	Numeric string `json:"numeric"`
	Alpha   string `json:"alpha"`
}

func parseOperatorName(payload string) (OperatorName, error) {
	fields := at.Fields(payload)
	if len(fields) != 2 {
		return OperatorName{}, fmt.Errorf("%w: operator name %q", ErrDecode, payload)
	}
	return OperatorName{
		Numeric: at.Unquote(fields[0]),
		Alpha:   at.Unquote(fields[1]),
	}, nil
}

// RegisteringMode is the <mode> of AT+COPS.
type RegisteringMode int

const (
	ModeAutomatic RegisteringMode = iota
	ModeManual
	ModeDeregister
	ModeSetOnly
	ModeManualAutomatic
)

func (m RegisteringMode) String() string {
	switch m {
	case ModeAutomatic:
		return "automatic"
	case ModeManual:
		return "manual"
	case ModeDeregister:
		return "deregister"
	case ModeSetOnly:
		return "set only"
	case ModeManualAutomatic:
		return "manual/automatic"
	default:
		return fmt.Sprintf("RegisteringMode(%d)", int(m))
	}
}

// SignalQuality is a decoded +CSQ report.
type SignalQuality struct {
	// RSSI is the raw 0..31 level, 99 when not known.
	RSSI int `json:"rssi"`
	// BER is the raw 0..7 bit error rate class, 99 when not known.
	BER int `json:"ber"`
}

// DBm converts RSSI to dBm. ok is false when the level is not known.
func (q SignalQuality) DBm() (dbm int, ok bool) {
	if q.RSSI < 0 || q.RSSI > 31 {
		return 0, false
	}
	return -113 + 2*q.RSSI, true
}
