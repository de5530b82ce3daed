package at

const (
	// Terminal Control
	CR   = "\r"
	LF   = "\n"
	CRLF = "\r\n"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcReady      = "RDY"
	UrcStart      = "START"
	UrcPhonebook  = "PB DONE"
	UrcSMSReady   = "SMS DONE"
	UrcSimStatus  = "+CPIN:"
	UrcSimToolkit = "+STIN:"
	UrcPacket     = "+CGEV:"
	UrcCall       = "RING"
)

// Basic commands
const (
	CmdAt      = "AT"
	CmdEchoOff = "ATE0"
	CmdReset   = "AT+CRESET"
)

// Identity commands and the prefixes of their info lines.
const (
	CmdManufacturer = "AT+CGMI"
	CmdModel        = "AT+CGMM"
	CmdRevision     = "AT+CGMR"
	CmdSerialNumber = "AT+CGSN"
	CmdIMSI         = "AT+CIMI"
	CmdICCID        = "AT+CICCID"

	RespRevision = "+CGMR:"
	RespICCID    = "+ICCID:"
)

// Phone functionality and UART flow control.
const (
	CmdFunQuery  = "AT+CFUN?"
	CmdFunFull   = "AT+CFUN=1"
	CmdFunMin    = "AT+CFUN=0"
	CmdFlowCtrl  = "AT+IFC=%d,%d"
	RespFunction = "+CFUN:"
)

// GPS commands (SIMCom AT+CGPS family).
const (
	CmdGPSStart          = "AT+CGPS=1,%d"
	CmdGPSStop           = "AT+CGPS=0"
	CmdGPSQuery          = "AT+CGPS?"
	CmdGPSInfo           = "AT+CGPSINFO"
	CmdGPSAssistURL      = `AT+CGPSURL="%s"`
	CmdGPSAssistSSL      = "AT+CGPSSSL=%d"
	CmdGPSAutoOff        = "AT+CGPSAUTO=0"
	CmdGPSPositionMode   = "AT+CGPSPMD=%d"
	CmdGPSStandaloneSwap = "AT+CGPSMSB=1"
	CmdGPSAccuracy       = "AT+CGPSHOR=%d"
	CmdGPSAccuracyQuery  = "AT+CGPSHOR?"

	RespGPS         = "+CGPS:"
	RespGPSInfo     = "+CGPSINFO:"
	RespGPSAccuracy = "+CGPSHOR:"
)

// Network commands.
const (
	CmdAttach         = "AT+CGATT=1"
	CmdDetach         = "AT+CGATT=0"
	CmdAttachQuery    = "AT+CGATT?"
	CmdRegEPS         = "AT+CEREG?"
	CmdRegGPRS        = "AT+CGREG?"
	CmdRegCS          = "AT+CREG?"
	CmdOperatorScan   = "AT+COPS=?"
	CmdOperatorQuery  = "AT+COPS?"
	CmdOperatorNames  = "AT+COPN"
	CmdSignalQuality  = "AT+CSQ"
	CmdContextQuery   = "AT+CGACT?"
	RespAttach        = "+CGATT:"
	RespRegEPS        = "+CEREG:"
	RespRegGPRS       = "+CGREG:"
	RespRegCS         = "+CREG:"
	RespOperator      = "+COPS:"
	RespOperatorNames = "+COPN:"
	RespSignal        = "+CSQ:"
	RespContext       = "+CGACT:"
)

type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR
	TypeURC                       // Asynchronous notifications
	TypeData                      // Intermediate command output (+CSQ: ...)
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	default:
		return "data"
	}
}
