package at

const (
	// Terminal Control
	CRLF = "\r\n"
	LF   = "\n"
	CR   = "\r"

	// USSD
	DefaultKeyword = "AT+CUSD=1"
	CusdTag        = "+CUSD:"
	// CusdDCS is the trailing parameter of AT+CUSD: the data coding scheme
	// hint that makes most modems answer in UCS2.
	CusdDCS = "15"

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
	UrcNewMsg         = "+CMTI:"
	UrcMessageReport  = "+CDSI:"
	UrcSignalStrength = "+CSQ:"
	UrcCall           = "RING"
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
