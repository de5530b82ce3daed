package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing AT command modem responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// A token ends at the first CR or LF. The SIM5320 terminates lines with CRLF
// by default but may be configured to send bare CR, so each terminator byte
// ends a token on its own and a CRLF pair yields an extra empty token. Callers
// are expected to skip empty tokens.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, CRLF); i >= 0 {
		return i + 1, data[0:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Classify identifies the nature of the modem output
func Classify(line string) ResponseType {
	// Direct matches for final results
	switch line {
	case OK, ERROR, NoCarrier, NoDialtone, Busy, NoAnswer:
		return TypeFinal
	case UrcReady, UrcStart, UrcPhonebook, UrcSMSReady, UrcCall:
		return TypeURC
	}

	// Prefix matches
	switch {
	case IsError(line):
		return TypeFinal
	case strings.HasPrefix(line, UrcSimStatus), strings.HasPrefix(line, UrcPacket),
		strings.HasPrefix(line, UrcSimToolkit):
		return TypeURC
	default:
		return TypeData
	}
}

// IsError reports whether line is a final result code signalling failure.
func IsError(line string) bool {
	return line == ERROR ||
		strings.HasPrefix(line, CmeError) ||
		strings.HasPrefix(line, CmsError)
}
