package tlsh

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedFingerprint is returned when decoding text that is not exactly
// EncodedLen hexadecimal characters.
var ErrMalformedFingerprint = errors.New("malformed fingerprint")

// Encode renders f in the canonical 70 character uppercase hex form. Each header
// byte is nibble-swapped and the body is written in reverse order.
func Encode(f Fingerprint) string {
	var raw [EncodedLen / 2]byte
	raw[0] = swapNibbles(f.Checksum)
	raw[1] = swapNibbles(f.LengthCode)
	raw[2] = swapNibbles(f.Ratios)
	for i := 0; i < codeSize; i++ {
		raw[3+i] = f.Body[codeSize-1-i]
	}
	return strings.ToUpper(hex.EncodeToString(raw[:]))
}

// Decode parses the canonical hex form. Lowercase hex is accepted.
func Decode(s string) (Fingerprint, error) {
	var f Fingerprint
	if len(s) != EncodedLen {
		return f, fmt.Errorf("%w: length %d, want %d", ErrMalformedFingerprint, len(s), EncodedLen)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrMalformedFingerprint, err)
	}

	f.Checksum = swapNibbles(raw[0])
	f.LengthCode = swapNibbles(raw[1])
	f.Ratios = swapNibbles(raw[2])
	for i := 0; i < codeSize; i++ {
		f.Body[i] = raw[3+codeSize-1-i]
	}
	return f, nil
}

// String returns the encoded form.
func (f Fingerprint) String() string {
	return Encode(f)
}

// MarshalText implements encoding.TextMarshaler.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(Encode(f)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. f is left unchanged on error.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

func swapNibbles(b byte) byte {
	return b>>4 | b<<4
}
