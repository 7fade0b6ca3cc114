package tlsh

import (
	"errors"
	"math"
	"unicode/utf16"
)

var (
	// ErrInvalidFingerprint means the input did not produce a usable fingerprint
	// (degenerate histogram, zero third quartile, or, in strict mode, too little
	// input). Such a value must not be stored or compared.
	ErrInvalidFingerprint = errors.New("invalid fingerprint")
	// ErrNotFinalized is returned by Hash before Finalize succeeded.
	ErrNotFinalized = errors.New("fingerprint not finalized")
	// ErrAlreadyFinalized is returned when feeding or finalizing a hasher twice
	// without Reset.
	ErrAlreadyFinalized = errors.New("fingerprint already finalized")
)

// wideChar replaces text code units that do not fit in a byte.
const wideChar = 254

// Option configures a Hasher.
type Option func(*Hasher)

// WithStrict makes Finalize reject short or low-variation input instead of
// flagging it as low confidence.
func WithStrict(strict bool) Option {
	return func(h *Hasher) {
		h.strict = strict
	}
}

// Hasher computes a Fingerprint over a stream of bytes. It is not safe for
// concurrent use.
type Hasher struct {
	strict bool

	checksum byte
	window   [windowSize]byte
	bucket   [buckets]uint32
	dataLen  int

	result    Fingerprint
	finalized bool
	lowConf   bool
}

// New returns an empty Hasher.
func New(opts ...Option) *Hasher {
	h := &Hasher{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Reset clears all state so the Hasher can be reused. Options are kept.
func (h *Hasher) Reset() {
	*h = Hasher{strict: h.strict}
}

// Write feeds raw bytes. It implements io.Writer.
func (h *Hasher) Write(p []byte) (int, error) {
	if h.finalized {
		return 0, ErrAlreadyFinalized
	}
	for _, b := range p {
		h.feed(b)
	}
	return len(p), nil
}

// WriteString feeds text one UTF-16 code unit at a time. Code units above 255
// are replaced by a fixed byte, so runes outside the BMP count twice. Any string
// can be hashed this way.
func (h *Hasher) WriteString(s string) (int, error) {
	if h.finalized {
		return 0, ErrAlreadyFinalized
	}
	for _, r := range s {
		if r <= 0xff {
			h.feed(byte(r))
			continue
		}
		for n := utf16.RuneLen(r); n > 0; n-- {
			h.feed(wideChar)
		}
	}
	return len(s), nil
}

func (h *Hasher) feed(b byte) {
	j := h.dataLen % windowSize
	h.window[j] = b

	if h.dataLen >= windowSize-1 {
		w := &h.window
		j1 := (j + windowSize - 1) % windowSize
		j2 := (j + windowSize - 2) % windowSize
		j3 := (j + windowSize - 3) % windowSize
		j4 := (j + windowSize - 4) % windowSize

		h.checksum = mapping(0, w[j], w[j1], h.checksum)

		h.bucket[mapping(2, w[j], w[j1], w[j2])]++
		h.bucket[mapping(3, w[j], w[j1], w[j3])]++
		h.bucket[mapping(5, w[j], w[j2], w[j3])]++
		h.bucket[mapping(7, w[j], w[j2], w[j4])]++
		h.bucket[mapping(11, w[j], w[j1], w[j4])]++
		h.bucket[mapping(13, w[j], w[j3], w[j4])]++
	}
	h.dataLen++
}

// Len returns the number of bytes fed so far.
func (h *Hasher) Len() int {
	return h.dataLen
}

// Finalize computes the fingerprint. It fails with ErrInvalidFingerprint when
// the histogram cannot support quartile ratios.
func (h *Hasher) Finalize() (Fingerprint, error) {
	if h.finalized {
		return Fingerprint{}, ErrAlreadyFinalized
	}

	q1, q2, q3 := quartiles(&h.bucket)
	if q3 == 0 {
		return Fingerprint{}, ErrInvalidFingerprint
	}

	nonzero := 0
	for i := 0; i < effBuckets; i++ {
		if h.bucket[i] > 0 {
			nonzero++
		}
	}
	lowConf := h.dataLen < minInputSize || nonzero <= effBuckets/2
	if lowConf && h.strict {
		return Fingerprint{}, ErrInvalidFingerprint
	}

	var f Fingerprint
	for i := 0; i < codeSize; i++ {
		var code byte
		for j := 0; j < 4; j++ {
			k := h.bucket[4*i+j]
			switch {
			case q3 < k:
				code += 3 << (j * 2)
			case q2 < k:
				code += 2 << (j * 2)
			case q1 < k:
				code += 1 << (j * 2)
			}
		}
		f.Body[i] = code
	}

	f.Checksum = h.checksum
	f.LengthCode = lengthCode(h.dataLen)
	qlo := byte(uint64(q1) * 100 / uint64(q3) % 16)
	qhi := byte(uint64(q2) * 100 / uint64(q3) % 16)
	f.Ratios = qhi<<4 | qlo

	if !f.Valid() {
		return Fingerprint{}, ErrInvalidFingerprint
	}

	h.result = f
	h.finalized = true
	h.lowConf = lowConf
	return f, nil
}

// LowConfidence reports whether the finalized fingerprint came from fewer than
// 256 bytes or from a histogram with at most half of its buckets filled.
func (h *Hasher) LowConfidence() bool {
	return h.lowConf
}

// Fingerprint returns the finalized value.
func (h *Hasher) Fingerprint() (Fingerprint, error) {
	if !h.finalized {
		return Fingerprint{}, ErrNotFinalized
	}
	return h.result, nil
}

// Hash returns the encoded fingerprint.
func (h *Hasher) Hash() (string, error) {
	if !h.finalized {
		return "", ErrNotFinalized
	}
	return Encode(h.result), nil
}

// HashString fingerprints text with a fresh Hasher.
func HashString(s string, opts ...Option) (Fingerprint, error) {
	h := New(opts...)
	_, _ = h.WriteString(s)
	return h.Finalize()
}

// HashBytes fingerprints raw bytes with a fresh Hasher.
func HashBytes(b []byte, opts ...Option) (Fingerprint, error) {
	h := New(opts...)
	_, _ = h.Write(b)
	return h.Finalize()
}

const (
	log1_5 = 0.4054651
	log1_3 = 0.26236426
	log1_1 = 0.09531018
)

// lengthCode buckets the input length on three logarithmic scales.
func lengthCode(n int) byte {
	if n <= 1 {
		return 0
	}
	l := math.Log(float64(n))
	var i float64
	switch {
	case n <= 656:
		i = math.Floor(l / log1_5)
	case n <= 3199:
		i = math.Floor(l/log1_3 - 8.72777)
	default:
		i = math.Floor(l/log1_1 - 62.5472)
	}
	return byte(int(i) & 0xff)
}
