// Package tlsh implements a TLSH-style locality-sensitive fingerprint for page
// content. Similar inputs produce fingerprints with a small Distance, which is
// what clone detection relies on. It is a similarity digest, not a secure hash.
package tlsh

const (
	windowSize   = 5
	buckets      = 256
	effBuckets   = 128
	codeSize     = 32 // 128 buckets * 2 bits
	rangeLValue  = 256
	rangeQRatio  = 16
	minInputSize = 256

	// EncodedLen is the length of an encoded fingerprint: 2 hex chars for each of
	// checksum, length code, ratios and the 32 body bytes.
	EncodedLen = 2 * (1 + 1 + 1 + codeSize)
)

// Fingerprint is the binary form of a fuzzy hash. The zero value is the invalid
// sentinel and is never produced by a successful Finalize.
type Fingerprint struct {
	Checksum   byte
	LengthCode byte
	// Ratios packs the q1/q3 ratio in the low nibble and q2/q3 in the high nibble.
	Ratios byte
	Body   [codeSize]byte
}

// Valid reports whether f is usable for storage and comparison.
func (f Fingerprint) Valid() bool {
	return f != Fingerprint{}
}

// Q1Ratio returns the low nibble of Ratios.
func (f Fingerprint) Q1Ratio() byte { return f.Ratios & 0x0f }

// Q2Ratio returns the high nibble of Ratios.
func (f Fingerprint) Q2Ratio() byte { return (f.Ratios & 0xf0) >> 4 }

// Distance returns the dissimilarity between f and other, including the length
// term. It is symmetric and zero for identical fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return f.distance(other, true)
}

// DistanceIgnoringLength is Distance without the length term, for callers that
// only care about content similarity.
func (f Fingerprint) DistanceIgnoringLength(other Fingerprint) int {
	return f.distance(other, false)
}

func (f Fingerprint) distance(other Fingerprint, lenDiff bool) int {
	diff := 0

	if lenDiff {
		switch ldiff := modDiff(int(f.LengthCode), int(other.LengthCode), rangeLValue); ldiff {
		case 0:
		case 1:
			diff = 1
		default:
			diff += ldiff * 12
		}
	}

	diff += ratioDiff(modDiff(int(f.Q1Ratio()), int(other.Q1Ratio()), rangeQRatio))
	diff += ratioDiff(modDiff(int(f.Q2Ratio()), int(other.Q2Ratio()), rangeQRatio))

	if f.Checksum != other.Checksum {
		diff++
	}

	for i := range f.Body {
		diff += int(bitPairsDiff[f.Body[i]][other.Body[i]])
	}
	return diff
}

func ratioDiff(d int) int {
	if d <= 1 {
		return d
	}
	return (d - 1) * 12
}

// modDiff is the distance between x and y on a ring of size r.
func modDiff(x, y, r int) int {
	var dl, dr int
	if y > x {
		dl = y - x
		dr = x + r - y
	} else {
		dl = x - y
		dr = y + r - x
	}
	if dl > dr {
		return dr
	}
	return dl
}
