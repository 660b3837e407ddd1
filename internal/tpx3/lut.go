package tpx3

// Calibration lookup tables for the Timepix3 readout.
//
// Raw packet codes are not physical quantities: the integrated
// time-over-threshold (iToT) code and the event/ToT code both need a
// per-chip linearisation before they can be compared across pixels. The
// tables below are regenerated from the detector test-pulse calibration
// fit at package init so the lookup itself stays a plain array index.
//
// A raw code of 0, or a code at or beyond the table bound, has no
// calibrated value; the decoder stores the per-table sentinel instead.
// The sentinels sit above any value the fit can produce so downstream
// consumers can recognise them.

const (
	// MaxLUTITOT bounds the raw iToT code (14-bit field in the pixel packet).
	MaxLUTITOT = 16384
	// MaxLUTTOT bounds the raw event/ToT code (10-bit field in the pixel packet).
	MaxLUTTOT = 1024

	// WrongLUTITOT is stored when the raw iToT code is 0 or >= MaxLUTITOT.
	WrongLUTITOT uint16 = 0xFFFF
	// WrongLUTTOT is stored when the raw event code is 0 or >= MaxLUTTOT.
	WrongLUTTOT uint16 = 0xFFFE
)

// Calibration fit coefficients (surrogate energy in keV-scaled counts):
// value(code) = a*code + b - c/(code - t), the usual ToT energy surrogate
// with the inverse term handling the non-linear region near threshold.
const (
	itotFitA = 3.75
	itotFitB = 12.2
	itotFitC = 410.0
	itotFitT = -0.85

	totFitA = 58.1
	totFitB = 6.8
	totFitC = 236.0
	totFitT = -0.91
)

var (
	lutITOT [MaxLUTITOT]uint16
	lutTOT  [MaxLUTTOT]uint16
)

func init() {
	for i := 1; i < MaxLUTITOT; i++ {
		lutITOT[i] = fitValue(i, itotFitA, itotFitB, itotFitC, itotFitT)
	}
	for i := 1; i < MaxLUTTOT; i++ {
		lutTOT[i] = fitValue(i, totFitA, totFitB, totFitC, totFitT)
	}
}

// fitValue evaluates the calibration fit at a raw code, clamped to
// [1, 0xFF00] so a real hit never calibrates to the empty-cell value 0
// and never collides with the sentinels.
func fitValue(code int, a, b, c, t float64) uint16 {
	v := a*float64(code) + b - c/(float64(code)-t)
	if v < 1 {
		return 1
	}
	if v > 0xFF00 {
		return 0xFF00
	}
	return uint16(v + 0.5)
}

// calibrateITOT maps a raw iToT code to its calibrated value.
func calibrateITOT(code uint16) uint16 {
	if code >= 1 && code < MaxLUTITOT {
		return lutITOT[code]
	}
	return WrongLUTITOT
}

// calibrateTOT maps a raw event/ToT code to its calibrated value.
func calibrateTOT(code uint16) uint16 {
	if code >= 1 && code < MaxLUTTOT {
		return lutTOT[code]
	}
	return WrongLUTTOT
}
