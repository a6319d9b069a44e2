package core

import "math"

// REsPerRB is the number of data resource elements assumed per RB and slot
// (12 subcarriers, 12 data symbols).
const REsPerRB = 144

// MaxMCS is the highest index of the 64QAM MCS table.
const MaxMCS = 28

type mcsEntry struct {
	modOrder int
	// codeRate is the target code rate scaled by 1024.
	codeRate int
}

// 64QAM MCS index table for PDSCH/PUSCH.
var mcsTable = [MaxMCS + 1]mcsEntry{
	{2, 120}, {2, 157}, {2, 193}, {2, 251}, {2, 308}, {2, 379}, {2, 449}, {2, 526}, {2, 602}, {2, 679},
	{4, 340}, {4, 378}, {4, 434}, {4, 490}, {4, 553}, {4, 616}, {4, 658},
	{6, 438}, {6, 466}, {6, 517}, {6, 567}, {6, 616}, {6, 666}, {6, 719}, {6, 772}, {6, 822}, {6, 873},
	{6, 910}, {6, 948},
}

// SpectralEfficiency returns bits per resource element for the MCS.
func SpectralEfficiency(mcs uint8) float64 {
	e := mcsTable[min(int(mcs), MaxMCS)]
	return float64(e.modOrder) * float64(e.codeRate) / 1024
}

// TBSBytes returns the transport block size carried by nofRBs at the MCS.
func TBSBytes(mcs uint8, nofRBs int) int {
	if nofRBs <= 0 {
		return 0
	}
	return int(float64(nofRBs*REsPerRB) * SpectralEfficiency(mcs) / 8)
}

// RBsForBytes returns the RBs needed to carry the given payload at the MCS.
func RBsForBytes(mcs uint8, bytes int) int {
	if bytes <= 0 {
		return 0
	}
	bitsPerRB := float64(REsPerRB) * SpectralEfficiency(mcs)
	return int(math.Ceil(float64(bytes*8) / bitsPerRB))
}

// LinkQuality is a coarse classification of a UE's radio conditions.
type LinkQuality string

const (
	LinkQualityDown      LinkQuality = "down"
	LinkQualityPoor      LinkQuality = "poor"
	LinkQualityFair      LinkQuality = "fair"
	LinkQualityGood      LinkQuality = "good"
	LinkQualityExcellent LinkQuality = "excellent"
)

// ClassifySNR buckets an SNR estimate in dB.
func ClassifySNR(snr float64) LinkQuality {
	switch {
	case snr < 0:
		return LinkQualityDown
	case snr < 5:
		return LinkQualityPoor
	case snr < 10:
		return LinkQualityFair
	case snr < 20:
		return LinkQualityGood
	default:
		return LinkQualityExcellent
	}
}

// CQIFromSNR maps an SNR in dB onto the 4-bit CQI scale. CQI 0 means out of
// range. Each CQI step covers roughly 2 dB starting at -6 dB.
func CQIFromSNR(snr float64) uint8 {
	if snr < -6 {
		return 0
	}
	cqi := int((snr+6)/2) + 1
	return uint8(min(cqi, 15))
}

// MCSFromCQI returns the MCS matching a CQI report, or false when the UE is out
// of range.
func MCSFromCQI(cqi uint8) (uint8, bool) {
	if cqi == 0 {
		return 0, false
	}
	cqi = min(cqi, 15)
	return uint8((int(cqi-1)*MaxMCS + 7) / 14), true
}

// MCSFromSNR chains CQIFromSNR and MCSFromCQI.
func MCSFromSNR(snr float64) (uint8, bool) {
	return MCSFromCQI(CQIFromSNR(snr))
}
