package normalize

import "strings"

// minBarcodeDigits is the shortest all-digit code accepted as a real barcode.
const minBarcodeDigits = 8

// SynthesizeBarcode builds the chain-scoped barcode used when a chain omits one.
func SynthesizeBarcode(chain, code string) string {
	return chain + ":" + code
}

// StripQuotes removes quote characters and surrounding whitespace.
func StripQuotes(s string) string {
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.ReplaceAll(s, "'", "")
	return strings.TrimSpace(s)
}

// CleanBarcode returns the barcode to use for a chain product. A value that
// is already chain-scoped (contains ":") or has at least 8 digits and nothing
// else is kept; anything else is replaced by a synthesized barcode.
func CleanBarcode(chain, code, barcode string) string {
	barcode = StripQuotes(barcode)
	if strings.Contains(barcode, ":") || isDigits(barcode, minBarcodeDigits) {
		return barcode
	}
	return SynthesizeBarcode(chain, code)
}

func isDigits(s string, minLen int) bool {
	if len(s) < minLen {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
