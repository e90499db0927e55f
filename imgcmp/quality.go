package imgcmp

import "fmt"

// Grade is a coarse verdict on a score.
type Grade int

const (
	Poor Grade = iota
	Fair
	Good
	Excellent
)

func (g Grade) String() string {
	switch g {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Fair:
		return "fair"
	}
	return "poor"
}

// AssessPSNR grades an average PSNR in dB.
func AssessPSNR(psnr float64) (Grade, string) {
	var g Grade
	var verdict string
	switch {
	case psnr >= 40:
		g, verdict = Excellent, "Excellent - virtually indistinguishable"
	case psnr >= 30:
		g, verdict = Good, "Good - minor differences, acceptable quality"
	case psnr >= 20:
		g, verdict = Fair, "Fair - noticeable differences"
	default:
		g, verdict = Poor, "Poor - significant visual degradation"
	}
	return g, fmt.Sprintf("PSNR %.1f dB: %s", psnr, verdict)
}

// AssessSSIM grades an average SSIM.
func AssessSSIM(ssim float64) (Grade, string) {
	var g Grade
	var verdict string
	switch {
	case ssim >= 0.99:
		g, verdict = Excellent, "Excellent structural similarity"
	case ssim >= 0.95:
		g, verdict = Good, "Good structural similarity"
	case ssim >= 0.90:
		g, verdict = Fair, "Acceptable structural similarity"
	default:
		g, verdict = Poor, "Poor structural similarity"
	}
	return g, fmt.Sprintf("SSIM %.4f: %s", ssim, verdict)
}
