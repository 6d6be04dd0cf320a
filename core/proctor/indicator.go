package proctor

type Color string

const (
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorGray   Color = "gray"
)

// Indicator drives the preview border.
type Indicator struct {
	Color Color `json:"color"`
	Pulse bool  `json:"pulse"`
}

// IndicatorFor derives the border from the current alert, or from the connection state when there is none.
func IndicatorFor(current *SuspiciousAlert, connected bool) Indicator {
	if current != nil {
		switch current.Severity {
		case SeverityHigh:
			return Indicator{Color: ColorRed, Pulse: true}
		case SeverityMedium:
			return Indicator{Color: ColorYellow}
		case SeverityLow:
			return Indicator{Color: ColorBlue}
		}
	}
	if connected {
		return Indicator{Color: ColorGreen}
	}
	return Indicator{Color: ColorGray}
}

// Cue tones in Hz, one per severity.
const (
	ToneHigh   = 880.0
	ToneMedium = 660.0
	ToneLow    = 440.0
)

func CueFrequency(sev Severity) float64 {
	switch sev {
	case SeverityHigh:
		return ToneHigh
	case SeverityMedium:
		return ToneMedium
	default:
		return ToneLow
	}
}
