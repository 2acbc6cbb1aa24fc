package domain

import "fmt"

// Tone classifies an interpreted result for display.
type Tone string

const (
	ToneGood    Tone = "good"
	ToneCaution Tone = "caution"
	ToneAlert   Tone = "alert"
	ToneUnknown Tone = "unknown"
)

// Interpretation is the status line shown for one biomarker.
type Interpretation struct {
	Biomarker Biomarker
	Value     string
	Tone      Tone
	Tag       string
}

// PHStatus interprets a pH value. The healthy range is 3.8 to 4.4.
func PHStatus(ph *float64) (Tone, string) {
	if ph == nil {
		return ToneUnknown, "Unknown"
	}
	switch {
	case *ph >= 3.8 && *ph <= 4.4:
		return ToneGood, "Healthy"
	case *ph >= 4.6:
		return ToneAlert, "High"
	default:
		return ToneUnknown, "Outside Range"
	}
}

// ReadingStatus interprets a qualitative reading. NAG positives take the pH
// into account: high pH points to trichomoniasis, low pH to yeast.
func ReadingStatus(b Biomarker, r *Reading, ph *float64) (Tone, string) {
	if r == nil {
		return ToneUnknown, "Unknown"
	}
	v := *r
	switch b {
	case BiomarkerH2O2:
		switch v {
		case ReadingNegative:
			return ToneGood, "Good protective flora"
		case ReadingTrace:
			return ToneCaution, "Borderline protection"
		case ReadingPositive:
			return ToneAlert, "Low protective flora"
		}
	case BiomarkerLE:
		switch v {
		case ReadingNegative, ReadingTrace:
			return ToneGood, "Low inflammation"
		case ReadingPositive, ReadingPositive2, ReadingPositive3:
			return ToneAlert, "Inflammation present"
		}
	case BiomarkerSNA, BiomarkerBetaG:
		switch v {
		case ReadingNegative:
			return ToneGood, "Negative"
		case ReadingTrace:
			return ToneCaution, "Borderline"
		case ReadingPositive:
			return ToneAlert, "Positive"
		}
	case BiomarkerNAG:
		switch v {
		case ReadingNegative:
			return ToneGood, "Negative"
		case ReadingTrace:
			return ToneCaution, "Borderline"
		case ReadingPositive:
			if ph != nil && *ph >= 4.8 {
				return ToneAlert, "Positive (Trich more likely with high pH)"
			}
			if ph != nil && *ph <= 4.6 {
				return ToneAlert, "Positive (Yeast more likely with low pH)"
			}
			return ToneAlert, "Positive"
		}
	}
	return ToneUnknown, "Unknown"
}

// Interpret returns one Interpretation per biomarker, in display order.
func Interpret(l *TestLog) []Interpretation {
	out := make([]Interpretation, 0, len(Biomarkers))
	if l == nil {
		return out
	}

	tone, tag := PHStatus(l.PH)
	phValue := "—"
	if l.PH != nil {
		phValue = fmt.Sprintf("%.1f", *l.PH)
	}
	out = append(out, Interpretation{Biomarker: BiomarkerPH, Value: phValue, Tone: tone, Tag: tag})

	for _, b := range QualitativeBiomarkers {
		r := l.Reading(b)
		value := "—"
		if r != nil {
			value = string(*r)
		}
		tone, tag := ReadingStatus(b, r, l.PH)
		out = append(out, Interpretation{Biomarker: b, Value: value, Tone: tone, Tag: tag})
	}
	return out
}

// IsolatedInflammation reports a positive LE while every other qualitative
// marker is negative or borderline.
func IsolatedInflammation(l *TestLog) bool {
	if l == nil || l.LE == nil {
		return false
	}
	switch *l.LE {
	case ReadingPositive, ReadingPositive2, ReadingPositive3:
	default:
		return false
	}
	for _, b := range []Biomarker{BiomarkerH2O2, BiomarkerSNA, BiomarkerBetaG, BiomarkerNAG} {
		r := l.Reading(b)
		if r == nil {
			continue
		}
		if *r != ReadingNegative && *r != ReadingTrace {
			return false
		}
	}
	return true
}
