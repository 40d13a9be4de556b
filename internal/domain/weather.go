package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// AdverseVisibilityMeters is the visibility below which conditions count as adverse.
const AdverseVisibilityMeters = 1500

var (
	// METAR present-weather group: intensity, descriptor, phenomena.
	metarWeatherGroup = regexp.MustCompile(`^(\+|-|VC)?(MI|BC|PR|DR|BL|SH|FZ|TS)?(DZ|RA|SN|SG|IC|PL|GR|GS|UP|BR|FG|FU|VA|DU|SA|HZ|PY|PO|SQ|FC|SS|DS)*$`)
	adverseCodes      = []string{"HZ", "TS", "FG", "SN", "GR"}
	adverseWords      = map[string]string{"FOG": "FG", "HAZE": "HZ", "THUNDERSTORM": "TS", "SNOW": "SN", "HAIL": "GR"}
)

// FlightWeather is the recorded weather at the origin station for a flight.
type FlightWeather struct {
	FlightNumber     string
	Date             string
	Station          string
	Metar            string
	Condition        string
	VisibilityMeters *int
	Wind             string
}

// AdverseReason explains why the weather is adverse, or returns "" when it is not.
func (w FlightWeather) AdverseReason() string {
	for _, token := range strings.Fields(strings.ToUpper(w.Metar)) {
		if len(token) < 2 || !metarWeatherGroup.MatchString(token) {
			continue
		}
		for _, code := range adverseCodes {
			if strings.Contains(token, code) {
				return fmt.Sprintf("%s reported at %s", code, w.Station)
			}
		}
	}
	for _, word := range strings.Fields(strings.ToUpper(w.Condition)) {
		if code, ok := adverseWords[strings.Trim(word, ",.;()")]; ok {
			return fmt.Sprintf("%s reported at %s", code, w.Station)
		}
	}
	if w.VisibilityMeters != nil && *w.VisibilityMeters < AdverseVisibilityMeters {
		return fmt.Sprintf("visibility %dm at %s", *w.VisibilityMeters, w.Station)
	}
	return ""
}

// Describe renders the weather for the investigation grid.
func (w FlightWeather) Describe() string {
	if w.VisibilityMeters != nil {
		return fmt.Sprintf("%s (Vis: %dm)", w.Condition, *w.VisibilityMeters)
	}
	return w.Condition
}
