package devices

// NormalRange declares the physiological bounds and expected unit for a
// reading type.
type NormalRange struct {
	Min  float64
	Max  float64
	Unit string
}

var normalRanges = map[string]NormalRange{
	"heart_rate":        {Min: 30, Max: 200, Unit: "bpm"},
	"battery_voltage":   {Min: 2.0, Max: 3.5, Unit: "V"},
	"lead_impedance":    {Min: 200, Max: 2000, Unit: "ohms"},
	"sensing_threshold": {Min: 0.5, Max: 10.0, Unit: "mV"},
	"pacing_threshold":  {Min: 0.25, Max: 5.0, Unit: "V"},
	"episode_count":     {Min: 0, Max: 1000, Unit: "count"},
}

// RangeFor returns the declared normal range for a reading type, if any.
func RangeFor(readingType string) (NormalRange, bool) {
	r, ok := normalRanges[readingType]
	return r, ok
}
