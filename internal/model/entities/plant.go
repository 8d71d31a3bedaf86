package entities

import (
	"fmt"
	"strconv"
)

// Range is an inclusive optimal band, e.g. 5.5-6.5.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) String() string {
	return strconv.FormatFloat(r.Min, 'f', -1, 64) + "-" + strconv.FormatFloat(r.Max, 'f', -1, 64)
}

// PlantProfile holds the optimal growing ranges for a crop.
type PlantProfile struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	PH           Range  `json:"ph" yaml:"ph"`
	TDS          Range  `json:"tds" yaml:"tds"`
	Temperature  Range  `json:"temperature" yaml:"temperature"`
	Humidity     Range  `json:"humidity" yaml:"humidity"`
	DissolvedOxy Range  `json:"dissolvedOxy" yaml:"dissolvedOxy"`
}

// Optimal returns the range configured for the channel.
func (p PlantProfile) Optimal(ch SensorType) (Range, error) {
	switch ch {
	case SensorPH:
		return p.PH, nil
	case SensorTDS:
		return p.TDS, nil
	case SensorTemperature:
		return p.Temperature, nil
	case SensorHumidity:
		return p.Humidity, nil
	case SensorDissolvedOxy:
		return p.DissolvedOxy, nil
	default:
		return Range{}, fmt.Errorf("no optimal range for sensor type %q", ch)
	}
}

// DefaultProfiles are the crops grown in the reference setup.
func DefaultProfiles() []PlantProfile {
	return []PlantProfile{
		{
			Name:         "Bok choy",
			Description:  "Nutrient-rich leafy green",
			PH:           Range{5.5, 6.5},
			TDS:          Range{900, 1200},
			Temperature:  Range{18, 24},
			Humidity:     Range{50, 70},
			DissolvedOxy: Range{5, 8},
		},
		{
			Name:         "Chili",
			Description:  "Spicy pepper variety",
			PH:           Range{6.0, 6.8},
			TDS:          Range{1000, 1750},
			Temperature:  Range{21, 29},
			Humidity:     Range{60, 80},
			DissolvedOxy: Range{5, 8},
		},
		{
			Name:         "Purple basil",
			Description:  "Aromatic purple-leafed herb",
			PH:           Range{5.5, 6.5},
			TDS:          Range{500, 800},
			Temperature:  Range{20, 26},
			Humidity:     Range{50, 70},
			DissolvedOxy: Range{5, 8},
		},
		{
			Name:         "Thai basil",
			Description:  "Sweet and spicy Asian herb",
			PH:           Range{6.0, 7.0},
			TDS:          Range{600, 900},
			Temperature:  Range{20, 26},
			Humidity:     Range{50, 70},
			DissolvedOxy: Range{5, 8},
		},
		{
			Name:         "Lemon basil",
			Description:  "Citrusy aromatic herb",
			PH:           Range{5.8, 6.8},
			TDS:          Range{500, 750},
			Temperature:  Range{20, 26},
			Humidity:     Range{50, 70},
			DissolvedOxy: Range{5, 8},
		},
	}
}
