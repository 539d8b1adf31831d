package irrigation

// Thresholds of the risk table. Checked in order, first match wins.
const (
	HighRiskMoistureBelow    = 30.0
	HighRiskTemperatureAbove = 30.0
	MediumRiskMoistureBelow  = 40.0
)

// ClassifyRisk maps field conditions to a qualitative water-stress risk.
//
// Humidity is accepted but does not influence the outcome. The function is
// total: out-of-range values are evaluated as given and NaN comparisons fall
// through to Low.
func ClassifyRisk(soilMoisture, temperature, humidity float64) Verdict {
	if soilMoisture < HighRiskMoistureBelow && temperature > HighRiskTemperatureAbove {
		return VerdictHigh
	}
	if soilMoisture < MediumRiskMoistureBelow {
		return VerdictMedium
	}
	return VerdictLow
}

// Risk is ClassifyRisk applied to a sample.
func (s EnvironmentSample) Risk() Verdict {
	return ClassifyRisk(s.SoilMoisture, s.Temperature, s.Humidity)
}
