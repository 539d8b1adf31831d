package rulesets

import (
	"github.com/liamcoop/irrigation/crops"
	"github.com/liamcoop/irrigation/irrigation"
	"github.com/liamcoop/irrigation/rules"
)

// Facts builds the CEL activation for one sample. CEL ints are 64-bit, so
// the crop index and the group lists are widened here.
func Facts(s irrigation.EnvironmentSample, cropIdx int, groups crops.Groups) map[string]any {
	return map[string]any{
		rules.FactSoil:      s.SoilMoisture,
		rules.FactTemp:      s.Temperature,
		rules.FactHumidity:  s.Humidity,
		rules.FactCrop:      int64(cropIdx),
		rules.FactHighWater: widen(groups.HighWater),
		rules.FactLowWater:  widen(groups.LowWater),
	}
}

func widen(idx []int) []int64 {
	out := make([]int64, len(idx))
	for i, v := range idx {
		out[i] = int64(v)
	}
	return out
}
