package telemetry

// TireTemperature is the thermal model of one tire: a linear function of
// speed plus the caller-supplied jitter in [-1, 1]. It has no memory.
func TireTemperature(speedKmh, jitter float64) float64 {
	return RestingTireTempC + (speedKmh/300)*30 + jitter
}

func updateTires(tires *[TireCount]TireState, speedKmh float64, jitter [TireCount]float64) {
	for i := range tires {
		tires[i].TemperatureC = TireTemperature(speedKmh, jitter[i])
	}
}
