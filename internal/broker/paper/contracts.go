package paper

import "time"

// contractSpec describes one simulated futures root.
type contractSpec struct {
	tick       float64
	multiplier float64
	start      float64
	vol        float64
	endDate    time.Time
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// specs covers the classic turtle universe. HU and TB stopped trading long ago.
var specs = map[string]contractSpec{
	"BP": {tick: 0.0001, multiplier: 62500, start: 1.27, vol: 0.006},
	"CD": {tick: 0.00005, multiplier: 100000, start: 0.74, vol: 0.004},
	"CL": {tick: 0.01, multiplier: 1000, start: 72, vol: 0.02},
	"ED": {tick: 0.005, multiplier: 2500, start: 95.5, vol: 0.0008},
	"GC": {tick: 0.1, multiplier: 100, start: 1950, vol: 0.01},
	"HG": {tick: 0.0005, multiplier: 25000, start: 3.9, vol: 0.015},
	"HO": {tick: 0.0001, multiplier: 42000, start: 2.6, vol: 0.02},
	"HU": {tick: 0.0001, multiplier: 42000, start: 1.6, vol: 0.02, endDate: date(2006, time.December, 29)},
	"JY": {tick: 0.0000005, multiplier: 12500000, start: 0.0068, vol: 0.006},
	"SB": {tick: 0.01, multiplier: 112000, start: 22, vol: 0.02},
	"SF": {tick: 0.0001, multiplier: 125000, start: 1.12, vol: 0.005},
	"SP": {tick: 0.1, multiplier: 250, start: 4500, vol: 0.012},
	"SV": {tick: 0.005, multiplier: 5000, start: 24, vol: 0.018},
	"TB": {tick: 0.005, multiplier: 2500, start: 96, vol: 0.0005, endDate: date(2003, time.September, 30)},
	"TY": {tick: 0.015625, multiplier: 1000, start: 110, vol: 0.004},
	"US": {tick: 0.03125, multiplier: 1000, start: 118, vol: 0.008},
}

var monthCodes = map[time.Month]string{
	time.March:     "H",
	time.June:      "M",
	time.September: "U",
	time.December:  "Z",
}

// frontMonth names the next quarterly contract, e.g. CLZ6.
func frontMonth(symbol string, day time.Time) string {
	m := day.Month()
	y := day.Year()
	q := ((int(m)-1)/3 + 1) * 3
	return symbol + monthCodes[time.Month(q)] + string(rune('0'+y%10))
}
