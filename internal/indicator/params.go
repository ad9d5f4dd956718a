package indicator

import "fmt"

// Params holds the static period parameters for every indicator the
// decision engine consumes. The regime-dependent thresholds live in
// model.Thresholds and are not part of this struct.
type Params struct {
	RSIPeriod   int `yaml:"rsi_period"`
	MACDFast    int `yaml:"macd_fast"`
	MACDSlow    int `yaml:"macd_slow"`
	MACDSignal  int `yaml:"macd_signal"`
	SMAShort    int `yaml:"sma_short"`
	SMALong     int `yaml:"sma_long"`
	StochK      int `yaml:"stoch_k"`
	StochD      int `yaml:"stoch_d"`
	StochSmooth int `yaml:"stoch_smooth"`
	ADXPeriod   int `yaml:"adx_period"`
}

// DefaultParams returns the standard parameter set.
func DefaultParams() Params {
	return Params{
		RSIPeriod:   14,
		MACDFast:    12,
		MACDSlow:    26,
		MACDSignal:  9,
		SMAShort:    20,
		SMALong:     50,
		StochK:      14,
		StochD:      3,
		StochSmooth: 3,
		ADXPeriod:   14,
	}
}

// Validate reports the first invalid period parameter. Invalid periods are
// fatal at startup: silently defaulting them would change decision outcomes.
func (p Params) Validate() error {
	check := func(name string, v int) error {
		if v < 1 {
			return fmt.Errorf("indicator: %s must be >= 1, got %d", name, v)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    int
	}{
		{"rsi_period", p.RSIPeriod},
		{"macd_fast", p.MACDFast},
		{"macd_slow", p.MACDSlow},
		{"macd_signal", p.MACDSignal},
		{"sma_short", p.SMAShort},
		{"sma_long", p.SMALong},
		{"stoch_k", p.StochK},
		{"stoch_d", p.StochD},
		{"stoch_smooth", p.StochSmooth},
		{"adx_period", p.ADXPeriod},
	} {
		if err := check(c.name, c.v); err != nil {
			return err
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("indicator: macd_fast (%d) must be smaller than macd_slow (%d)", p.MACDFast, p.MACDSlow)
	}
	return nil
}
