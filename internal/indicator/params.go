package indicator

import (
	"fmt"
	"slices"
)

// Params holds every tunable window and threshold. The zero value is not
// useful; start from DefaultParams and override.
type Params struct {
	SMAPeriods []int `yaml:"sma_periods" json:"sma_periods"`
	EMAPeriods []int `yaml:"ema_periods" json:"ema_periods"`

	RSIPeriod   int   `yaml:"rsi_period" json:"rsi_period"`
	RSIVariants []int `yaml:"rsi_variants" json:"rsi_variants"`

	MACDFast   int `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal int `yaml:"macd_signal" json:"macd_signal"`

	BollingerPeriod int     `yaml:"bollinger_period" json:"bollinger_period"`
	BollingerK      float64 `yaml:"bollinger_k" json:"bollinger_k"`

	ATRPeriod      int `yaml:"atr_period" json:"atr_period"`
	ADXPeriod      int `yaml:"adx_period" json:"adx_period"`
	StochK         int `yaml:"stoch_k" json:"stoch_k"`
	StochD         int `yaml:"stoch_d" json:"stoch_d"`
	WilliamsPeriod int `yaml:"williams_period" json:"williams_period"`
	CCIPeriod      int `yaml:"cci_period" json:"cci_period"`

	ROCPeriods     []int `yaml:"roc_periods" json:"roc_periods"`
	MomentumPeriod int   `yaml:"momentum_period" json:"momentum_period"`
	TRIXPeriod     int   `yaml:"trix_period" json:"trix_period"`
	AroonPeriod    int   `yaml:"aroon_period" json:"aroon_period"`

	KAMAPeriod int `yaml:"kama_period" json:"kama_period"`
	KAMAFast   int `yaml:"kama_fast" json:"kama_fast"`
	KAMASlow   int `yaml:"kama_slow" json:"kama_slow"`

	PPOFast   int `yaml:"ppo_fast" json:"ppo_fast"`
	PPOSlow   int `yaml:"ppo_slow" json:"ppo_slow"`
	PPOSignal int `yaml:"ppo_signal" json:"ppo_signal"`
	PVOFast   int `yaml:"pvo_fast" json:"pvo_fast"`
	PVOSlow   int `yaml:"pvo_slow" json:"pvo_slow"`
	PVOSignal int `yaml:"pvo_signal" json:"pvo_signal"`

	UOShort int `yaml:"uo_short" json:"uo_short"`
	UOMid   int `yaml:"uo_mid" json:"uo_mid"`
	UOLong  int `yaml:"uo_long" json:"uo_long"`
	AOFast  int `yaml:"ao_fast" json:"ao_fast"`
	AOSlow  int `yaml:"ao_slow" json:"ao_slow"`

	VolumeSMAPeriod int `yaml:"volume_sma_period" json:"volume_sma_period"`

	ReturnLags   []int `yaml:"return_lags" json:"return_lags"`
	RelativeSMAs []int `yaml:"relative_smas" json:"relative_smas"`
	RelativeEMAs []int `yaml:"relative_emas" json:"relative_emas"`

	SlopeLag         int `yaml:"slope_lag" json:"slope_lag"`
	ZScoreWindow     int `yaml:"zscore_window" json:"zscore_window"`
	ZScoreMinPeriods int `yaml:"zscore_min_periods" json:"zscore_min_periods"`
	PivotWindow      int `yaml:"pivot_window" json:"pivot_window"`

	RSIOverbought   float64 `yaml:"rsi_overbought" json:"rsi_overbought"`
	RSIOversold     float64 `yaml:"rsi_oversold" json:"rsi_oversold"`
	StochOverbought float64 `yaml:"stoch_overbought" json:"stoch_overbought"`
	StochOversold   float64 `yaml:"stoch_oversold" json:"stoch_oversold"`
	TrendADX        float64 `yaml:"trend_adx" json:"trend_adx"`
	VolatilityZ     float64 `yaml:"volatility_z" json:"volatility_z"`
}

// DefaultParams returns the canonical configuration.
func DefaultParams() Params {
	return Params{
		SMAPeriods:  []int{5, 10, 12, 20, 26, 50, 100, 200},
		EMAPeriods:  []int{5, 10, 12, 20, 26, 50, 100, 200},
		RSIPeriod:   14,
		RSIVariants: []int{7, 21},

		MACDFast: 12, MACDSlow: 26, MACDSignal: 9,

		BollingerPeriod: 20,
		BollingerK:      2,

		ATRPeriod:      14,
		ADXPeriod:      14,
		StochK:         14,
		StochD:         3,
		WilliamsPeriod: 14,
		CCIPeriod:      20,

		ROCPeriods:     []int{10, 12},
		MomentumPeriod: 10,
		TRIXPeriod:     15,
		AroonPeriod:    25,

		KAMAPeriod: 10, KAMAFast: 2, KAMASlow: 30,

		PPOFast: 12, PPOSlow: 26, PPOSignal: 9,
		PVOFast: 12, PVOSlow: 26, PVOSignal: 9,

		UOShort: 7, UOMid: 14, UOLong: 28,
		AOFast: 5, AOSlow: 34,

		VolumeSMAPeriod: 20,

		ReturnLags:   []int{2, 4, 8, 10, 20},
		RelativeSMAs: []int{5, 10, 20, 50, 100, 200},
		RelativeEMAs: []int{12, 26, 50},

		SlopeLag:         5,
		ZScoreWindow:     20,
		ZScoreMinPeriods: 20,
		PivotWindow:      2,

		RSIOverbought:   70,
		RSIOversold:     30,
		StochOverbought: 80,
		StochOversold:   20,
		TrendADX:        25,
		VolatilityZ:     1.0,
	}
}

// Validate rejects non-positive windows and contradictory settings.
func (p *Params) Validate() error {
	positive := map[string]int{
		"rsi_period": p.RSIPeriod, "macd_fast": p.MACDFast, "macd_slow": p.MACDSlow,
		"macd_signal": p.MACDSignal, "bollinger_period": p.BollingerPeriod,
		"atr_period": p.ATRPeriod, "adx_period": p.ADXPeriod, "stoch_k": p.StochK,
		"stoch_d": p.StochD, "williams_period": p.WilliamsPeriod, "cci_period": p.CCIPeriod,
		"momentum_period": p.MomentumPeriod, "trix_period": p.TRIXPeriod,
		"aroon_period": p.AroonPeriod, "kama_period": p.KAMAPeriod, "kama_fast": p.KAMAFast,
		"kama_slow": p.KAMASlow, "ppo_fast": p.PPOFast, "ppo_slow": p.PPOSlow,
		"ppo_signal": p.PPOSignal, "pvo_fast": p.PVOFast, "pvo_slow": p.PVOSlow,
		"pvo_signal": p.PVOSignal, "uo_short": p.UOShort, "uo_mid": p.UOMid,
		"uo_long": p.UOLong, "ao_fast": p.AOFast, "ao_slow": p.AOSlow,
		"volume_sma_period": p.VolumeSMAPeriod, "slope_lag": p.SlopeLag,
		"zscore_window": p.ZScoreWindow, "zscore_min_periods": p.ZScoreMinPeriods,
		"pivot_window": p.PivotWindow,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %d", ErrInvalidParams, name, v)
		}
	}
	lists := map[string][]int{
		"sma_periods": p.SMAPeriods, "ema_periods": p.EMAPeriods,
		"rsi_variants": p.RSIVariants, "roc_periods": p.ROCPeriods,
		"return_lags": p.ReturnLags, "relative_smas": p.RelativeSMAs,
		"relative_emas": p.RelativeEMAs,
	}
	for name, vs := range lists {
		for _, v := range vs {
			if v <= 0 {
				return fmt.Errorf("%w: %s entries must be > 0, got %d", ErrInvalidParams, name, v)
			}
		}
	}

	ordered := []struct {
		name       string
		fast, slow int
	}{
		{"macd", p.MACDFast, p.MACDSlow},
		{"ppo", p.PPOFast, p.PPOSlow},
		{"pvo", p.PVOFast, p.PVOSlow},
		{"kama", p.KAMAFast, p.KAMASlow},
		{"awesome_oscillator", p.AOFast, p.AOSlow},
		{"ultimate_oscillator short/mid", p.UOShort, p.UOMid},
		{"ultimate_oscillator mid/long", p.UOMid, p.UOLong},
	}
	for _, o := range ordered {
		if o.fast >= o.slow {
			return fmt.Errorf("%w: %s fast period %d must be shorter than slow period %d",
				ErrInvalidParams, o.name, o.fast, o.slow)
		}
	}

	if p.BollingerK <= 0 {
		return fmt.Errorf("%w: bollinger_k must be > 0, got %g", ErrInvalidParams, p.BollingerK)
	}
	if p.ZScoreMinPeriods > p.ZScoreWindow {
		return fmt.Errorf("%w: zscore_min_periods %d exceeds zscore_window %d",
			ErrInvalidParams, p.ZScoreMinPeriods, p.ZScoreWindow)
	}
	if p.RSIOversold >= p.RSIOverbought {
		return fmt.Errorf("%w: rsi_oversold %g must be below rsi_overbought %g",
			ErrInvalidParams, p.RSIOversold, p.RSIOverbought)
	}
	if p.StochOversold >= p.StochOverbought {
		return fmt.Errorf("%w: stoch_oversold %g must be below stoch_overbought %g",
			ErrInvalidParams, p.StochOversold, p.StochOverbought)
	}
	for _, n := range p.RelativeSMAs {
		if !slices.Contains(p.SMAPeriods, n) {
			return fmt.Errorf("%w: relative_smas uses sma_%d which is not in sma_periods",
				ErrInvalidParams, n)
		}
	}
	for _, n := range p.RelativeEMAs {
		if !slices.Contains(p.EMAPeriods, n) {
			return fmt.Errorf("%w: relative_emas uses ema_%d which is not in ema_periods",
				ErrInvalidParams, n)
		}
	}
	return nil
}
