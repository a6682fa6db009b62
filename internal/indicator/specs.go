package indicator

var (
	ohlc = []string{"open", "high", "low", "close"}
	hlc  = []string{"high", "low", "close"}
)

func single(name string, inputs []string, warmup int, f func(in Inputs) Column) *Spec {
	return &Spec{
		Name:    name,
		Outputs: []string{name},
		Inputs:  inputs,
		Warmup:  warmup,
		Causal:  true,
		Compute: func(in Inputs) []Column { return []Column{f(in)} },
	}
}

func multi(name string, outputs, inputs []string, warmup int, f func(in Inputs) []Column) *Spec {
	return &Spec{
		Name:    name,
		Outputs: outputs,
		Inputs:  inputs,
		Warmup:  warmup,
		Causal:  true,
		Compute: f,
	}
}

func standardSpecs(p Params) []*Spec {
	var specs []*Spec
	add := func(s ...*Spec) { specs = append(specs, s...) }

	// ── indicator layer ──

	for _, n := range p.SMAPeriods {
		add(single(col("sma", n), []string{"close"}, n-1, func(in Inputs) Column {
			return SMA(in.Get("close"), n)
		}))
	}
	for _, n := range p.EMAPeriods {
		add(single(col("ema", n), []string{"close"}, n-1, func(in Inputs) Column {
			return EMA(in.Get("close"), n)
		}))
	}

	add(single("rsi", []string{"close"}, p.RSIPeriod, func(in Inputs) Column {
		return RSI(in.Get("close"), p.RSIPeriod)
	}))
	for _, n := range p.RSIVariants {
		add(single(col("rsi", n), []string{"close"}, n, func(in Inputs) Column {
			return RSI(in.Get("close"), n)
		}))
	}

	add(multi("macd", []string{"macd", "macd_signal", "macd_hist"}, []string{"close"},
		p.MACDSlow-1+p.MACDSignal-1, func(in Inputs) []Column {
			l, s, h := MACD(in.Get("close"), p.MACDFast, p.MACDSlow, p.MACDSignal)
			return []Column{l, s, h}
		}))

	add(multi("bollinger",
		[]string{"bollinger_upper", "bollinger_middle", "bollinger_lower", "bb_width", "bb_percent_b"},
		[]string{"close"}, p.BollingerPeriod-1, func(in Inputs) []Column {
			c := in.Get("close")
			u, m, l := Bollinger(c, p.BollingerPeriod, p.BollingerK)
			return []Column{u, m, l, BandWidth(u, m, l), PercentB(c, u, l)}
		}))

	add(single("atr", hlc, p.ATRPeriod-1, func(in Inputs) Column {
		return ATR(in.Get("high"), in.Get("low"), in.Get("close"), p.ATRPeriod)
	}))
	add(single("atr_pct", []string{"atr", "close"}, 0, func(in Inputs) Column {
		return ratio(in.Get("atr"), in.Get("close"), 100)
	}))

	add(multi("adx", []string{"adx", "plus_di", "minus_di"}, hlc, 2*p.ADXPeriod-1,
		func(in Inputs) []Column {
			a, pd, md := ADX(in.Get("high"), in.Get("low"), in.Get("close"), p.ADXPeriod)
			return []Column{a, pd, md}
		}))

	add(multi("stoch", []string{"stoch_k", "stoch_d"}, hlc, p.StochK-1+p.StochD-1,
		func(in Inputs) []Column {
			k, d := Stochastic(in.Get("high"), in.Get("low"), in.Get("close"), p.StochK, p.StochD)
			return []Column{k, d}
		}))

	add(single("williams_r", hlc, p.WilliamsPeriod-1, func(in Inputs) Column {
		return WilliamsR(in.Get("high"), in.Get("low"), in.Get("close"), p.WilliamsPeriod)
	}))
	add(single("cci", hlc, p.CCIPeriod-1, func(in Inputs) Column {
		return CCI(in.Get("high"), in.Get("low"), in.Get("close"), p.CCIPeriod)
	}))
	add(single("obv", []string{"close", "volume"}, 0, func(in Inputs) Column {
		return OBV(in.Get("close"), in.Get("volume"))
	}))

	for _, n := range p.ROCPeriods {
		add(single(col("roc", n), []string{"close"}, n, func(in Inputs) Column {
			return ROC(in.Get("close"), n)
		}))
	}
	add(single(col("momentum", p.MomentumPeriod), []string{"close"}, p.MomentumPeriod,
		func(in Inputs) Column { return Momentum(in.Get("close"), p.MomentumPeriod) }))
	add(single("trix", []string{"close"}, 3*p.TRIXPeriod-2, func(in Inputs) Column {
		return TRIX(in.Get("close"), p.TRIXPeriod)
	}))

	add(multi("aroon", []string{"aroon_up", "aroon_down", "aroon_oscillator"},
		[]string{"high", "low"}, p.AroonPeriod, func(in Inputs) []Column {
			u, d, o := Aroon(in.Get("high"), in.Get("low"), p.AroonPeriod)
			return []Column{u, d, o}
		}))

	add(single("kama", []string{"close"}, p.KAMAPeriod-1, func(in Inputs) Column {
		return KAMA(in.Get("close"), p.KAMAPeriod, p.KAMAFast, p.KAMASlow)
	}))

	add(multi("ppo", []string{"ppo", "ppo_signal", "ppo_hist"}, []string{"close"},
		p.PPOSlow-1+p.PPOSignal-1, func(in Inputs) []Column {
			l, s, h := PPO(in.Get("close"), p.PPOFast, p.PPOSlow, p.PPOSignal)
			return []Column{l, s, h}
		}))
	add(multi("pvo", []string{"pvo", "pvo_signal", "pvo_hist"}, []string{"volume"},
		p.PVOSlow-1+p.PVOSignal-1, func(in Inputs) []Column {
			l, s, h := PPO(in.Get("volume"), p.PVOFast, p.PVOSlow, p.PVOSignal)
			return []Column{l, s, h}
		}))

	add(single("ultimate_oscillator", hlc, p.UOLong, func(in Inputs) Column {
		return UltimateOscillator(in.Get("high"), in.Get("low"), in.Get("close"),
			p.UOShort, p.UOMid, p.UOLong)
	}))
	add(single("awesome_oscillator", []string{"high", "low"}, p.AOSlow-1, func(in Inputs) Column {
		return AwesomeOscillator(in.Get("high"), in.Get("low"), p.AOFast, p.AOSlow)
	}))

	volSMA := col("volume_sma", p.VolumeSMAPeriod)
	add(single(volSMA, []string{"volume"}, p.VolumeSMAPeriod-1, func(in Inputs) Column {
		return SMA(in.Get("volume"), p.VolumeSMAPeriod)
	}))

	// ── derived features ──

	add(single("log_return", []string{"close"}, 1, func(in Inputs) Column {
		return LogReturn(in.Get("close"))
	}))
	for _, k := range p.ReturnLags {
		add(single(col("return", k), []string{"close"}, k, func(in Inputs) Column {
			return Return(in.Get("close"), k)
		}))
	}
	for _, n := range p.RelativeSMAs {
		ref := col("sma", n)
		add(single(col("price_vs_sma", n), []string{"close", ref}, 0, func(in Inputs) Column {
			return RelativeTo(in.Get("close"), in.Get(ref))
		}))
	}
	for _, n := range p.RelativeEMAs {
		ref := col("ema", n)
		add(single(col("price_vs_ema", n), []string{"close", ref}, 0, func(in Inputs) Column {
			return RelativeTo(in.Get("close"), in.Get(ref))
		}))
	}

	for _, src := range []string{"rsi", "macd", "adx", "sma_20", "sma_50", "obv"} {
		add(single(src+"_slope", []string{src}, p.SlopeLag, func(in Inputs) Column {
			return Slope(in.Get(src), p.SlopeLag)
		}))
	}
	add(single("sma_50_slope_pct", []string{"sma_50"}, p.SlopeLag, func(in Inputs) Column {
		return SlopePct(in.Get("sma_50"), p.SlopeLag)
	}))

	for _, src := range []string{"close", "rsi", "macd_hist", "volume", "atr_pct"} {
		add(single(src+"_zscore", []string{src}, p.ZScoreMinPeriods-1, func(in Inputs) Column {
			return ZScore(in.Get(src), p.ZScoreWindow, p.ZScoreMinPeriods)
		}))
	}

	add(multi("rsi_flags", []string{"rsi_overbought", "rsi_oversold"}, []string{"rsi"}, 0,
		func(in Inputs) []Column {
			r := in.Get("rsi")
			return []Column{Above(r, p.RSIOverbought), Below(r, p.RSIOversold)}
		}))
	add(multi("stoch_flags", []string{"stoch_overbought", "stoch_oversold"}, []string{"stoch_k"}, 0,
		func(in Inputs) []Column {
			k := in.Get("stoch_k")
			return []Column{Above(k, p.StochOverbought), Below(k, p.StochOversold)}
		}))
	add(single("price_above_sma_200", []string{"close", "sma_200"}, 0, func(in Inputs) Column {
		return AboveLine(in.Get("close"), in.Get("sma_200"))
	}))
	add(single("macd_cross_flag", []string{"macd", "macd_signal"}, 1, func(in Inputs) Column {
		return CrossFlag(in.Get("macd"), in.Get("macd_signal"))
	}))
	add(single("ma_cross_flag", []string{"sma_50", "sma_200"}, 1, func(in Inputs) Column {
		return CrossFlag(in.Get("sma_50"), in.Get("sma_200"))
	}))
	add(single("volume_ratio", []string{"volume", volSMA}, 0, func(in Inputs) Column {
		return ratio(in.Get("volume"), in.Get(volSMA), 1)
	}))

	add(multi("candle",
		[]string{"candle_body_pct", "upper_shadow_pct", "lower_shadow_pct", "candle_range_pct", "candle_direction"},
		ohlc, 0, func(in Inputs) []Column {
			cs := Candle(in.Get("open"), in.Get("high"), in.Get("low"), in.Get("close"))
			return []Column{cs.BodyPct, cs.UpperShadowPct, cs.LowerShadowPct, cs.RangePct, cs.Direction}
		}))

	pivots := multi("pivots", []string{"pivot_high", "pivot_low"}, []string{"high", "low"}, p.PivotWindow,
		func(in Inputs) []Column {
			h, l := Pivots(in.Get("high"), in.Get("low"), p.PivotWindow)
			return []Column{h, l}
		})
	pivots.Causal = false
	add(pivots)
	add(multi("pivot_distance", []string{"dist_to_pivot_high", "dist_to_pivot_low"},
		[]string{"close", "high", "low", "pivot_high", "pivot_low"}, 0, func(in Inputs) []Column {
			c := in.Get("close")
			return []Column{
				DistToPivot(c, in.Get("pivot_high"), in.Get("high")),
				DistToPivot(c, in.Get("pivot_low"), in.Get("low")),
			}
		}))

	add(single("trend_regime", []string{"adx", "sma_50_slope_pct"}, 0, func(in Inputs) Column {
		return TrendRegime(in.Get("adx"), in.Get("sma_50_slope_pct"), p.TrendADX)
	}))
	add(single("volatility_regime", []string{"atr_pct_zscore"}, 0, func(in Inputs) Column {
		return VolatilityRegime(in.Get("atr_pct_zscore"), p.VolatilityZ)
	}))

	return specs
}
