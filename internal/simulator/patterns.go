package simulator

import (
	"math"
	"math/rand"
	"time"
)

// LoadPattern shapes a service's base CPU over the day.
type LoadPattern interface {
	Apply(baseCPU float64, now time.Time) float64
	Name() string
}

var (
	PatternSteady      LoadPattern = &SteadyPattern{}
	PatternTradingDay  LoadPattern = &TradingDayPattern{}
	PatternRandom      LoadPattern = &RandomPattern{}
	PatternGradualRise LoadPattern = &GradualRisePattern{startTime: time.Now()}
)

func ParsePattern(name string) LoadPattern {
	switch name {
	case "trading_day":
		return PatternTradingDay
	case "random":
		return PatternRandom
	case "gradual_rise":
		return &GradualRisePattern{startTime: time.Now()}
	case "volatility":
		return &VolatilityPattern{}
	default:
		return PatternSteady
	}
}

type SteadyPattern struct{}

func (p *SteadyPattern) Apply(baseCPU float64, now time.Time) float64 {
	return baseCPU
}

func (p *SteadyPattern) Name() string {
	return "steady"
}

// TradingDayPattern follows an equity-market session: surges around the
// opening and closing bells, a lull over lunch, and a quiet overnight floor.
type TradingDayPattern struct{}

func (p *TradingDayPattern) Apply(baseCPU float64, now time.Time) float64 {
	weekday := now.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return clampCPU(baseCPU * 0.4)
	}

	minutes := now.Hour()*60 + now.Minute()
	var modifier float64
	switch {
	case minutes >= 9*60 && minutes < 9*60+30:
		modifier = 1.6 // opening bell
	case minutes >= 9*60+30 && minutes < 12*60:
		modifier = 1.3
	case minutes >= 12*60 && minutes < 13*60:
		modifier = 0.7 // lunch lull
	case minutes >= 13*60 && minutes < 15*60+30:
		modifier = 1.2
	case minutes >= 15*60+30 && minutes < 16*60:
		modifier = 1.5 // closing bell
	case minutes >= 16*60 && minutes < 20*60:
		modifier = 0.8 // after-hours settlement
	default:
		modifier = 0.4 // overnight
	}

	return clampCPU(baseCPU * modifier)
}

func (p *TradingDayPattern) Name() string {
	return "trading_day"
}

type RandomPattern struct{}

func (p *RandomPattern) Apply(baseCPU float64, now time.Time) float64 {
	modifier := 0.5 + rand.Float64()
	result := baseCPU * modifier
	if result < 10 {
		result = 10
	}
	return clampCPU(result)
}

func (p *RandomPattern) Name() string {
	return "random"
}

type GradualRisePattern struct {
	startTime time.Time
}

func (p *GradualRisePattern) Apply(baseCPU float64, now time.Time) float64 {
	minutes := now.Sub(p.startTime).Minutes()

	// 2% per minute, capped at +50%.
	increasePercent := math.Min(minutes*2, 50)
	modifier := 1.0 + increasePercent/100

	return clampCPU(baseCPU * modifier)
}

func (p *GradualRisePattern) Name() string {
	return "gradual_rise"
}

// VolatilityPattern oscillates around the base, mimicking choppy order flow.
type VolatilityPattern struct {
	Period    time.Duration
	Amplitude float64
}

func (p *VolatilityPattern) Apply(baseCPU float64, now time.Time) float64 {
	period := p.Period
	if period == 0 {
		period = 10 * time.Minute
	}
	amplitude := p.Amplitude
	if amplitude == 0 {
		amplitude = 20
	}

	phase := float64(now.UnixNano()) / float64(period.Nanoseconds()) * 2 * math.Pi
	result := baseCPU + math.Sin(phase)*amplitude

	if result < 10 {
		result = 10
	}
	return clampCPU(result)
}

func (p *VolatilityPattern) Name() string {
	return "volatility"
}

func clampCPU(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
