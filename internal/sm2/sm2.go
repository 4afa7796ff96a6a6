package sm2

import (
	"math"
	"time"
)

// DayMillis is the length of one interval day in milliseconds.
const DayMillis int64 = 24 * 60 * 60 * 1000

// Params holds the constants of the SM-2 style scheduler.
type Params struct {
	MinEaseFactor     float64 // floor applied after every adjustment
	InitialEaseFactor float64 // ease of a question never answered
	EaseBonus         float64 // added on a correct answer
	EasePenalty       float64 // subtracted on an incorrect answer
	FirstInterval     int     // days after the first correct answer
	SecondInterval    int     // days after a correct answer at FirstInterval
}

// DefaultParams returns the scheduler's standard constants.
func DefaultParams() *Params {
	return &Params{
		MinEaseFactor:     1.3,
		InitialEaseFactor: 2.5,
		EaseBonus:         0.1,
		EasePenalty:       0.2,
		FirstInterval:     1,
		SecondInterval:    3,
	}
}

// State is the part of a review record the scheduler reads.
type State struct {
	EaseFactor float64
	Interval   int // days
}

// Result is the outcome of scheduling one answer.
type Result struct {
	EaseFactor float64
	Interval   int
	NextReview time.Time
}

// InitialState returns the state of a question that has never been answered.
func (p *Params) InitialState() State {
	return State{EaseFactor: p.InitialEaseFactor, Interval: 0}
}

// Next computes the ease factor, interval and due date that follow an answer
// given at now. It is pure: the same inputs always give the same Result.
// Intervals grown from the ease factor are capped at MaxInterval(now).
func (p *Params) Next(current State, isCorrect bool, now time.Time) Result {
	if !isCorrect {
		interval := p.FirstInterval
		return Result{
			EaseFactor: math.Max(p.MinEaseFactor, current.EaseFactor-p.EasePenalty),
			Interval:   interval,
			NextReview: NextDueDate(now, interval),
		}
	}

	var interval int
	switch current.Interval {
	case 0:
		interval = p.FirstInterval
	case p.FirstInterval:
		interval = p.SecondInterval
	default:
		interval = clampInterval(math.Floor(float64(current.Interval)*current.EaseFactor+0.5), now)
	}

	return Result{
		EaseFactor: math.Max(p.MinEaseFactor, current.EaseFactor+p.EaseBonus),
		Interval:   interval,
		NextReview: NextDueDate(now, interval),
	}
}

// NextDueDate returns the instant interval days after now, at millisecond precision.
func NextDueDate(now time.Time, interval int) time.Time {
	return time.UnixMilli(now.UnixMilli() + int64(interval)*DayMillis)
}

// MaxInterval returns the longest interval, in days, whose due date counted
// from now still fits in int64 Unix milliseconds.
func MaxInterval(now time.Time) int {
	ms := max(now.UnixMilli(), 0)
	limit := (math.MaxInt64 - ms) / DayMillis
	if limit > math.MaxInt {
		limit = math.MaxInt
	}
	return int(limit)
}

// clampInterval converts a rounded interval to int, capped at MaxInterval(now).
func clampInterval(days float64, now time.Time) int {
	limit := MaxInterval(now)
	if days >= float64(limit) {
		return limit
	}
	return int(days)
}
