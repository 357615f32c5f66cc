package dcs

import (
	"strconv"
	"strings"
	"time"
)

// ChannelKind distinguishes the two kinds of reading channel.
type ChannelKind int

const (
	// KindRegister is a physical meter measurement.
	KindRegister ChannelKind = iota
	// KindVirtualMeter is a computed or derived measurement.
	KindVirtualMeter
)

// Channel identifies a reading channel with a tagged string: "R839"
// for register 839, "VM88" for virtual meter 88. The tag selects the
// server endpoint the query is sent to.
type Channel string

// RegisterChannel returns the channel identifier for a register id.
func RegisterChannel(id int) Channel { return Channel("R" + strconv.Itoa(id)) }

// VirtualMeterChannel returns the channel identifier for a virtual
// meter id.
func VirtualMeterChannel(id int) Channel { return Channel("VM" + strconv.Itoa(id)) }

// parse splits the channel into its kind tag and numeric id.
func (c Channel) parse() (ChannelKind, int, error) {
	s := string(c)
	var kind ChannelKind
	var digits string
	switch {
	case strings.HasPrefix(s, "VM"):
		kind, digits = KindVirtualMeter, s[2:]
	case strings.HasPrefix(s, "R"):
		kind, digits = KindRegister, s[1:]
	default:
		return 0, 0, &ChannelError{Channel: c}
	}
	id, err := strconv.Atoi(digits)
	if err != nil || id < 0 {
		return 0, 0, &ChannelError{Channel: c}
	}
	return kind, id, nil
}

// Kind reports whether the channel addresses a register or a virtual
// meter.
func (c Channel) Kind() (ChannelKind, error) {
	kind, _, err := c.parse()
	return kind, err
}

// Period is the integration period granularity of a readings query.
type Period string

const (
	PeriodHalfHour Period = "halfHour"
	PeriodHour     Period = "hour"
	PeriodDay      Period = "day"
	PeriodWeek     Period = "week"
	PeriodMonth    Period = "month"
)

var validPeriods = map[Period]bool{
	PeriodHalfHour: true,
	PeriodHour:     true,
	PeriodDay:      true,
	PeriodWeek:     true,
	PeriodMonth:    true,
}

func (p Period) valid() bool { return validPeriods[p] }

// Duration returns the fixed length of one period, or zero for
// PeriodMonth whose length varies.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodHalfHour:
		return 30 * time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	}
	return 0
}

// Source selects which reading source the server reports from.
type Source string

const (
	SourceAutomatic Source = "automatic"
	SourceManual    Source = "manual"
	SourceMerged    Source = "merged"
)
