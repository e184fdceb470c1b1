package http

import (
	"time"

	xutil "CoinPull/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTime accepts RFC3339Nano, YYYY-MM-DD and unix seconds.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }

// ParseList splits a comma separated query value.
func ParseList(s string) []string { return xutil.SplitList(s) }
