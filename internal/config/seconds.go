package config

import (
	"fmt"
	"strconv"
	"time"
)

// ParseSeconds parses a timeout given either as a number of seconds
// ("30", "1.5") or as a Go duration ("30s", "2m").
func ParseSeconds(s string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, fmt.Errorf("negative timeout %q", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: want seconds or a duration like 30s", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative timeout %q", s)
	}
	return d, nil
}

// Seconds is a flag.Value holding a timeout parsed by ParseSeconds.
type Seconds time.Duration

func (s *Seconds) String() string {
	return time.Duration(*s).String()
}

func (s *Seconds) Set(v string) error {
	d, err := ParseSeconds(v)
	if err != nil {
		return err
	}
	*s = Seconds(d)
	return nil
}
