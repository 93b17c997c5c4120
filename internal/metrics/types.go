// internal/metrics/types.go
package metrics

import (
	"math"
	"time"
)

// Series is the aggregated document for one key, such as an agent name or
// an evaluator name.
type Series struct {
	Name           string      `json:"name"`
	LastUpdatedUTC time.Time   `json:"last_updated_utc"`
	Stats          RunningStat `json:"stats"`
	Failures       int64       `json:"failures"`
}

// RunningStat holds the necessary values for online calculation of mean, variance, and stddev.
type RunningStat struct {
	Count int64   `json:"count"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"` // Sum of squares of differences from the current mean
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Add folds value into the statistic using Welford's online algorithm.
func (rs *RunningStat) Add(value float64) {
	rs.Count++
	if rs.Count == 1 {
		rs.Min = value
		rs.Max = value
	} else {
		if value < rs.Min {
			rs.Min = value
		}
		if value > rs.Max {
			rs.Max = value
		}
	}

	delta := value - rs.Mean
	rs.Mean += delta / float64(rs.Count)
	delta2 := value - rs.Mean
	rs.M2 += delta * delta2
}

// Variance returns the sample variance, or 0 with fewer than two values.
func (rs RunningStat) Variance() float64 {
	if rs.Count < 2 {
		return 0
	}
	return rs.M2 / float64(rs.Count-1)
}

// StdDev returns the sample standard deviation.
func (rs RunningStat) StdDev() float64 {
	return math.Sqrt(rs.Variance())
}

// Stats is the reporting view of a RunningStat.
type Stats struct {
	Count  int64   `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Stats returns the reporting view of rs.
func (rs RunningStat) Stats() Stats {
	return Stats{
		Count:  rs.Count,
		Mean:   rs.Mean,
		StdDev: rs.StdDev(),
		Min:    rs.Min,
		Max:    rs.Max,
	}
}
