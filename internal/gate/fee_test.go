package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestFee(t *testing.T) {
	checkin := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		stay time.Duration
		want int64
	}{
		{"zero", 0, 0},
		{"negative", -time.Minute, 0},
		{"one second", time.Second, 5000},
		{"exactly one hour", time.Hour, 5000},
		{"two hours", 2 * time.Hour, 10000},
		{"two hours and a second", 2*time.Hour + time.Second, 15000},
		{"overnight", 13*time.Hour + 30*time.Minute, 70000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fee(checkin, checkin.Add(tt.stay), 5000))
		})
	}
}

func TestFee_Properties(t *testing.T) {
	checkin := time.Date(2025, 3, 14, 8, 0, 0, 0, time.UTC)
	rapid.Check(t, func(t *rapid.T) {
		a := time.Duration(rapid.Int64Range(0, int64(72*time.Hour)).Draw(t, "a"))
		b := time.Duration(rapid.Int64Range(0, int64(72*time.Hour)).Draw(t, "b"))
		if a > b {
			a, b = b, a
		}
		fa := Fee(checkin, checkin.Add(a), 5000)
		fb := Fee(checkin, checkin.Add(b), 5000)
		if fa > fb {
			t.Fatalf("fee not monotone: fee(%v)=%d > fee(%v)=%d", a, fa, b, fb)
		}
		if fa%5000 != 0 {
			t.Fatalf("fee(%v)=%d is not a whole number of hours", a, fa)
		}

		h := rapid.Int64Range(1, 72).Draw(t, "hours")
		whole := time.Duration(h) * time.Hour
		if got := Fee(checkin, checkin.Add(whole), 5000); got != h*5000 {
			t.Fatalf("fee(%dh)=%d, want %d", h, got, h*5000)
		}
		if got := Fee(checkin, checkin.Add(whole+time.Second), 5000); got != (h+1)*5000 {
			t.Fatalf("fee(%dh+1s)=%d, want %d", h, got, (h+1)*5000)
		}
	})
}
