package tcp

import (
	"testing"
	"time"
)

func TestRTTEstimatorConverges(t *testing.T) {
	e := NewRTTEstimator(MinRTO, MaxRTO)
	for i := 0; i < 50; i++ {
		e.Sample(100 * time.Millisecond)
	}
	rto := e.RTO()
	if rto < 100*time.Millisecond {
		t.Fatalf("RTO = %v, should be at least the sampled RTT", rto)
	}
	if rto > 200*time.Millisecond {
		t.Fatalf("RTO = %v, expected close convergence around 100ms after many identical samples", rto)
	}
}

func TestRTTEstimatorRespectsBounds(t *testing.T) {
	e := NewRTTEstimator(500*time.Millisecond, time.Second)
	if got := e.RTO(); got != 500*time.Millisecond {
		t.Fatalf("unprimed RTO = %v, want minRTO", got)
	}
	e.Sample(5 * time.Millisecond)
	if got := e.RTO(); got != 500*time.Millisecond {
		t.Fatalf("RTO = %v, want floor at minRTO", got)
	}

	e2 := NewRTTEstimator(MinRTO, 50*time.Millisecond)
	e2.Sample(time.Second)
	if got := e2.RTO(); got != 50*time.Millisecond {
		t.Fatalf("RTO = %v, want capped at maxRTO", got)
	}
}
