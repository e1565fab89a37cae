package tcp

import "testing"

func TestCongestionSlowStartGrowsByMSSPerAck(t *testing.T) {
	c := NewCongestion(1000)
	before := c.Window()
	c.OnAck(1000)
	if got := c.Window(); got != before+1000 {
		t.Fatalf("cwnd = %d, want %d", got, before+1000)
	}
}

func TestCongestionAvoidanceGrowsSlower(t *testing.T) {
	c := NewCongestion(1000)
	c.ssthresh = 2000
	c.cwnd = 2000 // now at threshold: Phase() reports congestion avoidance
	before := c.Window()
	c.OnAck(1000)
	if got := c.Window(); got <= before || got >= before+1000 {
		t.Fatalf("cwnd = %d, want modest growth between %d and %d", got, before, before+1000)
	}
}

func TestCongestionTimeoutResets(t *testing.T) {
	c := NewCongestion(1000)
	c.cwnd = 10000
	c.OnTimeout()
	if c.cwnd != 1000 {
		t.Fatalf("cwnd after timeout = %d, want mss", c.cwnd)
	}
	if c.ssthresh != 5000 {
		t.Fatalf("ssthresh after timeout = %d, want cwnd/2 = 5000", c.ssthresh)
	}
}

func TestCongestionFastRetransmit(t *testing.T) {
	c := NewCongestion(1000)
	c.cwnd = 8000
	c.OnFastRetransmit()
	if c.ssthresh != 4000 {
		t.Fatalf("ssthresh = %d, want 4000", c.ssthresh)
	}
	if c.cwnd != 4000+3000 {
		t.Fatalf("cwnd = %d, want ssthresh+3*mss = 7000", c.cwnd)
	}
}
