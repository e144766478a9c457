package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(transitionCounterVec.WithLabelValues("idle", "prepareForCountdown"))
	Transition("idle", "prepareForCountdown")
	if got := testutil.ToFloat64(transitionCounterVec.WithLabelValues("idle", "prepareForCountdown")); got != before+1 {
		t.Errorf("transitions = %v, want %v", got, before+1)
	}

	okBefore := testutil.ToFloat64(shotCounterVec.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(shotCounterVec.WithLabelValues("error"))
	Shot(nil)
	Shot(errors.New("camera gone"))
	if testutil.ToFloat64(shotCounterVec.WithLabelValues("ok")) != okBefore+1 ||
		testutil.ToFloat64(shotCounterVec.WithLabelValues("error")) != errBefore+1 {
		t.Error("shot counters not split by status")
	}

	storedBefore := testutil.ToFloat64(storedCounterVec.WithLabelValues("published", "ok"))
	Stored("published", nil)
	if testutil.ToFloat64(storedCounterVec.WithLabelValues("published", "ok")) != storedBefore+1 {
		t.Error("stored counter not incremented")
	}
}

func TestHistogramsAndGauge(t *testing.T) {
	Compose(time.Now().Add(-time.Second), nil)
	Upload("composite", time.Now(), errors.New("502"))
	if n := testutil.CollectAndCount(composeDurationVec); n == 0 {
		t.Error("compose histogram has no series")
	}
	if n := testutil.CollectAndCount(uploadDurationVec); n == 0 {
		t.Error("upload histogram has no series")
	}

	Health(true)
	if testutil.ToFloat64(healthGauge) != 1 {
		t.Error("healthy backend should set gauge to 1")
	}
	Health(false)
	if testutil.ToFloat64(healthGauge) != 0 {
		t.Error("unhealthy backend should set gauge to 0")
	}
}
