package observability

import (
	"testing"
	"time"

	logs "github.com/danmuck/smplog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("worker-a", "GET", "/health", 200, 12*time.Millisecond)
	RecordWorkerRequest("LOCAL_EXECUTE", "responded", "", 2*time.Second)
	RecordNetworkRequest("program", false)

	logs.Info("observability/metrics: registration idempotent and recording paths executed")
}

func TestKeyCacheCounters(t *testing.T) {
	before := testutil.ToFloat64(keyCacheLookups.WithLabelValues("remote", "hit"))
	RecordKeyCacheLookup("remote", true)
	RecordKeyCacheLookup("remote", true)
	after := testutil.ToFloat64(keyCacheLookups.WithLabelValues("remote", "hit"))
	if after-before != 2 {
		t.Fatalf("unexpected hit delta: %v", after-before)
	}

	before = testutil.ToFloat64(keyCacheSyntheses.WithLabelValues("local"))
	RecordKeyCacheSynthesis("local")
	if got := testutil.ToFloat64(keyCacheSyntheses.WithLabelValues("local")) - before; got != 1 {
		t.Fatalf("unexpected synthesis delta: %v", got)
	}
}
