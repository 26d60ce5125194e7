package prom

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

const evid = "m@1#chunk_policy=v1#norm=l2#spec_control=full_description-none"

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()
	r.VectorsWritten(evid, domain.ChunkTypeClaim1, 16)
	r.VectorsWritten(evid, domain.ChunkTypeClaim1, 4)
	r.VectorsWritten(evid, domain.ChunkTypeSpec, 20)
	r.GateEvaluated(evid, domain.GateResult{Name: domain.GateCountEquality, Outcome: domain.GatePass})
	r.GateEvaluated(evid, domain.GateResult{Name: domain.GateResourceProfile, Outcome: domain.GateFail})
	r.BuildFinished(evid, domain.BuildFailed, 3*time.Second)

	assert.Equal(t, 20.0, testutil.ToFloat64(r.vectors.WithLabelValues(evid, "claim_1")))
	assert.Equal(t, 20.0, testutil.ToFloat64(r.vectors.WithLabelValues(evid, "spec")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.gates.WithLabelValues(evid, "resource_profile", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.builds.WithLabelValues(evid, "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.buildDuration))
}

func TestRecorder_Flush(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder()
	r.BuildFinished(evid, domain.BuildPromoted, time.Second)

	require.NoError(t, r.Flush(dir))
	data, err := os.ReadFile(filepath.Join(dir, TextfileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `patentgov_builds_total{embedding_version_id="`+evid+`",status="promoted"} 1`)
	assert.Contains(t, string(data), "patentgov_build_duration_seconds_count")

	assert.Error(t, r.Flush(filepath.Join(dir, "absent")))
}
