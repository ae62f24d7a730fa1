package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fgeck/gopgbackup/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	r := New()
	finished := time.Unix(1700000000, 0)

	r.RecordOperation(models.OperationBackup, "local", true, 3*time.Second, finished)
	r.RecordOperation(models.OperationBackup, "local", false, time.Second, finished.Add(time.Hour))
	r.RecordOperation(models.OperationRestoreRemote, "", false, time.Second, finished)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("backup", "local", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("backup", "local", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("restore_remote", "none", "failure")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(r.lastSuccess.WithLabelValues("backup")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestRecordArtifactAndUpload(t *testing.T) {
	r := New()

	r.RecordArtifact(4096)
	r.RecordUpload("s3", true)
	r.RecordUpload("s3", false)

	assert.Equal(t, 4096.0, testutil.ToFloat64(r.artifactSize))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.uploads.WithLabelValues("s3", "failure")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordOperation(models.OperationBackup, "container", true, 2*time.Second, time.Now())
	path := filepath.Join(t.TempDir(), "gopgbackup.prom")

	require.NoError(t, r.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, `gopgbackup_operations_total{operation="backup",status="success",strategy="container"} 1`)
	assert.Contains(t, text, "gopgbackup_operation_duration_seconds_bucket")
	assert.True(t, strings.Contains(text, "# HELP gopgbackup_artifact_size_bytes"))
}

func TestWriteTextfile_BadDirectory(t *testing.T) {
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))

	assert.ErrorContains(t, err, "failed to write metrics textfile")
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()

	a.RecordUpload("gcs", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.uploads.WithLabelValues("gcs", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.uploads.WithLabelValues("gcs", "success")))
}
