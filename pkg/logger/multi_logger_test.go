package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewMultiLogger_RequiresDir(t *testing.T) {
	_, err := NewMultiLogger(MultiLoggerConfig{})
	assert.Error(t, err)
}

func TestMultiLogger_CategoriesAndReader(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogJobEvent("job_submitted", zap.String("job_id", "abc"))
	ml.LogJobEvent("job_succeeded", zap.String("job_id", "def"))
	ml.LogAppError("cleanup failed", zap.String("path", "/tmp/x"))
	ml.Error().Info("below error level is dropped")

	pl, err := ml.OpenProcessLog()
	require.NoError(t, err)
	pl.WriteLine("[download]  42.0% of 10.00MiB")
	pl.WriteLine(`{"not":"parsed"}`)
	require.NoError(t, pl.Close())
	require.NoError(t, ml.Close())

	today := time.Now()
	for _, c := range Categories {
		_, err := os.Stat(filepath.Join(dir, string(c)+"-"+today.Format("20060102")+".log"))
		assert.NoError(t, err, string(c))
	}

	reader := NewLogReader(dir)

	jobs, err := reader.ReadLogs(CategoryJob, today, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job_submitted", jobs[0].Message)
	assert.Equal(t, "info", jobs[0].Level)
	assert.Equal(t, "abc", jobs[0].Fields["job_id"])

	last, err := reader.ReadLogs(CategoryJob, today, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "job_succeeded", last[0].Message)

	errs, err := reader.ReadLogs(CategoryError, today, 0)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "cleanup failed", errs[0].Message)

	proc, err := reader.ReadLogs(CategoryProcess, today, 0)
	require.NoError(t, err)
	require.Len(t, proc, 2)
	assert.Equal(t, `{"not":"parsed"}`, proc[1].Message)
	assert.Empty(t, proc[1].Fields)

	found, err := reader.SearchLogs(CategoryJob, today, "DEF", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "job_succeeded", found[0].Message)

	dates, err := reader.ListDates(CategoryJob)
	require.NoError(t, err)
	assert.Equal(t, []string{today.Format("20060102")}, dates)
}

func TestLogReader_MissingFile(t *testing.T) {
	entries, err := NewLogReader(t.TempDir()).ReadLogs(CategoryJob, time.Now(), 10)

	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory("process"))
	assert.False(t, ValidCategory("queue"))
	assert.False(t, ValidCategory("../etc"))
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(Config{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	l.Info("hello")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
