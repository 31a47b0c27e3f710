package observability

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ResourceUsage is a point in time view of the process.
type ResourceUsage struct {
	CPUUserSeconds   float64
	CPUSystemSeconds float64
	RSSBytes         uint64
	Threads          int32
	Goroutines       int
	HeapAllocBytes   uint64
}

// MarshalLogObject lets the snapshot be logged with zap.Object.
func (u ResourceUsage) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddFloat64("cpu_user_seconds", u.CPUUserSeconds)
	enc.AddFloat64("cpu_system_seconds", u.CPUSystemSeconds)
	enc.AddUint64("rss_bytes", u.RSSBytes)
	enc.AddInt32("threads", u.Threads)
	enc.AddInt("goroutines", u.Goroutines)
	enc.AddUint64("heap_alloc_bytes", u.HeapAllocBytes)
	return nil
}

// Snapshot reads the current resource usage of this process.
func Snapshot() (ResourceUsage, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	usage := ResourceUsage{
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return usage, fmt.Errorf("failed to inspect process: %w", err)
	}
	if times, err := proc.Times(); err == nil {
		usage.CPUUserSeconds = times.User
		usage.CPUSystemSeconds = times.System
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		usage.RSSBytes = mem.RSS
	}
	usage.Threads, _ = proc.NumThreads()
	return usage, nil
}

// LogSnapshot logs the resource usage at debug level.
func LogSnapshot(logger *zap.Logger) {
	if !logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	usage, err := Snapshot()
	if err != nil {
		logger.Debug("resource snapshot incomplete", zap.Error(err))
	}
	logger.Debug("resource usage", zap.Object("resources", usage))
}
