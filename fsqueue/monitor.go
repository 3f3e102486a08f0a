package fsqueue

import (
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

// diskUsageWarnPercent is the fill level above which the collector starts
// warning that the queue volume is running out of space.
const diskUsageWarnPercent = 90.0

// diskMonitor periodically samples usage of the volume holding the queue
// working directory and publishes it via expvar. A queue that cannot write
// archives loses its durability guarantee, so operators want to see the
// volume filling up before Queue() starts returning fatal errors.
type diskMonitor struct {
	usagePercent *expvar.Float
	freeBytes    *expvar.Int
	path         string
	interval     time.Duration
	stopChan     chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func newDiskMonitor(path string, interval time.Duration, logger *slog.Logger) *diskMonitor {
	return &diskMonitor{
		usagePercent: publishExpvarFloat("fsqueue_disk_usage_percent"),
		freeBytes:    publishExpvarInt("fsqueue_disk_free_bytes"),
		path:         path,
		interval:     interval,
		stopChan:     make(chan struct{}),
		logger:       logger.With("component", "DiskMonitor"),
	}
}

// Start begins the background collection loop.
func (dm *diskMonitor) Start() {
	dm.logger.Info("Starting disk usage monitor", "path", dm.path, "interval", dm.interval)
	dm.wg.Add(1)
	go dm.collectLoop()
}

// Stop signals the collection loop to terminate and waits for it to finish.
func (dm *diskMonitor) Stop() {
	close(dm.stopChan)
	dm.wg.Wait()
}

func (dm *diskMonitor) collectLoop() {
	defer dm.wg.Done()
	ticker := time.NewTicker(dm.interval)
	defer ticker.Stop()

	// Take one reading immediately so short-lived queues still report.
	dm.collect()
	for {
		select {
		case <-ticker.C:
			dm.collect()
		case <-dm.stopChan:
			return
		}
	}
}

func (dm *diskMonitor) collect() {
	du, err := disk.Usage(dm.path)
	if err != nil {
		dm.logger.Warn("Failed to read disk usage", "path", dm.path, "error", err)
		return
	}
	dm.usagePercent.Set(du.UsedPercent)
	dm.freeBytes.Set(int64(du.Free))
	if du.UsedPercent >= diskUsageWarnPercent {
		dm.logger.Warn("Queue volume is nearly full",
			"path", dm.path,
			"used_percent", du.UsedPercent,
			"free_bytes", du.Free,
		)
	}
}

// publishExpvarInt safely publishes an expvar.Int, reusing an existing
// variable of the same name. Per-instance metrics need this because expvar
// panics on duplicate registration.
func publishExpvarInt(name string) *expvar.Int {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewInt(name)
	}
	if iv, ok := v.(*expvar.Int); ok {
		iv.Set(0)
		return iv
	}
	panic(fmt.Sprintf("expvar: trying to publish Int %s but variable already exists with different type %T", name, v))
}

// publishExpvarFloat safely publishes an expvar.Float.
func publishExpvarFloat(name string) *expvar.Float {
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewFloat(name)
	}
	if fv, ok := v.(*expvar.Float); ok {
		fv.Set(0.0)
		return fv
	}
	panic(fmt.Sprintf("expvar: trying to publish Float %s but variable already exists with different type %T", name, v))
}
