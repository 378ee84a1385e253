// Command raidlinesim spins up an in-memory RAID bus server, dials a
// raidline.Driver against it over real TCP, and drives a small demo
// workload: writes a few taglines, reads them back, optionally fails a
// disk (--fail-disk) and runs recovery, then prints cache and bus metrics.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ehrlich-b/raidline"
	"github.com/ehrlich-b/raidline/internal/bus"
	"github.com/ehrlich-b/raidline/internal/logging"
	"github.com/spf13/pflag"
)

func main() {
	var (
		disks         = pflag.Int("disks", raidline.DefaultDisks, "number of disks in the simulated array")
		blocksPerDisk = pflag.Int("blocks-per-disk", raidline.DefaultBlocksPerDisk, "blocks per disk")
		blockSize     = pflag.Int("block-size", raidline.DefaultBlockSize, "block size in bytes")
		verbose       = pflag.BoolP("verbose", "v", false, "verbose logging")
		failDisk      = pflag.Int("fail-disk", -1, "disk number to fail and recover from after the demo writes, or -1 to skip")
	)
	pflag.Parse()

	logLevel := logging.LevelInfo
	if *verbose {
		logLevel = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: logLevel, Output: os.Stderr})
	logging.SetDefault(logger)

	fake := bus.NewFake(*disks, *blocksPerDisk, *blockSize)
	srv, err := bus.NewServer("127.0.0.1:0", fake)
	if err != nil {
		logger.Errorf("start bus server: %v", err)
		os.Exit(1)
	}
	defer srv.Close()
	logger.Infof("bus server listening on %s", srv.Addr())

	metrics := raidline.NewMetrics()
	driver, err := raidline.Open(raidline.Config{
		Disks:         *disks,
		BlocksPerDisk: *blocksPerDisk,
		BlockSize:     *blockSize,
		BusAddr:       srv.Addr(),
		Logger:        logger,
		Observer:      raidline.NewMetricsObserver(metrics),
	})
	if err != nil {
		logger.Errorf("open driver: %v", err)
		os.Exit(1)
	}
	defer driver.Close()

	runDemo(logger, driver, *blockSize)

	if *failDisk >= 0 {
		logger.Infof("injecting fault on disk %d", *failDisk)
		fake.Fail(uint8(*failDisk))
		if err := driver.DiskSignal(); err != nil {
			logger.Errorf("recovery failed: %v", err)
		} else {
			logger.Infof("recovery completed for disk %d", *failDisk)
		}
	}

	snap := metrics.Snapshot()
	fmt.Printf("cache hit ratio: %.2f (%d hits / %d misses)\n", snap.CacheHitRatio, snap.CacheHits, snap.CacheMisses)
	fmt.Printf("bus calls: %d (%d errors)\n", snap.BusCalls, snap.BusErrors)
	fmt.Printf("disks recovered: %d, blocks rebuilt: %d\n", snap.DisksRecovered, snap.BlocksRebuilt)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	fmt.Println("demo complete, press Ctrl+C to exit")
	<-sigCh
}

func runDemo(logger *logging.Logger, d *raidline.Driver, blockSize int) {
	pattern := make([]byte, blockSize)
	for i := range pattern {
		pattern[i] = byte(i)
	}

	for tag := uint16(0); tag < 3; tag++ {
		if err := d.Write(tag, 0, 1, pattern); err != nil {
			logger.Errorf("write tagline %d: %v", tag, err)
			continue
		}
		if _, err := d.Read(tag, 0, 1); err != nil {
			logger.Errorf("read tagline %d: %v", tag, err)
		}
	}
	logger.Infof("wrote and read back %d taglines", 3)
}
