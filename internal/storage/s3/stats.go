package s3

import (
	"sync"
	"time"
)

// TransferSnapshot is a point-in-time copy of transfer statistics.
type TransferSnapshot struct {
	Uploads           int64         `json:"uploads"`
	MultipartUploads  int64         `json:"multipart_uploads"`
	Downloads         int64         `json:"downloads"`
	Errors            int64         `json:"errors"`
	BytesUploaded     int64         `json:"bytes_uploaded"`
	BytesDownloaded   int64         `json:"bytes_downloaded"`
	BackgroundStarted int64         `json:"background_started"`
	BackgroundPending int64         `json:"background_pending"`
	AverageLatency    time.Duration `json:"average_latency"`
	LastError         string        `json:"last_error"`
	LastErrorTime     time.Time     `json:"last_error_time"`
}

// TransferStats accumulates transfer statistics for one transfer manager.
type TransferStats struct {
	mu       sync.RWMutex
	requests int64
	snapshot TransferSnapshot
}

// NewTransferStats creates an empty collector.
func NewTransferStats() *TransferStats {
	return &TransferStats{}
}

// RecordUpload records a finished upload.
func (s *TransferStats) RecordUpload(duration time.Duration, size int64, multipart bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordLatency(duration)
	if err != nil {
		s.recordError(err)
		return
	}
	s.snapshot.Uploads++
	s.snapshot.BytesUploaded += size
	if multipart {
		s.snapshot.MultipartUploads++
	}
}

// RecordDownload records a finished download.
func (s *TransferStats) RecordDownload(duration time.Duration, size int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recordLatency(duration)
	if err != nil {
		s.recordError(err)
		return
	}
	s.snapshot.Downloads++
	s.snapshot.BytesDownloaded += size
}

// RecordBackgroundStart counts an accepted background upload.
func (s *TransferStats) RecordBackgroundStart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.BackgroundStarted++
	s.snapshot.BackgroundPending++
}

// RecordBackgroundDone counts a finished background upload.
func (s *TransferStats) RecordBackgroundDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.BackgroundPending--
}

// Snapshot returns current statistics
func (s *TransferStats) Snapshot() TransferSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// ErrorRate returns the share of transfers that failed.
func (s *TransferStats) ErrorRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.requests == 0 {
		return 0
	}
	return float64(s.snapshot.Errors) / float64(s.requests)
}

// recordLatency keeps an exponentially weighted average of transfer latency.
func (s *TransferStats) recordLatency(duration time.Duration) {
	s.requests++
	if s.requests == 1 {
		s.snapshot.AverageLatency = duration
		return
	}
	s.snapshot.AverageLatency = time.Duration(
		(int64(s.snapshot.AverageLatency)*9 + int64(duration)) / 10,
	)
}

func (s *TransferStats) recordError(err error) {
	s.snapshot.Errors++
	s.snapshot.LastError = err.Error()
	s.snapshot.LastErrorTime = time.Now()
}
