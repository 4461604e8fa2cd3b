// Package stats aggregates download timings per file, chunk size and peer
// count.
package stats

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Sample is one completed download
type Sample struct {
	File      string        `json:"file"`
	FileSize  int64         `json:"file_size"`
	ChunkSize int           `json:"chunk_size"`
	PeerCount int           `json:"peer_count"`
	Duration  time.Duration `json:"duration"`
}

// Summary aggregates the samples sharing a key. Mean and StdDev are in
// seconds.
type Summary struct {
	File      string  `json:"file"`
	FileSize  int64   `json:"file_size"`
	ChunkSize int     `json:"chunk_size"`
	PeerCount int     `json:"peer_count"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stddev"`
}

type key struct {
	file      string
	fileSize  int64
	chunkSize int
	peerCount int
}

// Recorder collects samples in memory
type Recorder struct {
	mu      sync.Mutex
	samples map[key][]time.Duration
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{samples: make(map[key][]time.Duration)}
}

// Record adds a sample
func (r *Recorder) Record(s Sample) {
	k := key{file: s.File, fileSize: s.FileSize, chunkSize: s.ChunkSize, peerCount: s.PeerCount}

	r.mu.Lock()
	r.samples[k] = append(r.samples[k], s.Duration)
	r.mu.Unlock()
}

// Summarize returns one row per key sorted by file, chunk size and peer count
func (r *Recorder) Summarize() []Summary {
	r.mu.Lock()
	rows := make([]Summary, 0, len(r.samples))
	for k, durations := range r.samples {
		mean, stddev := meanStdDev(durations)
		rows = append(rows, Summary{
			File:      k.file,
			FileSize:  k.fileSize,
			ChunkSize: k.chunkSize,
			PeerCount: k.peerCount,
			Count:     len(durations),
			Mean:      mean,
			StdDev:    stddev,
		})
	}
	r.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.FileSize != b.FileSize {
			return a.FileSize < b.FileSize
		}
		if a.ChunkSize != b.ChunkSize {
			return a.ChunkSize < b.ChunkSize
		}
		return a.PeerCount < b.PeerCount
	})
	return rows
}

// meanStdDev returns the mean and population standard deviation in seconds.
// The deviation of fewer than two samples is 0.
func meanStdDev(durations []time.Duration) (float64, float64) {
	n := float64(len(durations))
	if n == 0 {
		return 0, 0
	}

	var sum float64
	for _, d := range durations {
		sum += d.Seconds()
	}
	mean := sum / n
	if len(durations) < 2 {
		return mean, 0
	}

	var sq float64
	for _, d := range durations {
		diff := d.Seconds() - mean
		sq += diff * diff
	}
	return mean, math.Sqrt(sq / n)
}
