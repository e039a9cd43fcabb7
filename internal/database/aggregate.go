package database

import (
	"sort"
	"time"

	"github.com/xelth-com/eckscan/internal/models"
)

const (
	hourBucketLayout = "2006-01-02 15:00:00"
	dayBucketLayout  = "2006-01-02"
)

// summarize computes the window aggregate over events
func summarize(events []models.ScanEvent) models.ScanStatistics {
	var s models.ScanStatistics
	if len(events) == 0 {
		return s
	}
	codes := make(map[string]struct{}, len(events))
	var sumPT, sumConf float64
	for i, ev := range events {
		pt := float64(ev.ProcessingTimeMs)
		if i == 0 {
			s.MinProcessingTime, s.MaxProcessingTime = pt, pt
			s.MinConfidence, s.MaxConfidence = ev.Confidence, ev.Confidence
		}
		s.MinProcessingTime = min(s.MinProcessingTime, pt)
		s.MaxProcessingTime = max(s.MaxProcessingTime, pt)
		s.MinConfidence = min(s.MinConfidence, ev.Confidence)
		s.MaxConfidence = max(s.MaxConfidence, ev.Confidence)
		sumPT += pt
		sumConf += ev.Confidence
		codes[ev.Code] = struct{}{}
		if ev.Status == models.ScanStatusNew {
			s.Pending++
		}
	}
	s.TotalScans = int64(len(events))
	s.UniqueCodes = int64(len(codes))
	s.AvgProcessingTime = sumPT / float64(len(events))
	s.AvgConfidence = sumConf / float64(len(events))
	return s
}

// ScansPerHour divides count by the elapsed time between the first and
// last scan. With fewer than two scans, or no elapsed time, the whole
// count is reported as one hour's worth.
func ScansPerHour(count int64, first, last time.Time) float64 {
	elapsed := last.Sub(first).Seconds()
	if count < 2 || elapsed <= 0 {
		return float64(count)
	}
	return float64(count) * 3600 / elapsed
}

func performance(events []models.ScanEvent) models.PerformanceStats {
	p := models.PerformanceStats{ScanStatistics: summarize(events)}
	if len(events) == 0 {
		return p
	}
	first, last := events[0].ScanTime, events[0].ScanTime
	for _, ev := range events[1:] {
		if ev.ScanTime.Before(first) {
			first = ev.ScanTime
		}
		if ev.ScanTime.After(last) {
			last = ev.ScanTime
		}
	}
	p.FirstScan, p.LastScan = &first, &last
	p.ScansPerHour = ScansPerHour(p.TotalScans, first, last)
	return p
}

// bucketize groups events by formatted UTC time, newest bucket first
func bucketize(events []models.ScanEvent, layout string) []models.TimeBucket {
	groups := make(map[string][]models.ScanEvent)
	for _, ev := range events {
		key := ev.ScanTime.UTC().Format(layout)
		groups[key] = append(groups[key], ev)
	}
	out := make([]models.TimeBucket, 0, len(groups))
	for key, group := range groups {
		s := summarize(group)
		out = append(out, models.TimeBucket{
			Bucket:            key,
			TotalScans:        s.TotalScans,
			UniqueCodes:       s.UniqueCodes,
			MinProcessingTime: s.MinProcessingTime,
			AvgProcessingTime: s.AvgProcessingTime,
			MaxProcessingTime: s.MaxProcessingTime,
			AvgConfidence:     s.AvgConfidence,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket > out[j].Bucket })
	return out
}

// sourceStats groups by camera, most recently active first
func sourceStats(events []models.ScanEvent) []models.SourceStats {
	index := make(map[string]int)
	var out []models.SourceStats
	sums := make(map[string]float64)
	for _, ev := range events {
		i, ok := index[ev.SourceID]
		if !ok {
			i = len(out)
			index[ev.SourceID] = i
			out = append(out, models.SourceStats{CameraID: ev.SourceID})
		}
		out[i].TotalScans++
		if ev.ScanTime.After(out[i].LastScan) {
			out[i].LastScan = ev.ScanTime
		}
		sums[ev.SourceID] += float64(ev.ProcessingTimeMs)
	}
	for i := range out {
		out[i].AvgProcessingTime = sums[out[i].CameraID] / float64(out[i].TotalScans)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastScan.After(out[j].LastScan) })
	return out
}

// topProducts groups by product id and name; the reported code is the
// most recent one scanned for that product
func topProducts(events []models.ScanEvent, limit int) []models.ProductCount {
	type key struct{ id, name string }
	index := make(map[key]int)
	var out []models.ProductCount
	for _, ev := range events {
		k := key{ev.ProductID, ev.ProductName}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, models.ProductCount{ProductID: ev.ProductID, ProductName: ev.ProductName})
		}
		out[i].ScanCount++
		if !ev.ScanTime.Before(out[i].LastScan) {
			out[i].LastScan = ev.ScanTime
			out[i].QRCode = ev.Code
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ScanCount != out[j].ScanCount {
			return out[i].ScanCount > out[j].ScanCount
		}
		return out[i].LastScan.After(out[j].LastScan)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// inWindow reports whether ev matches the query filter
func inWindow(ev models.ScanEvent, q models.StatsQuery) bool {
	if q.CameraID != "" && ev.SourceID != q.CameraID {
		return false
	}
	return q.Since.IsZero() || !ev.ScanTime.Before(q.Since)
}

// sortNewestFirst orders by scan time then id, both descending
func sortNewestFirst(events []models.ScanEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].ScanTime.Equal(events[j].ScanTime) {
			return events[i].ScanTime.After(events[j].ScanTime)
		}
		return events[i].ID > events[j].ID
	})
}
