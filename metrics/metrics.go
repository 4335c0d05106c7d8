// Package metrics holds prometheus collectors for the text store.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors for store.Store operations.
var (
	TextSaveTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "textstore_save_total",
		Help: "Cumulative number of texts saved.",
	})
	TextSaveBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "textstore_save_bytes_total",
		Help: "Cumulative number of uncompressed bytes saved.",
	})
	TextCompressedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "textstore_compressed_bytes_total",
		Help: "Cumulative number of compressed bytes written.",
	})
	TextLoadTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "textstore_load_total",
		Help: "Cumulative number of text loads.",
	})
	DictTrainingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "textstore_dict_trainings_total",
		Help: "Cumulative number of dictionaries trained (per-partition and global).",
	})
	DictFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "textstore_dict_fallback_total",
		Help: "Cumulative number of decompressions which fell back to no dictionary because the tagged dictionary was missing.",
	})
	RecompressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "textstore_recompressed_total",
		Help: "Cumulative number of records re-compressed with a newer dictionary.",
	})
)

func init() {
	prometheus.MustRegister(
		TextSaveTotal,
		TextSaveBytesTotal,
		TextCompressedBytesTotal,
		TextLoadTotal,
		DictTrainingsTotal,
		DictFallbackTotal,
		RecompressedTotal,
	)
}
