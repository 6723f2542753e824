package sweep

import "snapsift/internal/classify"

// Bucket is a review destination under a sweep run directory.
type Bucket string

const (
	BucketDocuments Bucket = "documents"
	BucketToDelete  Bucket = "to_delete"
	BucketUnsure    Bucket = "unsure"
	BucketLowKeep   Bucket = "low_keep"
	BucketKeep      Bucket = "keep"
	BucketUnknown   Bucket = "unknown"
)

// reviewBuckets are the buckets whose contents move to final_deletion in
// phase 2. Keep never moves.
var reviewBuckets = []Bucket{BucketDocuments, BucketToDelete, BucketUnsure, BucketLowKeep, BucketUnknown}

// Thresholds tune bucket selection.
type Thresholds struct {
	Delete  float64
	Unsure  float64
	LowKeep float64
}

// DefaultThresholds returns the stock selection cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Delete: 0.60, Unsure: 0.50, LowKeep: 0.75}
}

// SelectBucket maps a verdict to its review bucket. Documents win over the
// decision; confident deletes and doubtful results go to review; confident
// keeps stay put.
func SelectBucket(result classify.Result, th Thresholds) Bucket {
	if result.PrimaryCategory == "document" {
		return BucketDocuments
	}
	switch {
	case result.Decision == classify.DecisionDelete && result.ConfidenceDelete >= th.Delete:
		return BucketToDelete
	case result.Decision == classify.DecisionUnsure || result.ConfidenceUnsure >= th.Unsure:
		return BucketUnsure
	case result.Decision == classify.DecisionKeep && result.ConfidenceKeep < th.LowKeep:
		return BucketLowKeep
	case result.Decision == classify.DecisionKeep:
		return BucketKeep
	default:
		return BucketUnknown
	}
}
