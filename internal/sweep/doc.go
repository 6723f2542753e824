// Package sweep turns cached verdicts into reviewable file moves. Phase 1
// copies flagged images into per-bucket directories under a dated run;
// phase 2 moves reviewed buckets into final_deletion. A SQLite journal
// records every action.
package sweep
