// Package score maps a raw Sample to a 0–100 comfort score and label.
//
// Score(sample, cfg) is a pure function: each metric is clipped and linearly
// normalized between its configured min and max bound (download and upload
// directly, ping and jitter inversely), then combined with percentage
// weights that must sum to 100. Error samples yield no score at all.
//
// Label bands: very comfortable ≥90, comfortable 70–90, somewhat unstable
// 50–70, uncomfortable <50.
package score
