// Package aggregate rolls scored samples up into the views a report shows.
//
// Scoring happens here, lazily, from raw samples and an explicit
// score.Config; nothing derived is ever stored. Every rollup keeps the
// three-valued nature of a bucket intact:
//
//   - CellScored: at least one ok sample, MeanScore is their mean
//   - CellAllErrors: samples exist but all failed
//   - CellNoData: no samples at all
//
// Error samples are counted but never averaged, so one ok sample scoring 80
// next to two failures yields a bucket mean of 80, not 26.7.
//
// All hour-of-day and date decisions use the facility location in Options,
// never the timestamp's own zone.
package aggregate
