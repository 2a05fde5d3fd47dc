// Package render turns an aggregate.Report into a PNG image and a plain-text
// summary.
//
// Heatmap cells use a red-yellow-green scale for scored buckets, dark slate
// for hours where every attempt failed and light gray with "-" for hours with
// no samples at all. Drawing is done directly on an image.RGBA with the
// x/image bitmap font, so the binary needs no system fonts or cgo.
package render
