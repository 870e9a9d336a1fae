// Package candle holds bar history and the pure bar transforms built on it:
// Heikin-Ashi smoothing, bar colors, moves (runs of same-colored bars) and
// true range.
//
// Functions taking a "back" argument count from the most recent bar:
// back == 1 is the last bar, back == 2 the one before it.
package candle
