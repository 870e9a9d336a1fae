package indicator

import "time"

// Point is one timestamped value.
type Point struct {
	TS    time.Time
	Value float64
}

// Track is an append-only ordered sequence of points.
type Track struct {
	points []Point
}

func (t *Track) append(ts time.Time, v float64) {
	t.points = append(t.points, Point{TS: ts, Value: v})
}

// setLast overwrites the newest point.
func (t *Track) setLast(ts time.Time, v float64) {
	t.points[len(t.points)-1] = Point{TS: ts, Value: v}
}

// Len returns the number of points.
func (t *Track) Len() int { return len(t.points) }

// At returns the newest value after dropping stepsBack points from the
// end, or 0 when nothing remains.
func (t *Track) At(stepsBack int) float64 {
	i := len(t.points) - 1 - stepsBack
	if stepsBack < 0 || i < 0 {
		return 0
	}
	return t.points[i].Value
}

// Last is At(0).
func (t *Track) Last() float64 { return t.At(0) }

// Values returns every value with stepsBack points dropped from the end.
func (t *Track) Values(stepsBack int) []float64 {
	n := len(t.points) - max(stepsBack, 0)
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = t.points[i].Value
	}
	return out
}

// Points returns a copy of the points with stepsBack dropped from the end.
func (t *Track) Points(stepsBack int) []Point {
	n := len(t.points) - max(stepsBack, 0)
	if n <= 0 {
		return nil
	}
	out := make([]Point, n)
	copy(out, t.points[:n])
	return out
}

// LastTS returns the timestamp of the newest point.
func (t *Track) LastTS() time.Time {
	if len(t.points) == 0 {
		return time.Time{}
	}
	return t.points[len(t.points)-1].TS
}

// Series is a dual-track indicator history.
//
// The formed tracks hold one point per closed bar. The forming tracks hold
// one committed point per closed bar plus, while a bar is in progress, a
// head point that each tick overwrites.
type Series struct {
	FormingValues Track
	FormingSlopes Track
	FormedValues  Track
	FormedSlopes  Track

	headLive bool
}

// setForming writes the live head of the forming tracks.
func (s *Series) setForming(ts time.Time, v, slope float64) {
	if s.headLive {
		s.FormingValues.setLast(ts, v)
		s.FormingSlopes.setLast(ts, slope)
		return
	}
	s.FormingValues.append(ts, v)
	s.FormingSlopes.append(ts, slope)
	s.headLive = true
}

// commit closes the head with (v, slope) and appends the formed point.
func (s *Series) commit(ts time.Time, v, slope float64) {
	s.setForming(ts, v, slope)
	s.headLive = false
	s.FormedValues.append(ts, v)
	s.FormedSlopes.append(ts, slope)
}

// seed appends a closed-bar point to all four tracks. Only valid when no
// head is live.
func (s *Series) seed(ts time.Time, v, slope float64) {
	s.FormingValues.append(ts, v)
	s.FormingSlopes.append(ts, slope)
	s.FormedValues.append(ts, v)
	s.FormedSlopes.append(ts, slope)
}
