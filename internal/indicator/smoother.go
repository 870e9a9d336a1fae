package indicator

// Smoother is a Wilder-style running smoother whose effective window ramps
// up from 1 to window, so the first samples produce a plain running mean.
//
//	smoothed = (prev*(w-1) + x) / w,  w = min(window, n+1)
type Smoother struct {
	window int
	track  Track
}

// NewSmoother creates a smoother over the given window.
func NewSmoother(window int) *Smoother {
	return &Smoother{window: max(window, 1)}
}

// Next returns the smoothed value for x without storing it.
func (s *Smoother) Next(x float64) float64 {
	n := s.track.Len()
	if n == 0 {
		return x
	}
	w := float64(min(s.window, n+1))
	return (s.track.Last()*(w-1) + x) / w
}

// Push smooths x, records the result and returns it.
func (s *Smoother) Push(p Point) float64 {
	v := s.Next(p.Value)
	s.track.append(p.TS, v)
	return v
}

// Track exposes the smoothed history.
func (s *Smoother) Track() *Track { return &s.track }

// Len returns the number of smoothed samples.
func (s *Smoother) Len() int { return s.track.Len() }
