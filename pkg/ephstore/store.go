package ephstore

import "math"

// Store is a time-ordered ephemeris sequence for one constellation, plus a
// secondary per-SVN ordering (spec.md §3 "Constellation store", §9 design
// note: "a Vec<Vec<Arc<Eph>>> with SVN as outer index"). Both orderings are
// insertion-sorted by T0c, duplicates (same SVN, T0e) are silently dropped,
// matching the original GPS::addEphemeris/nearestEphemeris behaviour.
type Store struct {
	all    []Eph
	bySVN  map[int][]Eph
}

// NewStore returns an empty constellation store.
func NewStore() *Store {
	return &Store{bySVN: make(map[int][]Eph)}
}

// Add inserts eph into the store. Duplicates keyed on (SVN, T0e) are
// rejected and Add reports false. Both sequences are maintained
// insertion-sorted by T0c by linear scan (spec.md §4.2).
func (s *Store) Add(eph Eph) bool {
	svnList := s.bySVN[eph.SVN()]
	for _, e := range svnList {
		if e.T0e() == eph.T0e() {
			return false // duplicate, silently dropped
		}
	}

	insertSorted(&s.all, eph)
	svnList = insertSortedCopy(svnList, eph)
	s.bySVN[eph.SVN()] = svnList
	return true
}

func insertSorted(list *[]Eph, eph Eph) {
	l := *list
	for i, e := range l {
		if eph.T0c() < e.T0c() {
			l = append(l, nil)
			copy(l[i+1:], l[i:])
			l[i] = eph
			*list = l
			return
		}
	}
	*list = append(l, eph)
}

func insertSortedCopy(l []Eph, eph Eph) []Eph {
	insertSorted(&l, eph)
	return l
}

// Len returns the number of ephemerides in the store.
func (s *Store) Len() int { return len(s.all) }

// All returns the time-ordered (by T0c) ephemeris sequence.
func (s *Store) All() []Eph { return s.all }

// ForSVN returns the T0c-ordered ephemeris sequence for a single SVN.
func (s *Store) ForSVN(svn int) []Eph { return s.bySVN[svn] }

// Nearest scans the per-SVN list for the ephemeris with the smallest
// non-negative (T0e - tow) within +/-0.1 day, treating T0e-tow < -5 days as
// a week rollover (+7 days ahead). Ephemerides whose URA exceeds maxURA
// (metres) are excluded even if otherwise nearest (spec.md §4.2). maxURA
// <= 0 disables the filter.
func (s *Store) Nearest(svn int, tow float64, maxURA float64) Eph {
	list := s.bySVN[svn]
	if len(list) == 0 {
		return nil
	}

	var best Eph
	var bestDT float64

	for _, e := range list {
		dt := e.T0e() - tow
		if dt < -5*86400 {
			dt += 7 * 86400
		}
		if dt < 0 || math.Abs(dt) >= 0.1*86400 {
			continue
		}
		if maxURA > 0 {
			if g, ok := e.(*GPSEph); ok && g.URA() > maxURA {
				continue
			}
		}
		if best == nil || math.Abs(dt) < bestDT {
			best = e
			bestDT = math.Abs(dt)
		}
	}
	return best
}

// FixWeekRollovers detects a break in the T0c ordering (two consecutive
// entries more than 5 days apart) and rotates the prefix before the break to
// the end of the list, repairing the effect of an ephemeris for the next (or
// previous) GPS week being logged mid-stream (spec.md §4.2). Reports whether
// a rollover was fixed.
func (s *Store) FixWeekRollovers() bool {
	if len(s.all) <= 1 {
		return false
	}
	tocLast := s.all[0].T0c()
	for i := 1; i < len(s.all); i++ {
		if math.Abs(s.all[i].T0c()-tocLast) > 5*86400 {
			rotated := make([]Eph, 0, len(s.all))
			rotated = append(rotated, s.all[i:]...)
			rotated = append(rotated, s.all[:i]...)
			s.all = rotated
			return true
		}
		tocLast = s.all[i].T0c()
	}
	return false
}

// DeleteAll clears the store.
func (s *Store) DeleteAll() {
	s.all = nil
	s.bySVN = make(map[int][]Eph)
}
