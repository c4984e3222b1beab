package scheduler

// Package scheduler owns every time-triggered event transition: start and
// end timers armed inside a bounded lookahead window, periodic score
// refreshes for tracked events, and restart recovery for events already
// inside their window. Transitions are announced on the bus as will/did
// pairs.
