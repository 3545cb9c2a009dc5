package hg

import "github.com/mercury-hpc/mercury-go/na"

// MoreDataPending reports whether h is currently waiting on an out-of-band
// bulk transfer before its completion can fire. It is only meaningful
// between the moment a FlagMoreData header is decoded and the acquire
// callback's done continuation running (§4.4).
func (h *Handle) MoreDataPending() bool { return h.moreDataDone != nil }

// CancelMoreData is an escape hatch for an upper layer that decides an
// in-progress bulk fetch should be abandoned; it runs the same done
// continuation Forward's response path would have run, with status
// Canceled, exactly once.
func (h *Handle) CancelMoreData() {
	if h.moreDataDone == nil {
		return
	}
	done := h.moreDataDone
	h.moreDataDone = nil
	done(na.Canceled)
}
