package mgmt

import (
	"net/http"

	tollbooth "github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
)

// newRegistrationLimiter builds a per-second rate limiter for the peer
// registration endpoint, the same tollbooth-backed shape as
// app/mgmt/throttling.go's Throttler, scaled down to the single endpoint
// this management server actually needs to protect (unsolicited peer
// registration is the one write path exposed here).
func newRegistrationLimiter(ratePerSecond float64, burst int) *limiter.Limiter {
	l := tollbooth.NewLimiter(ratePerSecond, nil).
		SetBurst(burst).
		SetStatusCode(http.StatusTooManyRequests).
		SetMessage("registration rate limit exceeded, please retry later").
		SetMessageContentType("text/plain")
	return l
}

// throttle wraps next with tollbooth's LimitByRequest check.
func throttle(l *limiter.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if httpErr := tollbooth.LimitByRequest(l, w, r); httpErr != nil {
			l.ExecOnLimitReached(w, r)
			w.Header().Add("Content-Type", l.GetMessageContentType())
			w.WriteHeader(httpErr.StatusCode)
			_, _ = w.Write([]byte(httpErr.Message))
			return
		}
		next(w, r)
	}
}
