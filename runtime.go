package dolly

import (
	"sort"

	"go.uber.org/zap"

	"github.com/teranos/dolly/trip"
)

// Runtime is what every component borrows from its host: the scheduler that
// owns all waits, a logger and the trip handler that collects problems.
type Runtime struct {
	Scheduler Scheduler
	Logger    *zap.Logger
	Trips     *trip.Handler
}

func (r Runtime) withDefaults() Runtime {
	if r.Scheduler == nil {
		r.Scheduler = NoTimers{}
	}
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	if r.Trips == nil {
		r.Trips = trip.NewHandler("dolly", nil)
	}
	return r
}

// warn records t and logs it at Warn.
func (r Runtime) warn(t *trip.Trip) {
	r.Trips.Record(t)
	r.Logger.Warn(t.Message, tripFields(t)...)
}

func tripFields(t *trip.Trip) []zap.Field {
	keys := make([]string, 0, len(t.Context))
	for k := range t.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+2)
	fields = append(fields, zap.String("trip", t.Type), zap.Stringer("severity", t.Severity))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, t.Context[k]))
	}
	return fields
}
