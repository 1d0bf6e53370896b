package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RepairMetrics counts share repair outcomes.
type RepairMetrics struct {
	sharesDeleted  prometheus.Counter
	sharesFixed    prometheus.Counter
	sharesSkipped  prometheus.Counter
	storagesPurged prometheus.Counter
	notifications  *prometheus.CounterVec
}

var (
	repairMetrics     *RepairMetrics
	repairMetricsOnce sync.Once
)

// NewRepairMetrics returns the repair metrics on the global registry, or nil
// when metrics are disabled. The counters are registered on the first call
// and shared by later ones.
func NewRepairMetrics() *RepairMetrics {
	if !IsEnabled() {
		return nil
	}
	repairMetricsOnce.Do(func() {
		repairMetrics = newRepairMetrics(GetRegistry())
	})
	return repairMetrics
}

func newRepairMetrics(reg prometheus.Registerer) *RepairMetrics {
	return &RepairMetrics{
		sharesDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sharebox_orphan_shares_deleted_total",
			Help: "Orphan shares deleted",
		}),
		sharesFixed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sharebox_share_owners_fixed_total",
			Help: "Shares reassigned to a new owner",
		}),
		sharesSkipped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sharebox_share_owners_unfixable_total",
			Help: "Invalid shares left alone because no owner candidate was found",
		}),
		storagesPurged: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "sharebox_remote_storages_deleted_total",
			Help: "Remote share storages deleted",
		}),
		notifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "sharebox_expiration_notifications_total",
			Help: "Share expiration notifications by outcome",
		}, []string{"outcome"}),
	}
}

// RecordDeleted adds n deleted orphan shares.
func (m *RepairMetrics) RecordDeleted(n int) {
	if m == nil {
		return
	}
	m.sharesDeleted.Add(float64(n))
}

// RecordFixed counts one reassigned share.
func (m *RepairMetrics) RecordFixed() {
	if m == nil {
		return
	}
	m.sharesFixed.Inc()
}

// RecordSkipped counts one share without an owner candidate.
func (m *RepairMetrics) RecordSkipped() {
	if m == nil {
		return
	}
	m.sharesSkipped.Inc()
}

// RecordStoragesDeleted adds n deleted remote storages.
func (m *RepairMetrics) RecordStoragesDeleted(n int) {
	if m == nil {
		return
	}
	m.storagesPurged.Add(float64(n))
}

// RecordNotification counts one expiration notification with its outcome,
// such as "sent", "skipped" or "failed".
func (m *RepairMetrics) RecordNotification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}
