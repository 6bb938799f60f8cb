package dispatch

import (
	"time"

	"github.com/shenikar/rescue_dispatch_system/internal/models"
)

// DefaultStaleTTL - время, после которого выезд считается завершенным
const DefaultStaleTTL = 1800 * time.Second

// IsStale - инцидент в статусе rescue_dispatched дольше ttl с момента dispatched_at
func IsStale(incident *models.Incident, ttl time.Duration, now time.Time) bool {
	if incident.Status != models.StatusRescueDispatched || incident.DispatchedAt == nil {
		return false
	}
	return now.Sub(*incident.DispatchedAt) >= ttl
}

// Reap переводит устаревший инцидент в closed. Проверка ленивая, выполняется при чтении.
// Возвращает true, если статус изменился и его нужно сохранить.
func Reap(incident *models.Incident, ttl time.Duration, now time.Time) bool {
	if !IsStale(incident, ttl, now) {
		return false
	}
	incident.Status = models.StatusClosed
	incident.UpdatedAt = now
	return true
}
