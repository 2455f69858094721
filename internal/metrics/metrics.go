package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики внешних денежных операций и исходов споров.
// Метрики по шлюзу помечаются операцией и результатом, чтобы ретраи
// и отказы процессора были видны в мониторинге отдельно от успехов.
var (
	GatewayOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Name:      "gateway_operations_total",
		Help:      "Обращения к платёжному шлюзу по операциям и результатам.",
	}, []string{"operation", "result"})

	DisputeResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "escrow",
		Name:      "dispute_resolutions_total",
		Help:      "Решения арбитра по действиям.",
	}, []string{"action"})

	MilestonesPaid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "escrow",
		Name:      "milestones_paid_total",
		Help:      "Количество успешно оплаченных этапов.",
	})
)

// ObserveGateway фиксирует результат обращения к шлюзу.
func ObserveGateway(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GatewayOperations.WithLabelValues(operation, result).Inc()
}
