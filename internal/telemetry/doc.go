// Package telemetry обеспечивает наблюдаемость CLI.
//
// Включает:
//   - logging.go — structured logging через slog (в stderr)
//   - metrics.go — Prometheus метрики запросов к API и команд
//
// Метрики не экспортируются через /metrics: процесс короткоживущий,
// поэтому они отправляются в Pushgateway, если он настроен.
package telemetry
