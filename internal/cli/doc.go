// Package cli реализует команды rcctl.
//
// # Обзор
//
// rcctl управляет шаблоном Firebase Remote Config одного проекта.
// Основной цикл — чтение с ETag, правка локального файла и публикация
// с тем же ETag:
//
//	rcctl get                       # config.json + ETag
//	rcctl param rename --old a --new b
//	rcctl publish --etag etag-12    # отклоняется, если шаблон изменился
//
// # Ключевые компоненты
//
// ## Deps
//
// Зависимости команд: клиент API, файл шаблона, вывод, уведомления
// и подтверждение. Поля — замыкания, которые main заполняет после
// парсинга PersistentFlags и загрузки конфигурации. Тесты подставляют
// фейковый сервер (remoteconfigtest) и буферы вместо stdout/stderr.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Текст и таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: rcctl versions --json | jq .
//
// ## Commands
//
//   - get, publish, versions, rollback — операции с сервером
//   - param rename, condition set — правки локального файла
//
// Каждая команда создаётся фабричной функцией (NewGetCmd и т.д.).
// ExitCode переводит ошибку команды в код выхода процесса.
package cli
