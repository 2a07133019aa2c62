// Package remoteconfig реализует клиент Firebase Remote Config REST API.
//
// # Операции
//
//   - Get / GetVersion — чтение шаблона и его ETag
//   - Publish          — запись шаблона с If-Match
//   - ListVersions     — история версий (по умолчанию 5 последних)
//   - Rollback         — откат к версии
//
// # ETag
//
// Сервер выдаёт ETag только на запросы с Accept-Encoding: gzip, поэтому
// клиент всегда запрашивает сжатый ответ и распаковывает его сам.
// Публикация передаёт ETag в If-Match: устаревший токен сервер отклоняет,
// клиент возвращает ErrConflict. Значение "*" отключает проверку.
//
// # Ошибки
//
// Ответы не-2xx разбираются через googleapi.CheckResponse и возвращаются
// как *APIError, который разворачивается в одну из ошибок пакета:
//
//	if errors.Is(err, remoteconfig.ErrConflict) {
//		// перечитать шаблон и повторить
//	}
//
// Повторов нет: при сетевой ошибке оператор перезапускает команду.
package remoteconfig
