// Package mq публикует события об изменении шаблона в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ и единственный канал
//   - topology.go   — объявление topic exchange
//   - publisher.go  — формат сообщений и публикация
//   - notifier.go   — ленивое подключение и события шаблона
//
// Типы сообщений:
//   - template.published   — опубликована новая версия шаблона
//   - template.rolled_back — выполнен откат к прошлой версии
//
// Exchanges:
//   - remoteconfig.events (topic) — routing key совпадает с типом сообщения
package mq
