package domain

import "time"

// Version — неизменяемая запись о прошлом состоянии шаблона.
//
// Версия создаётся сервером при каждой успешной публикации или откате.
// Сервер удаляет версии старше 90 дней или если новее существует более 300
// версий, поэтому клиент не может рассчитывать на их бессрочное хранение.
type Version struct {
	// VersionNumber — монотонно растущий номер версии.
	// На проводе int64 передаётся строкой ("versionNumber": "6").
	VersionNumber int64 `json:"versionNumber,string"`

	// UpdateTime — время публикации версии.
	UpdateTime time.Time `json:"updateTime"`

	// UpdateUser — кто опубликовал версию.
	UpdateUser *User `json:"updateUser,omitempty"`

	// Description — описание изменения.
	Description string `json:"description,omitempty"`

	// UpdateOrigin — источник изменения (CONSOLE, REST_API, ADMIN_SDK_NODE, ...).
	UpdateOrigin string `json:"updateOrigin,omitempty"`

	// UpdateType — тип изменения (INCREMENTAL_UPDATE, FORCED_UPDATE, ROLLBACK).
	UpdateType string `json:"updateType,omitempty"`

	// RollbackSource — номер версии, к которой выполнялся откат (только для ROLLBACK).
	RollbackSource int64 `json:"rollbackSource,string,omitempty"`

	// IsLegacy — версия создана до появления истории версий.
	IsLegacy bool `json:"isLegacy,omitempty"`
}

// User — автор изменения.
type User struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// VersionList — страница истории версий.
type VersionList struct {
	// Versions — версии в порядке убывания номера.
	Versions []Version `json:"versions"`

	// NextPageToken — токен следующей страницы (пусто, если страниц больше нет).
	NextPageToken string `json:"nextPageToken,omitempty"`
}
