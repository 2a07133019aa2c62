package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// WildcardETag — специальное значение If-Match, отключающее проверку
// конкурентных изменений. Публикация с ним безусловно перезаписывает шаблон.
const WildcardETag = "*"

// ErrInvalidDocument — тело шаблона не является JSON-объектом.
var ErrInvalidDocument = errors.New("invalid template document")

// Document — тело шаблона Remote Config.
//
// Схема шаблона принадлежит серверу, поэтому документ не типизируется:
// это произвольная JSON-структура (parameters, conditions, parameterGroups,
// version, ...), которая передаётся без изменений. Числа декодируются как
// json.Number, чтобы не терять точность при повторной сериализации.
type Document map[string]any

// Template — шаблон, полученный с сервера.
type Template struct {
	// Document — тело шаблона.
	Document Document `json:"template"`

	// ETag — токен конкурентного доступа, выданный сервером.
	// Передаётся в If-Match при следующей публикации.
	ETag string `json:"etag"`
}

// VersionNumber возвращает номер версии из тела шаблона (0, если его нет).
func (t *Template) VersionNumber() int64 {
	if t == nil {
		return 0
	}
	return t.Document.VersionNumber()
}

// DecodeDocument разбирает JSON-объект шаблона.
// Данные после объекта считаются ошибкой.
func DecodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: expected JSON object", ErrInvalidDocument)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidDocument)
	}

	return doc, nil
}

// Clone возвращает глубокую копию документа.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	clone, err := DecodeDocument(data)
	if err != nil {
		return nil
	}
	return clone
}

// Parameters возвращает секцию parameters (nil, если её нет).
func (d Document) Parameters() map[string]any {
	params, _ := d["parameters"].(map[string]any)
	return params
}

// Conditions возвращает секцию conditions (nil, если её нет).
func (d Document) Conditions() []any {
	conds, _ := d["conditions"].([]any)
	return conds
}

// VersionNumber извлекает version.versionNumber.
// Сервер кодирует int64 строкой, но документ мог быть отредактирован вручную.
func (d Document) VersionNumber() int64 {
	version, ok := d["version"].(map[string]any)
	if !ok {
		return 0
	}

	switch v := version["versionNumber"].(type) {
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case json.Number:
		n, _ := v.Int64()
		return n
	case float64:
		return int64(v)
	default:
		return 0
	}
}
