// Package edit содержит локальные правки шаблона: переименование параметра
// и добавление/замену условия. Пакет работает только с документом и не
// обращается к серверу; изменения уходят на сервер обычным publish.
package edit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"strings"

	"github.com/shaiso/rcctl/internal/domain"
)

// Ошибки правок.
var (
	// ErrParameterNotFound — параметра с таким именем нет.
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrParameterExists — параметр с новым именем уже существует.
	ErrParameterExists = errors.New("parameter already exists")

	// ErrInvalidCondition — условие не является допустимым JSON-объектом.
	ErrInvalidCondition = errors.New("invalid condition")
)

// ConditionKeys — допустимые поля условия.
var ConditionKeys = []string{"name", "expression", "tagColor"}

// ConditionResult — что произошло с условием.
type ConditionResult string

const (
	ConditionUnchanged ConditionResult = "unchanged"
	ConditionUpdated   ConditionResult = "updated"
	ConditionCreated   ConditionResult = "created"
)

// RenameParameter переименовывает параметр oldName в newName.
//
// Параметр ищется в секции parameters, затем в parameterGroups.
// Новое имя не должно встречаться ни в одной из секций.
func RenameParameter(doc domain.Document, oldName, newName string) error {
	if oldName == "" || newName == "" {
		return fmt.Errorf("%w: parameter names must not be empty", ErrParameterNotFound)
	}
	if oldName == newName {
		return nil
	}

	sections := parameterSections(doc)
	for _, params := range sections {
		if _, ok := params[newName]; ok {
			return fmt.Errorf("%w: %s", ErrParameterExists, newName)
		}
	}

	for _, params := range sections {
		if value, ok := params[oldName]; ok {
			delete(params, oldName)
			params[newName] = value
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrParameterNotFound, oldName)
}

// parameterSections возвращает parameters и parameters каждой группы.
func parameterSections(doc domain.Document) []map[string]any {
	var sections []map[string]any
	if params := doc.Parameters(); params != nil {
		sections = append(sections, params)
	}

	groups, _ := doc["parameterGroups"].(map[string]any)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		group, _ := groups[name].(map[string]any)
		if params, ok := group["parameters"].(map[string]any); ok {
			sections = append(sections, params)
		}
	}
	return sections
}

// ParseCondition разбирает условие из JSON и проверяет набор полей.
func ParseCondition(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var cond map[string]any
	if err := dec.Decode(&cond); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	if cond == nil {
		return nil, fmt.Errorf("%w: expected JSON object", ErrInvalidCondition)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidCondition)
	}

	var unknown []string
	for key := range cond {
		if !slices.Contains(ConditionKeys, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("%w: unknown keys %s (allowed: %s)",
			ErrInvalidCondition, strings.Join(unknown, ", "), strings.Join(ConditionKeys, ", "))
	}

	name, _ := cond["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidCondition)
	}

	return cond, nil
}

// SetCondition добавляет условие или заменяет условие с тем же именем.
func SetCondition(doc domain.Document, cond map[string]any) ConditionResult {
	name, _ := cond["name"].(string)
	conditions := doc.Conditions()

	for i, existing := range conditions {
		current, ok := existing.(map[string]any)
		if !ok || current["name"] != name {
			continue
		}
		if reflect.DeepEqual(current, cond) {
			return ConditionUnchanged
		}
		conditions[i] = cond
		return ConditionUpdated
	}

	doc["conditions"] = append(conditions, cond)
	return ConditionCreated
}
