// Package templatefile хранит шаблон в локальном файле между get и publish.
//
// Файл — единственное локальное состояние: get записывает его, оператор
// редактирует, publish читает. Запись атомарна (временный файл + rename),
// поэтому неудачный get не оставляет частично записанный файл.
// При чтении допускаются комментарии и висячие запятые (JSONC).
package templatefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/shaiso/rcctl/internal/domain"
)

// ErrNotFound — файл шаблона не существует.
var ErrNotFound = errors.New("template file not found")

// Store — файл шаблона.
type Store struct {
	path string
}

// New создаёт Store для указанного пути.
func New(path string) *Store {
	return &Store{path: path}
}

// Path возвращает путь к файлу.
func (s *Store) Path() string {
	return s.path
}

// Read читает и разбирает документ.
func (s *Store) Read() (domain.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	doc, err := domain.DecodeDocument(jsonc.ToJSON(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

// Write атомарно заменяет содержимое файла документом.
func (s *Store) Write(doc domain.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: nothing to write", domain.ErrInvalidDocument)
	}

	// Выражения условий содержат &&, < и >: файл правят руками,
	// поэтому HTML-экранирование отключено.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}

	target, mode, err := s.target()
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Временный файл удаляется при любой ошибке до rename.
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}

	committed = true
	return nil
}

// target возвращает путь для rename и права нового файла.
// Симлинк разрешается, чтобы заменить файл, на который он указывает;
// права существующего файла сохраняются.
func (s *Store) target() (string, fs.FileMode, error) {
	path := s.path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", 0, fmt.Errorf("resolve %s: %w", s.path, err)
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		return path, info.Mode().Perm(), nil
	case errors.Is(err, fs.ErrNotExist):
		return path, 0o644, nil
	default:
		return "", 0, fmt.Errorf("stat %s: %w", path, err)
	}
}
