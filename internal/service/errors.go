package service

import (
	"errors"
	"fmt"

	"github.com/shenikar/dispatch_coordination_system/internal/changefeed"
)

var (
	// ErrConflict - нарушено условие перехода (например, назначение уже активно)
	ErrConflict = errors.New("conflict")
	// ErrUnavailable - поток изменений отключен или кеш еще не загружен
	ErrUnavailable = errors.New("change feed unavailable")
	// ErrNotFound - запись отсутствует в кеше
	ErrNotFound = errors.New("not found")
	// ErrPersistenceFailed - хранилище отклонило запись
	ErrPersistenceFailed = errors.New("persistence failed")
	// ErrInvalidInput - некорректные входные данные команды
	ErrInvalidInput = errors.New("invalid input")
)

// PersistenceError передает сообщение хранилища без изменений
type PersistenceError struct {
	Message string
	Err     error
}

func (e *PersistenceError) Error() string { return e.Message }

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistenceFailed }

// storeError приводит ошибку записи к таксономии сервиса.
// Конфликт и отсутствие строки в хранилище сохраняют смысл, остальное - PersistenceError.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
		return err
	case errors.Is(err, changefeed.ErrNotFound):
		return fmt.Errorf("%w: %w", err, ErrNotFound)
	default:
		return &PersistenceError{Message: err.Error(), Err: err}
	}
}

// outcome - значение метки для метрики команд
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
