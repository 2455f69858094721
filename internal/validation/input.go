package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/money"
)

// Константы валидации
const (
	MinProjectTitleLength       = 3
	MaxProjectTitleLength       = 200
	MinMilestoneTitleLength     = 3
	MaxMilestoneTitleLength     = 200
	MinMilestoneDescription     = 5
	MaxMilestoneDescription     = 5000
	MaxMilestonesPerProject     = 50
	MinDisputeDescriptionLength = 10
	MaxDisputeDescriptionLength = 10000
	MaxReasonLength             = 2000
	MaxNoteLength               = 10000
	MaxAmount                   = 100000000.0 // 100 миллионов
)

// ValidateLength проверяет длину строки в рунах.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(strings.TrimSpace(value))
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateProjectTitle проверяет название проекта.
func ValidateProjectTitle(title string) error {
	return ValidateLength("название проекта", title, MinProjectTitleLength, MaxProjectTitleLength)
}

// ValidateCurrency проверяет код валюты (ISO 4217, три буквы).
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("код валюты должен состоять из трёх букв")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("код валюты должен состоять из заглавных латинских букв")
		}
	}
	return nil
}

// ValidateMilestoneDraft проверяет один предлагаемый этап.
// Индекс нужен, чтобы в ошибке была видна конкретная позиция в наборе.
func ValidateMilestoneDraft(idx int, d models.MilestoneDraft, now time.Time) error {
	if err := ValidateLength("название этапа", d.Title, MinMilestoneTitleLength, MaxMilestoneTitleLength); err != nil {
		return fmt.Errorf("этап %d: %w", idx+1, err)
	}
	if err := ValidateLength("описание этапа", d.Description, MinMilestoneDescription, MaxMilestoneDescription); err != nil {
		return fmt.Errorf("этап %d: %w", idx+1, err)
	}
	// Нулевые этапы запрещены на всех уровнях: здесь, в привязке DTO
	// и ограничением CHECK (amount > 0) в схеме.
	if err := money.ValidatePositive(d.Amount); err != nil {
		return fmt.Errorf("этап %d: %w", idx+1, err)
	}
	if d.Amount > MaxAmount {
		return fmt.Errorf("этап %d: сумма превышает допустимый максимум", idx+1)
	}
	if d.DueDate.Before(now.Truncate(24 * time.Hour)) {
		return fmt.Errorf("этап %d: срок не может быть в прошлом", idx+1)
	}
	return nil
}

// ValidateMilestoneSet проверяет весь предлагаемый набор этапов.
func ValidateMilestoneSet(drafts []models.MilestoneDraft, now time.Time) error {
	if len(drafts) == 0 {
		return fmt.Errorf("набор этапов не может быть пустым")
	}
	if len(drafts) > MaxMilestonesPerProject {
		return fmt.Errorf("слишком много этапов, максимум %d", MaxMilestonesPerProject)
	}
	for i, d := range drafts {
		if err := ValidateMilestoneDraft(i, d, now); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDisputeReason проверяет категорию спора.
func ValidateDisputeReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("причина спора обязательна")
	}
	if _, ok := models.ValidDisputeReasons[reason]; !ok {
		return fmt.Errorf("неизвестная причина спора: %s", reason)
	}
	return nil
}

// ValidateDisputeDescription проверяет описание спора.
func ValidateDisputeDescription(description string) error {
	return ValidateLength("описание спора", description, MinDisputeDescriptionLength, MaxDisputeDescriptionLength)
}

// ValidateRejectReason проверяет причину возврата этапа на доработку.
// Пустая причина запрещена: история сдач — единственный аудиторский след
// для будущего арбитра.
func ValidateRejectReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("причина возврата на доработку обязательна")
	}
	return ValidateLength("причина возврата", reason, 1, MaxReasonLength)
}
