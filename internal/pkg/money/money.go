package money

import (
	"fmt"
	"math"
)

// Суммы ходят по API как десятичные значения, но все сравнения выполняются
// в минорных единицах валюты, чтобы исключить дрейф округления float64.

// ToMinorUnits переводит сумму в минорные единицы (копейки/центы).
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Equal сравнивает две суммы с точностью до минорной единицы.
func Equal(a, b float64) bool {
	return ToMinorUnits(a) == ToMinorUnits(b)
}

// Sum складывает суммы в минорных единицах и возвращает результат
// в исходном представлении.
func Sum(amounts []float64) float64 {
	var total int64
	for _, a := range amounts {
		total += ToMinorUnits(a)
	}
	return float64(total) / 100
}

// SumEquals проверяет, что сумма набора в точности равна ожидаемому итогу.
// Сравнение идёт в минорных единицах, поэтому набор копеечных сумм не даёт
// ложного расхождения из-за float64.
func SumEquals(amounts []float64, total float64) bool {
	return Equal(Sum(amounts), total)
}

// ValidateAmount проверяет, что сумма неотрицательна и имеет не более
// двух знаков после запятой.
func ValidateAmount(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("сумма не может быть отрицательной")
	}
	scaled := amount * 100
	if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
		return fmt.Errorf("сумма должна иметь не более двух знаков после запятой")
	}
	return nil
}

// ValidatePositive проверяет, что сумма строго положительна и корректна.
func ValidatePositive(amount float64) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if ToMinorUnits(amount) <= 0 {
		return fmt.Errorf("сумма должна быть положительной")
	}
	return nil
}
