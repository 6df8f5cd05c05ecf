package delaycheck

import (
	"time"

	"github.com/BearBump/ShipAlert/internal/models"
)

const missingDatesError = "Missing delivery date information"

// Evaluate — чистая функция: снапшот -> вердикт. Без I/O и без состояния,
// можно звать конкурентно.
//
// Правило приоритета: явный статус перевозчика (DELAYED/EXCEPTION) всегда
// сильнее арифметики дат; сравнение дат — fallback для неоднозначных
// статусов (IN_TRANSIT, PENDING, UNKNOWN).
func Evaluate(s models.TrackingSnapshot) models.DelayVerdict {
	if s.EstimatedDeliveryDate == nil || s.OriginalEstimatedDeliveryDate == nil {
		e := missingDatesError
		return models.DelayVerdict{
			IsDelayed: false,
			DelayDays: 0,
			Reason:    models.DelayReasonMissingData,
			Error:     &e,
		}
	}

	diff := daysBetween(*s.OriginalEstimatedDeliveryDate, *s.EstimatedDeliveryDate)

	switch s.Status {
	case models.TrackingStatusDelayed:
		// Статус авторитетен даже при равных датах (delayDays может быть 0).
		return models.DelayVerdict{IsDelayed: true, DelayDays: diff, Reason: models.DelayReasonDelayedStatus}
	case models.TrackingStatusException:
		return models.DelayVerdict{IsDelayed: true, DelayDays: diff, Reason: models.DelayReasonExceptionStatus}
	}

	if diff > 0 {
		return models.DelayVerdict{IsDelayed: true, DelayDays: diff, Reason: models.DelayReasonDateSlip}
	}

	return models.DelayVerdict{IsDelayed: false, DelayDays: 0, Reason: models.DelayReasonNone}
}

// daysBetween считает календарные дни от from до to, усечение (не округление).
// Отрицательную разницу (оценку перенесли вперёд) задержкой не считаем -> 0.
func daysBetween(from, to time.Time) int {
	d := int(to.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
