package service

import (
	"errors"
	"strings"

	"courtflow/internal/remote"
)

// Validation errors raised before any backend call is made.
var (
	ErrInvalidDuration = errors.New("duration must be 60, 90 or 120 minutes")
	ErrPastDate        = errors.New("date is in the past")
	ErrDateTooFar      = errors.New("date is beyond the booking window")
	ErrNoSelection     = errors.New("no slot selected")
	ErrNoHold          = errors.New("no active hold")
	ErrSlotUnavailable = errors.New("slot is not in the offered availability")
)

// User-facing messages. The product speaks Spanish; internal errors
// and logs stay in English.
const (
	MsgSlotTaken       = "Este horario acaba de ser reservado por otra persona. Elige otro horario."
	MsgSlotUnavailable = "Este horario no está disponible. Elige un horario de la lista."
	MsgHoldExpired     = "Tu reserva temporal expiró. Selecciona el horario nuevamente."
	MsgBackendDown     = "No pudimos conectar con el servidor. Intenta de nuevo en unos segundos."
	MsgSessionExpired  = "Tu sesión expiró. Inicia sesión nuevamente."
	MsgAmountTooSmall  = "El monto es demasiado pequeño para procesar el pago."
	MsgPaymentRejected = "Tu pago no pudo ser procesado. Verifica los datos de tu tarjeta."
	MsgConfirmPending  = "Tu pago fue procesado. Estamos confirmando tu reserva, esto puede tardar unos minutos."
	MsgGenericError    = "Algo salió mal. Intenta de nuevo."

	// Payment-context messages. A 409 here means the booking is already
	// paid, not that a slot was taken.
	MsgAlreadyPaid       = "Esta reserva ya ha sido pagada."
	MsgBookingNotFound   = "La reserva no fue encontrada. Por favor intenta nuevamente."
	MsgPaymentForbidden  = "No tienes permiso para crear un pago. Verifica que estés autenticado."
	MsgOwnershipMismatch = "La reserva no está asociada a tu usuario. Contacta al equipo técnico."
)

// UserMessage maps an error to the Spanish message shown to the user.
// The backend's own message wins when it carries one, except for the
// known cases that have a friendlier local wording.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, remote.ErrConflict):
		return MsgSlotTaken
	case errors.Is(err, remote.ErrUnauthorized):
		return MsgSessionExpired
	case errors.Is(err, remote.ErrTransient):
		return MsgBackendDown
	case errors.Is(err, remote.ErrValidation):
		if msg := remote.ServerMessage(err); msg != "" {
			// Stripe relays sub-minimum amounts with this phrase.
			if strings.Contains(msg, "must convert to at least") {
				return MsgAmountTooSmall
			}
			return msg
		}
		return MsgGenericError
	case errors.Is(err, remote.ErrForbidden), errors.Is(err, remote.ErrNotFound):
		if msg := remote.ServerMessage(err); msg != "" {
			return msg
		}
		return MsgGenericError
	default:
		return MsgGenericError
	}
}

// PaymentUserMessage maps an error from the payment endpoints, where
// the same status codes mean different things than on the booking
// path: a 409 is an already-paid booking, a 403 an ownership problem.
func PaymentUserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, remote.ErrConflict):
		return MsgAlreadyPaid
	case errors.Is(err, remote.ErrNotFound):
		return MsgBookingNotFound
	case errors.Is(err, remote.ErrForbidden):
		// The backend phrases the booking-not-owned case this way.
		if strings.Contains(remote.ServerMessage(err), "not authorized") {
			return MsgOwnershipMismatch
		}
		return MsgPaymentForbidden
	case errors.Is(err, remote.ErrUnauthorized):
		return MsgSessionExpired
	case errors.Is(err, remote.ErrTransient):
		return MsgBackendDown
	case errors.Is(err, remote.ErrValidation):
		if msg := remote.ServerMessage(err); msg != "" {
			if strings.Contains(msg, "must convert to at least") {
				return MsgAmountTooSmall
			}
			return msg
		}
		return MsgGenericError
	default:
		return MsgGenericError
	}
}
