package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/carepoint/slot-booking-service/internal/booking"
)

// The gateway in front of this service authenticates callers and forwards the
// acting identity in these headers. Handlers only parse them.
const (
	headerPatientID  = "X-Patient-ID"
	headerProviderID = "X-Provider-ID"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func actorID(w http.ResponseWriter, r *http.Request, header string) (uuid.UUID, bool) {
	raw := r.Header.Get(header)
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing_identity", header+" header is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_identity", header+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return false
	}
	return true
}

// Slot handlers (provider-side)

func addSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := actorID(w, r, headerProviderID)
		if !ok {
			return
		}

		var req AddSlotRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		slotID, err := svc.AddSlot(r.Context(), providerID, req.MaxAppointmentCount, req.StartTime, req.EndTime)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, IDResponse{ID: slotID})
	}
}

func editSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := actorID(w, r, headerProviderID)
		if !ok {
			return
		}
		slotID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var req EditSlotRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		affectedID, err := svc.EditSlot(r.Context(), slotID, providerID, booking.SlotUpdate{
			MaxCount: req.MaxAppointmentCount,
			EndTime:  req.EndTime,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, IDResponse{ID: affectedID})
	}
}

func removeSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := actorID(w, r, headerProviderID)
		if !ok {
			return
		}
		slotID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.RemoveSlot(r.Context(), slotID, providerID); err != nil {
			handleBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := svc.ListSlots(r.Context())
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listProviderSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		slots, err := svc.ListProviderSlots(r.Context(), providerID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toSlotResponse(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// Appointment handlers (patient-side)

func addAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := actorID(w, r, headerPatientID)
		if !ok {
			return
		}

		var req AddAppointmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		appointmentID, err := svc.AddAppointment(r.Context(), slotID, patientID, booking.Intake{
			AbnormalSymptom:    req.PatientAbnormalSymptom,
			MissedMedication:   req.PatientIsMissedMedication,
			BloodTestStatus:    req.PatientBloodTestStatus,
			OverdueMedication:  req.PatientIsOverdueMedication,
			PartnerHIVPositive: req.PatientIsPartnerHIVPositive,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, IDResponse{ID: appointmentID})
	}
}

func editAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := actorID(w, r, headerPatientID)
		if !ok {
			return
		}
		appointmentID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var req EditAppointmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		var newSlotID *uuid.UUID
		if req.SlotID != nil {
			id, err := uuid.Parse(*req.SlotID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
				return
			}
			newSlotID = &id
		}

		err := svc.EditAppointment(r.Context(), appointmentID, patientID, booking.IntakeUpdate{
			AbnormalSymptom:    req.PatientAbnormalSymptom,
			MissedMedication:   req.PatientIsMissedMedication,
			BloodTestStatus:    req.PatientBloodTestStatus,
			OverdueMedication:  req.PatientIsOverdueMedication,
			PartnerHIVPositive: req.PatientIsPartnerHIVPositive,
		}, newSlotID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, IDResponse{ID: appointmentID})
	}
}

func removeAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := actorID(w, r, headerPatientID)
		if !ok {
			return
		}
		appointmentID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.RemoveAppointment(r.Context(), appointmentID, patientID); err != nil {
			handleBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// Ledger handlers (provider-side)

func ledgerHandler(advance func(r *http.Request, id uuid.UUID) (uuid.UUID, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorID(w, r, headerProviderID); !ok {
			return
		}
		appointmentID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		affectedID, err := advance(r, appointmentID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, IDResponse{ID: affectedID})
	}
}

// Schedule handlers

func patientScheduleHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		entries, err := svc.PatientSchedule(r.Context(), patientID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(entries))
	}
}

func providerScheduleHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		entries, err := svc.ProviderSchedule(r.Context(), providerID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(entries))
	}
}

func toScheduleResponse(entries []booking.ScheduleEntry) []ScheduleEntryResponse {
	resp := make([]ScheduleEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toScheduleEntryResponse(e))
	}
	return resp
}

// handleBookingError maps the core error taxonomy onto response codes:
// missing targets to 404, business precondition failures to 409, bad input
// to 422, everything else to 500.
func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotFull):
		writeError(w, http.StatusConflict, "slot_full", err.Error())
	case errors.Is(err, booking.ErrSlotEnded):
		writeError(w, http.StatusConflict, "slot_already_ended", err.Error())
	case errors.Is(err, booking.ErrSlotOverlap):
		writeError(w, http.StatusConflict, "slot_overlap", err.Error())
	case errors.Is(err, booking.ErrSlotInUse):
		writeError(w, http.StatusConflict, "slot_in_use", err.Error())
	case errors.Is(err, booking.ErrSlotNotRemovable):
		writeError(w, http.StatusConflict, "slot_not_removable", err.Error())
	case errors.Is(err, booking.ErrNotPermitted):
		writeError(w, http.StatusConflict, "appointment_not_modifiable", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrCapacityTooLow):
		writeError(w, http.StatusConflict, "capacity_below_bookings", err.Error())
	case errors.Is(err, booking.ErrInvalidInterval),
		errors.Is(err, booking.ErrInvalidCapacity):
		writeError(w, http.StatusUnprocessableEntity, "invalid_slot_window", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
