package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/carepoint/slot-booking-service/internal/booking"
)

type AddSlotRequest struct {
	MaxAppointmentCount int       `json:"max_appointment_count" validate:"required,min=1"`
	StartTime           time.Time `json:"start_time" validate:"required"`
	EndTime             time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

type EditSlotRequest struct {
	MaxAppointmentCount *int       `json:"max_appointment_count,omitempty" validate:"omitempty,min=1"`
	EndTime             *time.Time `json:"end_time,omitempty"`
}

type AddAppointmentRequest struct {
	SlotID                      string `json:"slot_id" validate:"required,uuid"`
	PatientAbnormalSymptom      string `json:"patient_abnormal_symptom"`
	PatientIsMissedMedication   string `json:"patient_is_missed_medication"`
	PatientBloodTestStatus      string `json:"patient_blood_test_status"`
	PatientIsOverdueMedication  string `json:"patient_is_overdue_medication"`
	PatientIsPartnerHIVPositive string `json:"patient_is_partner_hiv_positive"`
}

type EditAppointmentRequest struct {
	SlotID                      *string `json:"slot_id,omitempty" validate:"omitempty,uuid"`
	PatientAbnormalSymptom      *string `json:"patient_abnormal_symptom,omitempty"`
	PatientIsMissedMedication   *string `json:"patient_is_missed_medication,omitempty"`
	PatientBloodTestStatus      *string `json:"patient_blood_test_status,omitempty"`
	PatientIsOverdueMedication  *string `json:"patient_is_overdue_medication,omitempty"`
	PatientIsPartnerHIVPositive *string `json:"patient_is_partner_hiv_positive,omitempty"`
}

type IDResponse struct {
	ID uuid.UUID `json:"id"`
}

type SlotResponse struct {
	ID                      uuid.UUID `json:"id"`
	ProviderID              uuid.UUID `json:"provider_id"`
	CurrentAppointmentCount int       `json:"current_appointment_count"`
	MaxAppointmentCount     int       `json:"max_appointment_count"`
	StartTime               time.Time `json:"start_time"`
	EndTime                 time.Time `json:"end_time"`
}

func toSlotResponse(s booking.Slot) SlotResponse {
	return SlotResponse{
		ID:                      s.ID,
		ProviderID:              s.ProviderID,
		CurrentAppointmentCount: s.CurrentCount,
		MaxAppointmentCount:     s.MaxCount,
		StartTime:               s.StartTime,
		EndTime:                 s.EndTime,
	}
}

type ScheduleEntryResponse struct {
	AppointmentID               uuid.UUID `json:"appointment_id"`
	SlotID                      uuid.UUID `json:"slot_id"`
	PatientID                   uuid.UUID `json:"patient_id"`
	PatientAbnormalSymptom      string    `json:"patient_abnormal_symptom"`
	PatientIsMissedMedication   string    `json:"patient_is_missed_medication"`
	PatientBloodTestStatus      string    `json:"patient_blood_test_status"`
	PatientIsOverdueMedication  string    `json:"patient_is_overdue_medication"`
	PatientIsPartnerHIVPositive string    `json:"patient_is_partner_hiv_positive"`
	Status                      string    `json:"status"`
	ProviderID                  uuid.UUID `json:"provider_id"`
	StartTime                   time.Time `json:"start_time"`
	EndTime                     time.Time `json:"end_time"`
}

func toScheduleEntryResponse(e booking.ScheduleEntry) ScheduleEntryResponse {
	return ScheduleEntryResponse{
		AppointmentID:               e.AppointmentID,
		SlotID:                      e.SlotID,
		PatientID:                   e.PatientID,
		PatientAbnormalSymptom:      e.Intake.AbnormalSymptom,
		PatientIsMissedMedication:   e.Intake.MissedMedication,
		PatientBloodTestStatus:      e.Intake.BloodTestStatus,
		PatientIsOverdueMedication:  e.Intake.OverdueMedication,
		PatientIsPartnerHIVPositive: e.Intake.PartnerHIVPositive,
		Status:                      string(e.Status),
		ProviderID:                  e.ProviderID,
		StartTime:                   e.StartTime,
		EndTime:                     e.EndTime,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
