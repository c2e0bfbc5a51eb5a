package v1

import (
	"github.com/google/uuid"

	"github.com/shenikar/dispatch_coordination_system/internal/geogroup"
	"github.com/shenikar/dispatch_coordination_system/internal/models"
	"github.com/shenikar/dispatch_coordination_system/internal/service"
)

// DTOToReportModel собирает новое происшествие; ID и время выставляет сервис
func DTOToReportModel(dto CreateReportRequest) models.AccidentReport {
	return models.AccidentReport{
		Severity:        models.Severity(dto.Severity),
		ReporterNotes:   dto.ReporterNotes,
		ReporterContact: dto.ReporterContact,
		Latitude:        dto.Latitude,
		Longitude:       dto.Longitude,
		Barangay:        dto.Barangay,
		Municipality:    dto.Municipality,
		Province:        dto.Province,
		Landmark:        dto.Landmark,
		Images:          dto.Images,
	}
}

func ModelToReportResponse(r models.AccidentReport) ReportResponse {
	images := r.Images
	if images == nil {
		images = []string{}
	}
	return ReportResponse{
		ID:              r.ID,
		Severity:        string(r.Severity),
		ReporterNotes:   r.ReporterNotes,
		ReporterContact: r.ReporterContact,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		Barangay:        r.Barangay,
		Municipality:    r.Municipality,
		Province:        r.Province,
		Landmark:        r.Landmark,
		Images:          images,
		Status:          string(r.Status),
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func ModelsToReportResponses(reports []models.AccidentReport) []ReportResponse {
	out := make([]ReportResponse, 0, len(reports))
	for _, r := range reports {
		out = append(out, ModelToReportResponse(r))
	}
	return out
}

func GroupsToResponses(groups []geogroup.ReportGroup) []ReportGroupResponse {
	out := make([]ReportGroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, ReportGroupResponse{
			Latitude:  g.Latitude,
			Longitude: g.Longitude,
			Severity:  string(g.Severity),
			Count:     g.Count,
			Primary:   ModelToReportResponse(g.Primary),
			Members:   ModelsToReportResponses(g.Members),
		})
	}
	return out
}

func ModelToAssignmentResponse(a models.DispatchAssignment) AssignmentResponse {
	return AssignmentResponse{
		ID:           a.ID,
		ReportID:     a.AccidentID,
		ResponderID:  a.ResponderID,
		ResponseType: string(a.ResponseType),
		RespondedAt:  a.RespondedAt,
		Version:      a.Version,
	}
}

func ModelsToAssignmentResponses(assignments []models.DispatchAssignment) []AssignmentResponse {
	out := make([]AssignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, ModelToAssignmentResponse(a))
	}
	return out
}

func DispatchToStatusResponse(d service.ReportDispatch) DispatchStatusResponse {
	resp := DispatchStatusResponse{ReportID: d.ReportID, Status: string(d.Status)}
	if d.Assignment != nil {
		a := ModelToAssignmentResponse(*d.Assignment)
		resp.Assignment = &a
	}
	return resp
}

func ModelsToResponderResponses(responders []models.ResponderAvailability) []ResponderResponse {
	out := make([]ResponderResponse, 0, len(responders))
	for _, r := range responders {
		out = append(out, ResponderResponse{
			ResponderID:       r.ResponderID,
			FullName:          r.Profile.FullName,
			Phone:             r.Profile.Phone,
			Role:              r.Profile.Role,
			IsAvailable:       r.IsAvailable,
			Latitude:          r.Latitude,
			Longitude:         r.Longitude,
			LocationUpdatedAt: r.LocationUpdatedAt,
		})
	}
	return out
}

func commandResponse(id uuid.UUID, status string) CommandResponse {
	return CommandResponse{ID: id, Status: status}
}
