package http

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/panel"
)

type ServiceView struct {
	panel.Descriptor
	Methods []string `json:"methods"`
}

type ListServicesOutput struct {
	Body []ServiceView
}

type ServiceStatusInput struct {
	ID string `path:"id" doc:"Panel id"`
}

type ServiceStatus struct {
	ID        string         `json:"id"`
	Service   string         `json:"service"`
	Status    map[string]any `json:"status"`
	Error     string         `json:"error,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
	Polled    bool           `json:"polled" doc:"True when served from the status poller"`
}

type ServiceStatusOutput struct {
	Body ServiceStatus
}

type ListCallsInput struct {
	Service string `query:"service" doc:"Only calls to this service"`
	Limit   int    `query:"limit" minimum:"1" maximum:"100" default:"20"`
}

type ListCallsOutput struct {
	Body struct {
		Calls []*domain.CallRecord `json:"calls"`
		Total int64                `json:"total"`
	}
}

func (s *Server) registerAPI(api huma.API) {
	group := huma.NewGroup(api, "/api")

	huma.Get(group, "/services", s.listServices)
	huma.Get(group, "/services/{id}/status", s.serviceStatus)
	huma.Get(group, "/calls", s.listCalls)
}

func (s *Server) listServices(ctx context.Context, _ *struct{}) (*ListServicesOutput, error) {
	panels := s.workspace.Panels()
	views := make([]ServiceView, 0, len(panels))
	for _, desc := range panels {
		methods, _ := s.engine.Methods(desc.Service)
		if methods == nil {
			methods = []string{}
		}
		views = append(views, ServiceView{Descriptor: desc, Methods: methods})
	}
	return &ListServicesOutput{Body: views}, nil
}

// serviceStatus answers from the poller when it tracks the service and falls
// back to a live status call otherwise.
func (s *Server) serviceStatus(ctx context.Context, in *ServiceStatusInput) (*ServiceStatusOutput, error) {
	desc, ok := s.workspace.Lookup(in.ID)
	if !ok {
		return nil, huma.Error404NotFound("panel " + in.ID + " not found")
	}

	if s.poller != nil {
		if snap, ok := s.poller.Snapshot(desc.Service); ok {
			return &ServiceStatusOutput{Body: ServiceStatus{
				ID:      desc.ID,
				Service: desc.Service,
				Status: map[string]any{
					"running": snap.Status.Running,
					"status":  snap.Status.Status,
				},
				Error:     snap.Error,
				CheckedAt: snap.CheckedAt,
				Polled:    true,
			}}, nil
		}
	}

	res, err := s.engine.Call(ctx, desc.Service, desc.StatusMethod, nil)
	if err != nil {
		return nil, apiError(err)
	}
	return &ServiceStatusOutput{Body: ServiceStatus{
		ID:        desc.ID,
		Service:   desc.Service,
		Status:    res,
		CheckedAt: time.Now(),
	}}, nil
}

func (s *Server) listCalls(ctx context.Context, in *ListCallsInput) (*ListCallsOutput, error) {
	calls, err := s.calls.ListCalls(ctx, in.Service, in.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list calls", err)
	}
	total, err := s.calls.CountCalls(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count calls", err)
	}

	out := &ListCallsOutput{}
	out.Body.Calls = calls
	out.Body.Total = total
	if out.Body.Calls == nil {
		out.Body.Calls = []*domain.CallRecord{}
	}
	return out, nil
}

func apiError(err error) error {
	var remote *domain.RemoteError
	if !errors.As(err, &remote) {
		return huma.Error500InternalServerError(err.Error())
	}
	switch remote.Code {
	case domain.CodeServiceNotFound, domain.CodeMethodNotFound:
		return huma.Error404NotFound(remote.Message)
	case domain.CodeInvalidParams:
		return huma.Error400BadRequest(remote.Message)
	case domain.CodeBusy:
		return huma.Error409Conflict(remote.Message)
	case domain.CodeUnauthenticated:
		return huma.Error401Unauthorized(remote.Message)
	default:
		return huma.Error502BadGateway(remote.Message)
	}
}
