package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"omvstack.control/internal/core/domain"
	"omvstack.control/internal/core/logger"
	"omvstack.control/internal/core/ports"
	"omvstack.control/internal/core/tracing"
)

// Handler implements one remote method.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Service is a named set of remote methods.
type Service interface {
	Name() string
	Methods() map[string]Handler
}

// Methods that change stack state take the per-service action lock.
var mutatingMethods = map[string]bool{
	"install": true,
	"remove":  true,
	"restart": true,
}

type Engine struct {
	mu       sync.RWMutex
	services map[string]Service

	lock  ports.ActionLock
	bus   ports.EventBus
	calls ports.CallRepository
}

func NewEngine(lock ports.ActionLock, bus ports.EventBus, calls ports.CallRepository) *Engine {
	return &Engine{
		services: make(map[string]Service),
		lock:     lock,
		bus:      bus,
		calls:    calls,
	}
}

func (e *Engine) Register(svc Service) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := svc.Name()
	if name == "" {
		return errors.New("service name is required")
	}
	if _, exists := e.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}
	e.services[name] = svc
	return nil
}

// Services returns the registered service names in sorted order.
func (e *Engine) Services() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.services))
	for name := range e.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Methods(service string) ([]string, bool) {
	e.mu.RLock()
	svc, ok := e.services[service]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}

	methods := make([]string, 0)
	for name := range svc.Methods() {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods, true
}

// Dispatch runs a transport request.
func (e *Engine) Dispatch(ctx context.Context, req domain.CallRequest) (map[string]any, error) {
	return e.Call(ctx, req.Service, req.Method, req.Params)
}

// Call runs one remote method. Failures are always *domain.RemoteError.
func (e *Engine) Call(ctx context.Context, service, method string, params map[string]any) (map[string]any, error) {
	callID := uuid.New().String()
	ctx = logger.WithCallID(ctx, callID)
	ctx, span := tracing.StartSpan(ctx, "engine.Call",
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
		attribute.String("call.id", callID),
	)

	start := time.Now()
	rpcCallsInFlight.Inc()
	defer rpcCallsInFlight.Dec()

	result, err := e.call(ctx, callID, service, method, params)

	status := domain.CallStatusOK
	if err != nil {
		status = domain.CallStatusError
	}
	duration := time.Since(start)
	rpcCallsTotal.WithLabelValues(service, method, string(status)).Inc()
	rpcCallDuration.WithLabelValues(service, method).Observe(duration.Seconds())

	e.audit(ctx, callID, service, method, params, err, duration)
	tracing.EndSpan(span, err)

	if err != nil {
		logger.WarnContext(ctx, "Remote call failed", "service", service, "method", method, "error", err, "duration", duration)
		return nil, err
	}
	logger.DebugContext(ctx, "Remote call finished", "service", service, "method", method, "duration", duration)
	return result, nil
}

func (e *Engine) call(ctx context.Context, callID, service, method string, params map[string]any) (map[string]any, error) {
	e.mu.RLock()
	svc, ok := e.services[service]
	e.mu.RUnlock()
	if !ok {
		return nil, domain.NewRemoteError(domain.CodeServiceNotFound, fmt.Sprintf("Service '%s' does not exist", service))
	}

	handler, ok := svc.Methods()[method]
	if !ok {
		return nil, domain.NewRemoteError(domain.CodeMethodNotFound, fmt.Sprintf("Method '%s' does not exist on service '%s'", method, service))
	}

	if mutatingMethods[method] && e.lock != nil {
		owner := method + ":" + callID
		acquired, err := e.lock.Acquire(ctx, service, owner)
		if err != nil {
			return nil, domain.NewRemoteError(domain.CodeInternal, fmt.Sprintf("failed to acquire action lock: %v", err))
		}
		if !acquired {
			return nil, e.busyError(ctx, service)
		}
		defer func() {
			if err := e.lock.Release(context.WithoutCancel(ctx), service, owner); err != nil {
				logger.ErrorContext(ctx, "Failed to release action lock", "service", service, "error", err)
			}
		}()
	}

	e.publish(ctx, domain.Event{
		Type:    domain.EventCallStarted,
		Service: service,
		Method:  method,
		CallID:  callID,
		At:      time.Now(),
	})

	raw, err := handler(ctx, params)
	finished := domain.Event{
		Type:    domain.EventCallFinished,
		Service: service,
		Method:  method,
		CallID:  callID,
		At:      time.Now(),
	}
	if err != nil {
		remoteErr := toRemoteError(err)
		finished.Error = remoteErr.Message
		e.publish(ctx, finished)
		return nil, remoteErr
	}

	result, err := normalize(raw)
	if err != nil {
		remoteErr := domain.NewRemoteError(domain.CodeInternal, err.Error())
		finished.Error = remoteErr.Message
		e.publish(ctx, finished)
		return nil, remoteErr
	}
	finished.Payload = result
	e.publish(ctx, finished)
	return result, nil
}

func (e *Engine) busyError(ctx context.Context, service string) error {
	busyWith := "another action"
	if holder, err := e.lock.Holder(ctx, service); err == nil && holder != "" {
		busyWith, _, _ = strings.Cut(holder, ":")
	}
	return domain.NewRemoteError(domain.CodeBusy, fmt.Sprintf("%s is busy with %s", service, busyWith))
}

func (e *Engine) publish(ctx context.Context, event domain.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "type", event.Type, "error", err)
	}
}

func (e *Engine) audit(ctx context.Context, callID, service, method string, params map[string]any, callErr error, duration time.Duration) {
	if e.calls == nil {
		return
	}

	encoded := "{}"
	if len(params) > 0 {
		if b, err := json.Marshal(params); err == nil {
			encoded = string(b)
		}
	}

	record := &domain.CallRecord{
		ID:         callID,
		Service:    service,
		Method:     method,
		Params:     encoded,
		Status:     domain.CallStatusOK,
		DurationMS: duration.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if callErr != nil {
		record.Status = domain.CallStatusError
		record.Error = callErr.Error()
	}

	if err := e.calls.Create(context.WithoutCancel(ctx), record); err != nil {
		logger.ErrorContext(ctx, "Failed to record call", "error", err)
	}
}

func toRemoteError(err error) *domain.RemoteError {
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr
	}
	var paramErr *ParamError
	if errors.As(err, &paramErr) {
		return domain.NewRemoteError(domain.CodeInvalidParams, paramErr.Error())
	}
	return domain.NewRemoteError(domain.CodeCommandFailed, err.Error())
}

// normalize turns a handler result into the JSON object shape every
// transport carries.
func normalize(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("result is not an object: %w", err)
	}
	return out, nil
}
