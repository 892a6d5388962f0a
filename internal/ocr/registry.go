package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"redactor/internal/logger"
)

// EngineStatus reports whether an engine is usable in this process.
type EngineStatus struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// EngineSpec describes how to construct one engine.
type EngineSpec struct {
	Name    string
	Enabled bool
	New     func(ctx context.Context) (Engine, error)
}

// Registry holds the engines that initialized successfully. It is built once
// at startup and never modified, so it may be shared across goroutines.
type Registry struct {
	engines  []Engine
	byName   map[string]Engine
	statuses []EngineStatus
	log      zerolog.Logger
}

// NewRegistry initializes every enabled engine in specs. Initialization
// failures are recorded in the engine's status and logged, never returned.
func NewRegistry(ctx context.Context, specs []EngineSpec) *Registry {
	r := &Registry{
		byName: make(map[string]Engine, len(specs)),
		log:    logger.WithComponent("ocr-registry"),
	}

	for _, spec := range specs {
		status := EngineStatus{Name: spec.Name, Enabled: spec.Enabled}
		if !spec.Enabled {
			status.Error = "disabled by configuration"
			r.statuses = append(r.statuses, status)
			continue
		}

		engine, err := initEngine(ctx, spec)
		if err != nil {
			status.Error = err.Error()
			r.statuses = append(r.statuses, status)
			r.log.Warn().
				Err(err).
				Str("engine", spec.Name).
				Msg("OCR engine unavailable")
			continue
		}

		status.Available = true
		r.statuses = append(r.statuses, status)
		r.engines = append(r.engines, engine)
		r.byName[spec.Name] = engine
		r.log.Info().
			Str("engine", spec.Name).
			Msg("OCR engine initialized")
	}

	return r
}

// NewRegistryWithEngines builds a registry from already constructed engines (for testing).
func NewRegistryWithEngines(engines ...Engine) *Registry {
	r := &Registry{
		byName: make(map[string]Engine, len(engines)),
		log:    logger.WithComponent("ocr-registry"),
	}
	for _, e := range engines {
		r.engines = append(r.engines, e)
		r.byName[e.Name()] = e
		r.statuses = append(r.statuses, EngineStatus{Name: e.Name(), Enabled: true, Available: true})
	}
	return r
}

func initEngine(ctx context.Context, spec EngineSpec) (engine Engine, err error) {
	const op = "initEngine"

	defer func() {
		if p := recover(); p != nil {
			engine = nil
			err = WrapOCRError(op, ErrEngineUnavailable, fmt.Sprintf("panic during %s initialization: %v", spec.Name, p))
		}
	}()

	if spec.New == nil {
		return nil, WrapOCRError(op, ErrEngineUnavailable, "no constructor for "+spec.Name)
	}
	return spec.New(ctx)
}

// Engines returns the available engines in registration order.
func (r *Registry) Engines() []Engine {
	return append([]Engine(nil), r.engines...)
}

// Get returns the named engine, or false when it is absent.
func (r *Registry) Get(name string) (Engine, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Statuses returns one status per engine spec, available or not.
func (r *Registry) Statuses() []EngineStatus {
	return append([]EngineStatus(nil), r.statuses...)
}

// Available returns the number of usable engines.
func (r *Registry) Available() int {
	return len(r.engines)
}

// Close releases engines holding client connections.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.engines {
		if c, ok := e.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", e.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
