package health

import "context"

// Registry manages the metric collectors sampled by the status
// endpoint.
type Registry struct {
	collectors []Collector
}

// NewRegistry creates an empty collector registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a collector to the registry.
func (r *Registry) Register(collector Collector) {
	r.collectors = append(r.collectors, collector)
}

// Snapshot samples every collector, skipping the ones that fail.
func (r *Registry) Snapshot(ctx context.Context) map[string]float64 {
	metrics := make(map[string]float64, len(r.collectors))
	for _, collector := range r.collectors {
		if value := collector.Collect(ctx); value != nil {
			metrics[collector.Name()] = *value
		}
	}
	return metrics
}
