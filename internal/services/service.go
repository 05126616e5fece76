package services

// Service is the interface for everything the registry can run.
type Service interface {
	Start() error
	Stop() error
}
