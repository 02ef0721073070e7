package services

// Custom errors
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

type ConfigError struct{ Message string }

func (e *ConfigError) Error() string { return e.Message }
