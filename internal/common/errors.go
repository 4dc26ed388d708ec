package common

// ConfigError marks a configuration problem. It is fatal at startup and
// maps to a nonzero exit code.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CatalogError marks a failure to load or index the product catalog. No
// email can be served without one, so it is fatal for the process.
type CatalogError struct {
	Err error
}

func (e *CatalogError) Error() string {
	return "catalog load error: " + e.Err.Error()
}

func (e *CatalogError) Unwrap() error {
	return e.Err
}
