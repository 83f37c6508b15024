package spec

type endpoint struct {
	Kind   string `yaml:"kind"`
	Driver string `yaml:"driver"`
	Config string `yaml:"config"`
}

type WriterSpec struct {
	MaxInFlight    int               `yaml:"max_in_flight"`
	DrainTimeoutMS int               `yaml:"drain_timeout_ms"`
	TableMap       map[string]string `yaml:"table_map"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source endpoint `yaml:"source"`
	Store  endpoint `yaml:"store"`

	Writer WriterSpec `yaml:"writer"`
}
