package config

// Document is the YAML pipeline file. It is the transport form of a plan:
// parsing validates the structure and produces the frozen plan the engine
// consumes.
type Document struct {
	Name        string       `yaml:"name" validate:"required,min=1,max=100"`
	Description string       `yaml:"description,omitempty"`
	Stages      []Stage      `yaml:"stages" validate:"required,min=1,dive"`
	Connections []Connection `yaml:"connections,omitempty" validate:"omitempty,dive"`
}

// Stage describes one vertex of the pipeline DAG.
type Stage struct {
	Name       string            `yaml:"name" validate:"required,stage_name"`
	Type       string            `yaml:"type" validate:"required,plugin_kind"`
	Plugin     string            `yaml:"plugin" validate:"required,min=1"`
	Properties map[string]string `yaml:"properties,omitempty"`
	Partitions int               `yaml:"partitions,omitempty" validate:"omitempty,min=1,max=10000"`
	Schema     *Schema           `yaml:"schema,omitempty"`
}

// Schema declares the shape of a stage's output records.
type Schema struct {
	Name   string  `yaml:"name,omitempty"`
	Fields []Field `yaml:"fields" validate:"required,min=1,dive"`
}

// Field is one schema column.
type Field struct {
	Name string `yaml:"name" validate:"required"`
	Type string `yaml:"type" validate:"required,oneof=string int long float double boolean bytes"`
}

// Connection is one edge of the DAG. Port subscribes the downstream stage to
// a splitter output.
type Connection struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to" validate:"required"`
	Port string `yaml:"port,omitempty"`
}
