package client

// RegistryClient is the registry surface the replicator drives. It exists so
// tests can swap the REST client for the in-memory mock.
type RegistryClient interface {
	GetSubjects(includeDeleted bool) ([]string, error)
	GetVersions(subject string, includeDeleted bool) ([]int, error)
	GetSchema(subject string, version string) (*Schema, error)
	RegisterSchema(subject string, schema *Schema) (int, error)
	DeleteSubject(subject string, permanent bool) ([]int, error)

	GetConfig() (*Config, error)
	SetConfig(compatibility string) error
	SetSubjectConfig(subject string, compatibility string) error

	GetMode() (*Mode, error)
	SetMode(mode string) error
	SetSubjectMode(subject string, mode string) error
}

var _ RegistryClient = (*SchemaRegistryClient)(nil)
var _ RegistryClient = (*MockClient)(nil)
