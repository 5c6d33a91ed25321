package domain

// Mode is the protocol family a model speaks. The built-in set is fixed;
// new modes are added by registering an InterfaceAdapter, not by extending
// this list at compile time.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeBase      Mode = "base"
	ModeEmbedding Mode = "embedding"
	ModeReranker  Mode = "reranker"
)

// LaunchVariant is one way to start a model. Variants are tried in the
// order they appear in the catalogue; the first whose RequiredDevices are
// all online is selected.
type LaunchVariant struct {
	Name             string           `json:"name" yaml:"name"`
	RequiredDevices  []string         `json:"required_devices" yaml:"required_devices"`
	MemoryMB         map[string]int64 `json:"memory_mb" yaml:"memory_mb"`
	LaunchScriptPath string           `json:"launch_script" yaml:"launch_script"`
}

// ModelDefinition is a catalogued model: a name, its aliases, its protocol
// mode, the port its launched process will listen on, and its ordered
// launch variants.
type ModelDefinition struct {
	Name      string          `json:"name" yaml:"name"`
	Aliases   []string        `json:"aliases" yaml:"aliases"`
	Mode      Mode            `json:"mode" yaml:"mode"`
	Port      int             `json:"port" yaml:"port"`
	AutoStart bool            `json:"auto_start" yaml:"auto_start"`
	Variants  []LaunchVariant `json:"variants" yaml:"variants"`
}

// Matches reports whether name equals the canonical name or one of the
// aliases.
func (m *ModelDefinition) Matches(name string) bool {
	if m.Name == name {
		return true
	}
	for _, a := range m.Aliases {
		if a == name {
			return true
		}
	}
	return false
}
