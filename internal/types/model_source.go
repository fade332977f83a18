package types

// ModelSource selects whether a model is served locally (Ollama) or by a
// remote OpenAI-compatible API.
type ModelSource string

const (
	ModelSourceLocal  ModelSource = "local"
	ModelSourceRemote ModelSource = "remote"
)
