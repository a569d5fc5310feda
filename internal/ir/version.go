package ir

// Version strings recorded with every run.
const (
	EngineVersion = "0.3.0"
	IRVersion     = "1"
)
