package config

var (
	// Version is the twab-ledger version number, which is injected during build time.
	Version = "0.0.0"

	// CommitHash is the twab-ledger git commit hash, which is injected during build time.
	CommitHash = ""

	// BuildTimestamp is the timestamp at which the twab-ledger was built, injected during build time.
	BuildTimestamp = ""

	// Branch is the git branch from which the twab-ledger was built, injected during build time.
	Branch = ""
)
