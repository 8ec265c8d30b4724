package bot

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	CommitSHA = ""
	BuildTime = ""
)
