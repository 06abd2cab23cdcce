package taskname

const (
	// License tasks
	LicenseExpiryRun = "license:expiry:run"
)
