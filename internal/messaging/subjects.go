package messaging

// Subject constants for the gitpulse message bus.
const (
	// SubjectGitHubEvents carries event lifecycle notifications: every
	// create/update/delete performed by the event service is published here
	// with a "type" discriminator field.
	SubjectGitHubEvents = "github.events"
)
