package chat

// UI is the capability set the chat layer drives. Two implementations
// exist — a terminal line UI and a local-web graphical UI — selected at
// startup by whether an interactive terminal is attached (§4.5.2).
type UI interface {
	Deliver(msg Message)
	SetStatus(status string)
	SetRoster(names []string)
	PromptForFile() (path string, ok bool)
}
