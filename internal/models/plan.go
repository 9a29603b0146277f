package models

// Plan is a titled, ordered list of steps ready to hand to the executor.
type Plan struct {
	Name        string
	Title       string
	Description string
	Steps       []CommandStep
	// Source is the file the plan was loaded from, empty for built-ins.
	Source string
}

// NeedsPrivileges reports whether any step escalates, directly or through the AUR helper.
func (p *Plan) NeedsPrivileges() bool {
	for _, s := range p.Steps {
		if s.Type == CommandPrivileged || s.Type == CommandAur {
			return true
		}
	}
	return false
}
