package models

// Viewer is the caller identity taken from the bearer token. Accounts themselves live in
// another service; only the id and the staff bit matter here.
type Viewer struct {
	ID    string
	Role  string
	Staff bool
}

func (v Viewer) Anonymous() bool {
	return v.ID == ""
}
