package model

// Actor is the authenticated caller of an action.
type Actor struct {
	Subject      string
	Admin        bool
	ConsultantID int64
}

// CanManage reports whether the actor may act on the given consultant's schedule and appointments.
func (a Actor) CanManage(consultantID int64) bool {
	if a.Admin {
		return true
	}
	return a.ConsultantID != 0 && a.ConsultantID == consultantID
}
