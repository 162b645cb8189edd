package domain

// ReportSnapshot is everything both reports need, read once.
type ReportSnapshot struct {
	Order          GroupOrder
	Participations []Participation
	Users          map[int64]User
}
