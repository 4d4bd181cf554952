package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&School{},
		&Class{},
		&Student{},
		&Admin{},
		&Activity{},
		&ActivityDetail{},
		&Ticket{},
		&Review{},
		&AuditLog{},
	}
}
