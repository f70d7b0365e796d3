package model

import "strings"

type Status string

const (
	StatusPending    Status = "Pendente"
	StatusScheduled  Status = "Marcado"
	StatusInProgress Status = "Em Aconselhamento"
	StatusCompleted  Status = "Concluído"
	StatusCanceled   Status = "Cancelado"
	StatusQueued     Status = "Na Fila"
	// StatusNoReturn is bookkeeping only, reachable through a manual override.
	StatusNoReturn Status = "Não houve retorno"
)

var knownStatuses = []Status{
	StatusPending,
	StatusScheduled,
	StatusInProgress,
	StatusCompleted,
	StatusCanceled,
	StatusQueued,
	StatusNoReturn,
}

// ParseStatus maps stored values onto a Status. Empty means Pendente.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return StatusPending, true
	}
	for _, st := range knownStatuses {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return Status(s), false
}

// Holding reports whether an appointment in this status occupies its slot.
func (s Status) Holding() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusInProgress:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusNoReturn:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok && s != ""
}

func HoldingStatuses() []Status {
	return []Status{StatusPending, StatusScheduled, StatusInProgress}
}
