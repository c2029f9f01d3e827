package domain

import (
	"errors"
	"time"
)

// Errors
var (
	ErrWorkerNotFound = errors.New("worker not found")
	ErrWorkerInactive = errors.New("worker is inactive")
)

// Worker is a badge-carrying operator of a CHE device
type Worker struct {
	WorkerID  string    `bson:"workerId" json:"workerId"`
	Badge     string    `bson:"badge" json:"badge"`
	Name      string    `bson:"name,omitempty" json:"name,omitempty"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	LastLogin time.Time `bson:"lastLogin,omitempty" json:"lastLogin,omitempty"`
}

// NewWorker provisions a worker for a badge
func NewWorker(workerID, badge, name string) *Worker {
	return &Worker{
		WorkerID:  workerID,
		Badge:     badge,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now(),
	}
}

// RecordLogin stamps the last login time
func (w *Worker) RecordLogin() {
	w.LastLogin = time.Now()
}
