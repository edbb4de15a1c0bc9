// Package fleet keeps track of the vehicles that carry riders and reports
// where they are. It never touches card balances.
package fleet

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

const (
	StatusActive           = "Active"
	StatusUnderMaintenance = "Under Maintenance"
)

var (
	ErrVehicleExists   = errors.New("vehicle already in fleet")
	ErrVehicleNotFound = errors.New("vehicle not in fleet")
	ErrInvalidVehicle  = errors.New("invalid vehicle number")
	ErrInvalidStatus   = errors.New("invalid fleet status")
)

type Vehicle struct {
	Number string `json:"number"`
}

// Fleet is safe for concurrent use.
type Fleet struct {
	mu       sync.RWMutex
	status   string
	vehicles []Vehicle
}

func New() *Fleet {
	return &Fleet{status: StatusActive}
}

func (f *Fleet) Status() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.status
}

func (f *Fleet) UpdateStatus(status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return ErrInvalidStatus
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.status = status
	return nil
}

func (f *Fleet) AddVehicle(v Vehicle) error {
	v.Number = strings.TrimSpace(v.Number)
	if v.Number == "" {
		return ErrInvalidVehicle
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if slices.Contains(f.vehicles, v) {
		return fmt.Errorf("%s: %w", v.Number, ErrVehicleExists)
	}
	f.vehicles = append(f.vehicles, v)
	return nil
}

// Vehicles returns a copy of the fleet in insertion order.
func (f *Fleet) Vehicles() []Vehicle {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Vehicle, len(f.vehicles))
	copy(out, f.vehicles)
	return out
}

// Vehicle looks a vehicle up by number.
func (f *Fleet) Vehicle(number string) (Vehicle, error) {
	v := Vehicle{Number: strings.TrimSpace(number)}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if !slices.Contains(f.vehicles, v) {
		return Vehicle{}, fmt.Errorf("%s: %w", v.Number, ErrVehicleNotFound)
	}
	return v, nil
}
