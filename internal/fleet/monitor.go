package fleet

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (l Location) String() string {
	return fmt.Sprintf("%d, %d", l.X, l.Y)
}

// LocationProvider resolves where a vehicle currently is.
type LocationProvider interface {
	Locate(ctx context.Context, v Vehicle) (Location, error)
}

// RandomLocations places vehicles on a 100×100 grid at random. There is no
// real positioning feed behind it.
type RandomLocations struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomLocations(seed int64) *RandomLocations {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomLocations{rnd: rand.New(rand.NewSource(seed))}
}

func (r *RandomLocations) Locate(_ context.Context, _ Vehicle) (Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Location{X: r.rnd.Intn(100) + 1, Y: r.rnd.Intn(100) + 1}, nil
}

// FixedLocations returns a preset location per vehicle number.
type FixedLocations map[string]Location

func (f FixedLocations) Locate(_ context.Context, v Vehicle) (Location, error) {
	loc, ok := f[v.Number]
	if !ok {
		return Location{}, fmt.Errorf("no location for vehicle %s", v.Number)
	}
	return loc, nil
}

// Report is a point-in-time view of the fleet.
type Report struct {
	FleetStatus      string              `json:"fleet_status"`
	VehicleLocations map[string]Location `json:"vehicle_locations"`
	// Unlocated lists vehicles whose location lookup failed.
	Unlocated   []string  `json:"unlocated,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Monitor builds real-time reports for a fleet.
type Monitor struct {
	fleet     *Fleet
	locations LocationProvider
	now       func() time.Time
}

func NewMonitor(fleet *Fleet, locations LocationProvider) *Monitor {
	return &Monitor{
		fleet:     fleet,
		locations: locations,
		now:       time.Now,
	}
}

// VehicleLocation locates one vehicle of the fleet by number.
func (m *Monitor) VehicleLocation(ctx context.Context, number string) (Location, error) {
	v, err := m.fleet.Vehicle(number)
	if err != nil {
		return Location{}, err
	}
	return m.locations.Locate(ctx, v)
}

func (m *Monitor) Report(ctx context.Context) (Report, error) {
	report := Report{
		FleetStatus:      m.fleet.Status(),
		VehicleLocations: map[string]Location{},
		GeneratedAt:      m.now().UTC(),
	}

	for _, v := range m.fleet.Vehicles() {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		loc, err := m.locations.Locate(ctx, v)
		if err != nil {
			report.Unlocated = append(report.Unlocated, v.Number)
			continue
		}
		report.VehicleLocations[v.Number] = loc
	}

	return report, nil
}
