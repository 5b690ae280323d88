// Package agent implements the vehicle decision pipeline: perception,
// hard safety overrides, the advisor call, an adaptive rule fallback, an
// oscillation damper, the pull-over maneuver, and the drunk-driver
// variant, all committing to a Decision and an updated memory.
package agent

// Profile tags the behavioral variant a vehicle agent runs as.
type Profile string

const (
	ProfileNormal    Profile = "normal"
	ProfileAmbulance Profile = "ambulance"
	ProfilePolice    Profile = "police"
	ProfileDrunk     Profile = "drunk"
)

// Flags derives the wire-level boolean flags carried on a vehicle's
// kinematic state and V2X broadcasts from its profile.
type Flags struct {
	IsEmergency bool
	IsPolice    bool
	IsDrunk     bool
}

// FlagsFor returns the flag set for a profile. Police is not an emergency
// profile: it does not preempt signals or zone priority, it only runs
// faster (see boostPoliceSpeed in decision.go).
func FlagsFor(p Profile) Flags {
	switch p {
	case ProfileAmbulance:
		return Flags{IsEmergency: true}
	case ProfilePolice:
		return Flags{IsPolice: true}
	case ProfileDrunk:
		return Flags{IsDrunk: true}
	default:
		return Flags{}
	}
}
