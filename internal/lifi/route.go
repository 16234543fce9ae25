package lifi

// RouteMode is the bridge constraint requested from the aggregator.
type RouteMode int

const (
	// RouteFast pins the route to the taxi variant of Stargate V2.
	RouteFast RouteMode = iota
	// RouteSlow pins the route to the bus variant of Stargate V2.
	RouteSlow
	// RouteRandom leaves bridge choice to the aggregator.
	RouteRandom
)

func (m RouteMode) String() string {
	switch m {
	case RouteFast:
		return "fast"
	case RouteSlow:
		return "slow"
	case RouteRandom:
		return "random"
	}
	return "unknown"
}

// AllowBridges is the allowBridges query value; empty means unconstrained.
func (m RouteMode) AllowBridges() string {
	switch m {
	case RouteFast:
		return "stargateV2"
	case RouteSlow:
		return "stargateV2Bus"
	}
	return ""
}

// SelectRoute maps one draw r in [0,100) onto a mode:
// r < randomChance is random, else r < fastThreshold is fast, else slow.
func SelectRoute(r, randomChance, fastThreshold float64) RouteMode {
	switch {
	case r < randomChance:
		return RouteRandom
	case r < fastThreshold:
		return RouteFast
	default:
		return RouteSlow
	}
}
