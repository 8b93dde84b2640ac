package sim

import "github.com/openmerit/elmarket/core"

// PinsonScenario returns the reference market of 15 generators and 12 loads,
// in the order the bids are submitted.
func PinsonScenario() (supply, demand core.BidSet) {
	supply = core.BidSet{
		{ParticipantID: "G1", Quantity: 120, Price: 0},
		{ParticipantID: "G2", Quantity: 50, Price: 0},
		{ParticipantID: "G3", Quantity: 200, Price: 15},
		{ParticipantID: "G4", Quantity: 400, Price: 30},
		{ParticipantID: "G5", Quantity: 60, Price: 32.5},
		{ParticipantID: "G6", Quantity: 50, Price: 34},
		{ParticipantID: "G7", Quantity: 60, Price: 36},
		{ParticipantID: "G8", Quantity: 100, Price: 37.5},
		{ParticipantID: "G9", Quantity: 70, Price: 39},
		{ParticipantID: "G10", Quantity: 50, Price: 40},
		{ParticipantID: "G11", Quantity: 70, Price: 60},
		{ParticipantID: "G12", Quantity: 45, Price: 70},
		{ParticipantID: "G13", Quantity: 50, Price: 100},
		{ParticipantID: "G14", Quantity: 60, Price: 150},
		{ParticipantID: "G15", Quantity: 50, Price: 200},
	}
	demand = core.BidSet{
		{ParticipantID: "D1", Quantity: 250, Price: 200},
		{ParticipantID: "D2", Quantity: 300, Price: 110},
		{ParticipantID: "D3", Quantity: 120, Price: 100},
		{ParticipantID: "D4", Quantity: 80, Price: 90},
		{ParticipantID: "D5", Quantity: 40, Price: 85},
		{ParticipantID: "D6", Quantity: 70, Price: 75},
		{ParticipantID: "D7", Quantity: 60, Price: 65},
		{ParticipantID: "D8", Quantity: 45, Price: 40},
		{ParticipantID: "D9", Quantity: 30, Price: 38},
		{ParticipantID: "D10", Quantity: 35, Price: 31},
		{ParticipantID: "D11", Quantity: 25, Price: 24},
		{ParticipantID: "D12", Quantity: 10, Price: 16},
	}
	return supply, demand
}

// AgentsFor builds one fixed-price agent per bid.
func AgentsFor(supply, demand core.BidSet) []Agent {
	agents := make([]Agent, 0, len(supply)+len(demand))
	for _, bid := range supply {
		agents = append(agents, NewGeneratorAgent(bid.ParticipantID, bid.Quantity, bid.Price))
	}
	for _, bid := range demand {
		agents = append(agents, NewDemandAgent(bid.ParticipantID, bid.Quantity, bid.Price))
	}
	return agents
}

// PinsonAgents returns the agents of PinsonScenario.
func PinsonAgents() []Agent {
	return AgentsFor(PinsonScenario())
}
