package raidtimer_client

const (
	// ProtocolVersion must match the server's GET / answer.
	ProtocolVersion = 8

	// API Endpoints
	InfoEndpoint   = "/"
	GroupsEndpoint = "/groups/"

	StartAction         = "start"
	StopAction          = "stop"
	PrepareAction       = "prepare"
	ResetAction         = "reset"
	SegmentAction       = "segment"
	ClearSegmentsAction = "clear_segment"
)
