package config

// BusKeyStruct names every exchange, queue and routing key on the proctoring bus.
type BusKeyStruct struct {
	ProctoringExchange string

	AIDeadLetterExchange string
	AIDeadLetterQueue    string

	ResultsDeadLetterExchange string
	ResultsDeadLetterQueue    string

	FrameAnalysisQueue  string
	AudioAnalysisQueue  string
	BehaviorEventsQueue string
	ResultsQueue        string
}

var BusKey = &BusKeyStruct{
	ProctoringExchange: "proctoring.exchange",

	AIDeadLetterExchange: "ai.dlx",
	AIDeadLetterQueue:    "ai.dlq",

	ResultsDeadLetterExchange: "proctoring.dlx",
	ResultsDeadLetterQueue:    "proctoring.results.dlq",

	FrameAnalysisQueue:  "frame.analysis",
	AudioAnalysisQueue:  "audio.analysis",
	BehaviorEventsQueue: "behavior.events",
	ResultsQueue:        "proctoring.results",
}
